// ABOUTME: FLAC file source backed by mewkiz/flac
// ABOUTME: Frames are interleaved and scaled to the 24-bit range
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// FLAC reads a FLAC file once from start to end
type FLAC struct {
	file     *os.File
	stream   *flac.Stream
	name     string
	channels int
	bitDepth int

	// pending holds decoded samples that did not fit the last Read
	pending []int32
}

// NewFLAC opens a FLAC file and parses its stream info
func NewFLAC(path string) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	return &FLAC{
		file:     f,
		stream:   stream,
		name:     title(path),
		channels: int(stream.Info.NChannels),
		bitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

func (s *FLAC) Read(samples []int32) (int, error) {
	limit := wholeFrames(len(samples), s.channels)
	n := 0

	for n < limit {
		if len(s.pending) > 0 {
			c := copy(samples[n:limit], s.pending)
			s.pending = s.pending[c:]
			n += c
			continue
		}

		frame, err := s.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("decode %s: %w", s.name, err)
		}

		block := int(frame.BlockSize)
		decoded := make([]int32, 0, block*s.channels)
		for i := 0; i < block; i++ {
			for ch := 0; ch < s.channels; ch++ {
				decoded = append(decoded, to24Bit(frame.Subframes[ch].Samples[i], s.bitDepth))
			}
		}
		s.pending = decoded
	}
	return n, nil
}

// to24Bit rescales a sample of the given bit depth to the 24-bit range
func to24Bit(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24 || bitDepth <= 0:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}

func (s *FLAC) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Name() string    { return s.name }

func (s *FLAC) Close() error {
	return s.file.Close()
}
