// ABOUTME: MP3 file source backed by go-mp3
// ABOUTME: The decoder always yields 16-bit stereo which is widened to 24-bit
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3 reads an MP3 file once from start to end
type MP3 struct {
	file    *os.File
	decoder *mp3.Decoder
	name    string
	buf     []byte
}

// NewMP3 opens and starts decoding an MP3 file
func NewMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3{file: f, decoder: decoder, name: title(path)}, nil
}

func (s *MP3) Read(samples []int32) (int, error) {
	want := wholeFrames(len(samples), 2) * 2
	if cap(s.buf) < want {
		s.buf = make([]byte, want)
	}
	buf := s.buf[:want]

	n, err := io.ReadFull(s.decoder, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode %s: %w", s.name, err)
	}

	// whole stereo frames only
	n -= n % 4
	count := n / 2
	for i := 0; i < count; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}

	if count == 0 && err != nil {
		return 0, io.EOF
	}
	return count, nil
}

func (s *MP3) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3) Channels() int   { return 2 }
func (s *MP3) Name() string    { return s.name }
func (s *MP3) Close() error    { return s.file.Close() }
