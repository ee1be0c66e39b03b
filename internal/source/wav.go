// ABOUTME: WAV file source and writer backed by go-audio/wav
// ABOUTME: The writer stores captured s16le or float32le PCM as 16-bit WAV
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV reads an integer PCM WAV file once from start to end
type WAV struct {
	file     *os.File
	dec      *wav.Decoder
	name     string
	rate     int
	channels int
	bitDepth int
	buf      *goaudio.IntBuffer
}

// NewWAV opens a WAV file and reads its header
func NewWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, path)
	}
	dec.ReadInfo()

	bitDepth := int(dec.BitDepth)
	if dec.WavAudioFormat != 1 || (bitDepth != 16 && bitDepth != 24 && bitDepth != 32) {
		f.Close()
		return nil, fmt.Errorf("%w: WAV format %d with %d-bit samples", ErrUnsupportedFormat, dec.WavAudioFormat, bitDepth)
	}

	return &WAV{
		file:     f,
		dec:      dec,
		name:     title(path),
		rate:     int(dec.SampleRate),
		channels: int(dec.NumChans),
		bitDepth: bitDepth,
	}, nil
}

func (s *WAV) Read(samples []int32) (int, error) {
	want := wholeFrames(len(samples), s.channels)
	if s.buf == nil || cap(s.buf.Data) < want {
		s.buf = &goaudio.IntBuffer{
			Data:   make([]int, want),
			Format: &goaudio.Format{NumChannels: s.channels, SampleRate: s.rate},
		}
	}
	s.buf.Data = s.buf.Data[:want]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", s.name, err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	n = wholeFrames(n, s.channels)
	for i := 0; i < n; i++ {
		samples[i] = to24Bit(int32(s.buf.Data[i]), s.bitDepth)
	}
	return n, nil
}

func (s *WAV) SampleRate() int { return s.rate }
func (s *WAV) Channels() int   { return s.channels }
func (s *WAV) Name() string    { return s.name }
func (s *WAV) Close() error    { return s.file.Close() }

// WAVWriter encodes raw PCM of one format into a 16-bit WAV file
type WAVWriter struct {
	enc    *wav.Encoder
	format audio.Format
	buf    *goaudio.IntBuffer
}

// NewWAVWriter starts a WAV file on w; Close finalizes the header
func NewWAVWriter(w io.WriteSeeker, format audio.Format) *WAVWriter {
	return &WAVWriter{
		enc:    wav.NewEncoder(w, format.SampleRate, 16, format.Channels, 1),
		format: format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: 16,
		},
	}
}

// Write appends whole samples from p; a trailing partial sample is dropped
func (w *WAVWriter) Write(p []byte) (int, error) {
	w.buf.Data = w.buf.Data[:0]

	switch w.format.Sample {
	case audio.FormatFloat32LE:
		for i := 0; i+3 < len(p); i += 4 {
			f := math.Float32frombits(binary.LittleEndian.Uint32(p[i:]))
			w.buf.Data = append(w.buf.Data, int(floatToInt16(f)))
		}
	default:
		for i := 0; i+1 < len(p); i += 2 {
			w.buf.Data = append(w.buf.Data, int(int16(binary.LittleEndian.Uint16(p[i:]))))
		}
	}

	if err := w.enc.Write(w.buf); err != nil {
		return 0, fmt.Errorf("write wav: %w", err)
	}
	return len(p), nil
}

// Close writes the final header sizes
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}

func floatToInt16(f float32) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(f * math.MaxInt16)
}
