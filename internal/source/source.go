// ABOUTME: PCM sources that feed playback streams from files or a generator
// ABOUTME: Supports MP3, FLAC and WAV files plus a sine test tone
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for files no decoder handles
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Source provides interleaved PCM samples in the 24-bit range
type Source interface {
	// Read fills samples with whole frames and returns how many samples were
	// written. It returns io.EOF once the source is exhausted.
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
	// Name identifies the source in logs
	Name() string
	Close() error
}

// Open creates a source for path, chosen by file extension.
// An empty path yields a 440 Hz tone lasting toneDuration.
func Open(path string, toneDuration time.Duration) (Source, error) {
	if path == "" {
		return NewTone(DefaultToneFrequency, DefaultToneRate, 1, toneDuration), nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		return NewMP3(path)
	case ".flac":
		return NewFLAC(path)
	case ".wav":
		return NewWAV(path)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .mp3, .flac, .wav)", ErrUnsupportedFormat, ext)
	}
}

// title derives a display name from a file path
func title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// wholeFrames rounds n down to a multiple of channels
func wholeFrames(n, channels int) int {
	if channels <= 0 {
		return n
	}
	return n - n%channels
}
