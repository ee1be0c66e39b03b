// ABOUTME: Sine test tone generator
// ABOUTME: Used by the CLI when no file is given and by the ducking demo
package source

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

const (
	DefaultToneFrequency = 440.0 // A4
	DefaultToneRate      = 48000
)

// Tone generates a sine wave at half amplitude
type Tone struct {
	mu        sync.Mutex
	index     uint64
	limit     uint64 // frames; 0 means endless
	frequency float64
	rate      int
	channels  int
}

// NewTone creates a tone of the given frequency. A zero duration never ends.
func NewTone(frequency float64, rate, channels int, duration time.Duration) *Tone {
	var limit uint64
	if duration > 0 {
		limit = uint64(duration.Seconds() * float64(rate))
	}
	return &Tone{frequency: frequency, rate: rate, channels: channels, limit: limit}
}

func (s *Tone) Read(samples []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(samples) / s.channels
	if s.limit > 0 {
		left := s.limit - s.index
		if left == 0 {
			return 0, io.EOF
		}
		if uint64(frames) > left {
			frames = int(left)
		}
	}

	for i := 0; i < frames; i++ {
		t := float64(s.index+uint64(i)) / float64(s.rate)
		v := int32(math.Sin(2*math.Pi*s.frequency*t) * audio.Max24Bit * 0.5)
		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = v
		}
	}
	s.index += uint64(frames)

	return frames * s.channels, nil
}

func (s *Tone) SampleRate() int { return s.rate }
func (s *Tone) Channels() int   { return s.channels }
func (s *Tone) Name() string    { return "test tone" }
func (s *Tone) Close() error    { return nil }
