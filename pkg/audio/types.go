// ABOUTME: Audio type definitions
// ABOUTME: Defines stream configuration, sample formats, devices and format math
package audio

import (
	"errors"
	"fmt"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// ErrInvalidConfig is returned when an audio configuration fails validation
var ErrInvalidConfig = errors.New("invalid audio config")

// BackendPreference selects which backend the manager tries
type BackendPreference string

const (
	BackendAuto       BackendPreference = "auto"
	BackendNative     BackendPreference = "native"
	BackendSubprocess BackendPreference = "subprocess"
)

// SampleFormat is the interleaved PCM encoding, always little-endian
type SampleFormat string

const (
	FormatFloat32LE SampleFormat = "float32le"
	FormatS16LE     SampleFormat = "s16le"
)

// BytesPerSample returns the width of one sample, or 0 for unknown formats
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatFloat32LE:
		return 4
	case FormatS16LE:
		return 2
	default:
		return 0
	}
}

// Valid reports whether f is a supported encoding
func (f SampleFormat) Valid() bool {
	return f.BytesPerSample() > 0
}

// Config holds process-wide audio defaults
type Config struct {
	Backend    BackendPreference `yaml:"backend" env:"BACKEND"`
	SampleRate int               `yaml:"sample_rate" env:"SAMPLE_RATE"`
	Channels   int               `yaml:"channels" env:"CHANNELS"`
	Format     SampleFormat      `yaml:"format" env:"FORMAT"`
	BufferMs   int               `yaml:"buffer_ms" env:"BUFFER_MS"`
}

// DefaultConfig returns the defaults used for synthesized speech
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 24000,
		Channels:   1,
		Format:     FormatS16LE,
		BufferMs:   100,
	}
}

// WithDefaults fills zero fields from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels == 0 {
		c.Channels = d.Channels
	}
	if c.Format == "" {
		c.Format = d.Format
	}
	if c.BufferMs == 0 {
		c.BufferMs = d.BufferMs
	}
	return c
}

// Validate checks the invariants of a fully populated config
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendNative, BackendSubprocess:
	default:
		return fmt.Errorf("%w: unknown backend preference %q", ErrInvalidConfig, c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidConfig, c.Channels)
	}
	if !c.Format.Valid() {
		return fmt.Errorf("%w: unsupported sample format %q", ErrInvalidConfig, c.Format)
	}
	if c.BufferMs < 0 {
		return fmt.Errorf("%w: buffer size must not be negative, got %dms", ErrInvalidConfig, c.BufferMs)
	}
	return nil
}

// Format describes the PCM layout of a single stream
type Format struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// StreamFormat returns the stream layout described by the config
func (c Config) StreamFormat() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels, Sample: c.Format}
}

// FrameSize returns the number of bytes in one interleaved frame
func (f Format) FrameSize() int {
	return f.Channels * f.Sample.BytesPerSample()
}

// BytesPerMs returns how many bytes one millisecond of audio occupies
func (f Format) BytesPerMs() float64 {
	return float64(f.SampleRate*f.Channels*f.Sample.BytesPerSample()) / 1000.0
}

// BytesFor returns the byte size of ms milliseconds of audio
func (f Format) BytesFor(ms int) int {
	return f.SampleRate * f.Channels * f.Sample.BytesPerSample() * ms / 1000
}

// DurationMs returns how many milliseconds n bytes of audio last
func (f Format) DurationMs(n int) float64 {
	bpm := f.BytesPerMs()
	if bpm == 0 {
		return 0
	}
	return float64(n) / bpm
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Sample)
}

// Device describes an audio endpoint returned by enumeration
type Device struct {
	ID         string
	Name       string
	IsDefault  bool
	SampleRate int
	Channels   int
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit range to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}
