// ABOUTME: Per-stream options and their resolution against process defaults
// ABOUTME: Omitted fields inherit from audio.Config
package stream

import (
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/google/uuid"
)

const (
	// DefaultPrebufferMs is enough audio to avoid clipping the first syllable
	DefaultPrebufferMs = 50

	// DefaultPriority is used for playback streams that do not ask for one
	DefaultPriority = 50

	MinPriority = 0
	MaxPriority = 100
)

// PlaybackOptions override the process defaults for one playback stream.
// Zero values and nil pointers inherit.
type PlaybackOptions struct {
	Name        string
	Device      string
	SampleRate  int
	Channels    int
	Format      audio.SampleFormat
	PrebufferMs *int
	Priority    *int
}

// RecordingOptions override the process defaults for one recording stream
type RecordingOptions struct {
	Name       string
	Device     string
	SampleRate int
	Channels   int
	Format     audio.SampleFormat
}

// PlaybackParams is a fully resolved playback request
type PlaybackParams struct {
	ID          string
	Name        string
	Device      string
	Format      audio.Format
	BufferMs    int
	PrebufferMs int
	Priority    int
}

// RecordingParams is a fully resolved recording request
type RecordingParams struct {
	ID       string
	Name     string
	Device   string
	Format   audio.Format
	BufferMs int
}

// Int returns a pointer to v, for the optional integer fields
func Int(v int) *int { return &v }

// ClampPriority bounds p to [MinPriority, MaxPriority]
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// PrebufferBytes is the accumulated size that starts playback automatically
func (p PlaybackParams) PrebufferBytes() int {
	return p.Format.BytesFor(p.PrebufferMs)
}

// Resolve fills omitted fields from cfg and validates the result
func (o PlaybackOptions) Resolve(cfg audio.Config) (PlaybackParams, error) {
	cfg = cfg.WithDefaults()
	f, err := resolveFormat(cfg, o.SampleRate, o.Channels, o.Format)
	if err != nil {
		return PlaybackParams{}, err
	}

	prebuffer := DefaultPrebufferMs
	if o.PrebufferMs != nil {
		if *o.PrebufferMs < 0 {
			return PlaybackParams{}, fmt.Errorf("%w: prebuffer must not be negative, got %dms", audio.ErrInvalidConfig, *o.PrebufferMs)
		}
		prebuffer = *o.PrebufferMs
	}

	priority := DefaultPriority
	if o.Priority != nil {
		priority = ClampPriority(*o.Priority)
	}

	id := uuid.New().String()
	name := o.Name
	if name == "" {
		name = "playback-" + id[:8]
	}

	return PlaybackParams{
		ID:          id,
		Name:        name,
		Device:      o.Device,
		Format:      f,
		BufferMs:    cfg.BufferMs,
		PrebufferMs: prebuffer,
		Priority:    priority,
	}, nil
}

// Resolve fills omitted fields from cfg and validates the result
func (o RecordingOptions) Resolve(cfg audio.Config) (RecordingParams, error) {
	cfg = cfg.WithDefaults()
	f, err := resolveFormat(cfg, o.SampleRate, o.Channels, o.Format)
	if err != nil {
		return RecordingParams{}, err
	}

	id := uuid.New().String()
	name := o.Name
	if name == "" {
		name = "recording-" + id[:8]
	}

	return RecordingParams{
		ID:       id,
		Name:     name,
		Device:   o.Device,
		Format:   f,
		BufferMs: cfg.BufferMs,
	}, nil
}

func resolveFormat(cfg audio.Config, rate, channels int, format audio.SampleFormat) (audio.Format, error) {
	if rate != 0 {
		cfg.SampleRate = rate
	}
	if channels != 0 {
		cfg.Channels = channels
	}
	if format != "" {
		cfg.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return audio.Format{}, err
	}
	return cfg.StreamFormat(), nil
}
