// ABOUTME: Backend Port interface implemented by every audio backend
// ABOUTME: Declares capabilities plus latency and buffer health aggregates
package backend

import (
	"context"
	"errors"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

// ErrNotInitialized is returned when a stream is requested before Initialize
var ErrNotInitialized = errors.New("backend not initialized")

// Backend creates streams on one audio stack (native library or CLI tools)
type Backend interface {
	// Name identifies the backend ("native", "subprocess")
	Name() string

	// IsAvailable reports whether the backend can work on this host.
	// It may probe the system and must not panic.
	IsAvailable(ctx context.Context) bool

	Capabilities() Capabilities

	// Initialize prepares the backend with process defaults
	Initialize(ctx context.Context, cfg audio.Config) error

	// Shutdown closes every stream the backend created and releases it
	Shutdown(ctx context.Context) error

	CreatePlaybackStream(ctx context.Context, params stream.PlaybackParams) (stream.Playback, error)
	CreateRecordingStream(ctx context.Context, params stream.RecordingParams) (stream.Recording, error)

	ListPlaybackDevices(ctx context.Context) ([]audio.Device, error)
	ListRecordingDevices(ctx context.Context) ([]audio.Device, error)
	DefaultPlaybackDevice(ctx context.Context) (audio.Device, error)
	DefaultRecordingDevice(ctx context.Context) (audio.Device, error)

	Latency() Latency
	BufferHealth() BufferHealth
}

// Capabilities lists optional features a backend supports
type Capabilities struct {
	// Pause means Pause/Resume actually suspend output
	Pause bool
	// LiveVolume means SetVolume takes effect on the running activation
	LiveVolume bool
	// Recording means CreateRecordingStream is supported
	Recording bool
}

// Latency estimates end-to-end delays in milliseconds
type Latency struct {
	InputMs  float64
	OutputMs float64
	BufferMs float64
}

// BufferHealth aggregates health across a backend's streams
type BufferHealth struct {
	AverageFill    float64
	TotalUnderruns uint64
	TotalOverruns  uint64
	ActiveStreams  int
}

// DefaultDevice is reported when a backend cannot enumerate endpoints
func DefaultDevice(cfg audio.Config) audio.Device {
	return audio.Device{
		ID:         "default",
		Name:       "Default",
		IsDefault:  true,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	}
}

// PickDefault returns the device flagged as default, else the first one
func PickDefault(devices []audio.Device, cfg audio.Config) audio.Device {
	for _, d := range devices {
		if d.IsDefault {
			return d
		}
	}
	if len(devices) > 0 {
		return devices[0]
	}
	return DefaultDevice(cfg)
}
