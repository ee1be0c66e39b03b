// ABOUTME: Subprocess backend driving external CLI players and recorders
// ABOUTME: Resolves the tool cascade once and opens one process per stream activation
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
)

// Name identifies this backend
const Name = "subprocess"

var (
	// ErrNoPlayer means no playback tool from the cascade is installed
	ErrNoPlayer = errors.New("no playback tool available")

	// ErrNoRecorder means no recording tool from the cascade is installed
	ErrNoRecorder = errors.New("no recording tool available")
)

// Backend plays and records through external programs
type Backend struct {
	log          zerolog.Logger
	lookPath     LookPathFunc
	command      CommandFunc
	drainTimeout time.Duration
	players      []candidate
	recorders    []candidate

	mu          sync.Mutex
	cfg         audio.Config
	initialized bool
	player      tool

	streams *backend.Registry
}

// Option configures a Backend
type Option func(*Backend)

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(b *Backend) {
		b.log = log.With().Str("component", "subprocess").Logger()
	}
}

// WithLookPath replaces exec.LookPath for tool discovery
func WithLookPath(fn LookPathFunc) Option {
	return func(b *Backend) { b.lookPath = fn }
}

// WithCommand replaces exec.CommandContext for launching tools
func WithCommand(fn CommandFunc) Option {
	return func(b *Backend) { b.command = fn }
}

// WithDrainTimeout bounds Drain on streams from this backend
func WithDrainTimeout(d time.Duration) Option {
	return func(b *Backend) { b.drainTimeout = d }
}

// New creates an uninitialized subprocess backend
func New(opts ...Option) *Backend {
	b := &Backend{
		log:       zerolog.Nop(),
		lookPath:  exec.LookPath,
		command:   exec.CommandContext,
		players:   defaultPlayers,
		recorders: defaultRecorders,
		cfg:       audio.DefaultConfig(),
		streams:   backend.NewRegistry(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "subprocess"
func (b *Backend) Name() string { return Name }

// IsAvailable reports whether any playback tool is installed
func (b *Backend) IsAvailable(ctx context.Context) bool {
	_, ok := b.find(b.players)
	return ok
}

// Capabilities depends on the tools found; volume applies at the next activation
func (b *Backend) Capabilities() backend.Capabilities {
	_, canRecord := b.find(b.recorders)
	return backend.Capabilities{
		Pause:      pauseSupported,
		LiveVolume: false,
		Recording:  canRecord,
	}
}

func (b *Backend) find(cascade []candidate) (tool, bool) {
	for _, c := range cascade {
		if path, err := b.lookPath(c.name); err == nil {
			return tool{name: c.name, path: path, kind: c.kind}, true
		}
	}
	return tool{}, false
}

// Initialize resolves the playback tool. Calling it again is a no-op.
func (b *Backend) Initialize(ctx context.Context, cfg audio.Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	player, ok := b.find(b.players)
	if !ok {
		return fmt.Errorf("%w (tried %s)", ErrNoPlayer, candidateNames(b.players))
	}

	b.cfg = cfg
	b.player = player
	b.initialized = true
	b.log.Info().Str("player", player.String()).Str("format", cfg.StreamFormat().String()).Msg("subprocess backend ready")
	return nil
}

// Shutdown closes every open stream and forgets the resolved tools
func (b *Backend) Shutdown(ctx context.Context) error {
	err := b.streams.CloseAll(ctx)

	b.mu.Lock()
	b.initialized = false
	b.player = tool{}
	b.mu.Unlock()

	return err
}

func (b *Backend) config() audio.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

func (b *Backend) settings() stream.Settings {
	return stream.Settings{Logger: b.log, DrainTimeout: b.drainTimeout}
}

// CreatePlaybackStream returns an idle stream. Each activation spawns a fresh
// player, so volume changes apply from the next activation on.
func (b *Backend) CreatePlaybackStream(ctx context.Context, params stream.PlaybackParams) (stream.Playback, error) {
	b.mu.Lock()
	initialized, player := b.initialized, b.player
	b.mu.Unlock()

	if !initialized {
		return nil, backend.ErrNotInitialized
	}

	pb := stream.NewPlayback(params, b.openPlayback(player), b.settings())
	b.log.Debug().Str("stream", params.ID).Str("name", params.Name).Msg("playback stream created")
	return b.streams.TrackPlayback(pb), nil
}

// CreateRecordingStream returns an idle recording; capture starts on first Read
func (b *Backend) CreateRecordingStream(ctx context.Context, params stream.RecordingParams) (stream.Recording, error) {
	b.mu.Lock()
	initialized := b.initialized
	b.mu.Unlock()

	if !initialized {
		return nil, backend.ErrNotInitialized
	}

	recorder, ok := b.find(b.recorders)
	if !ok {
		return nil, fmt.Errorf("%w (tried %s)", ErrNoRecorder, candidateNames(b.recorders))
	}

	rec := stream.NewRecording(params, b.openRecording(recorder), b.settings())
	b.log.Debug().Str("stream", params.ID).Str("recorder", recorder.String()).Msg("recording stream created")
	return b.streams.TrackRecording(rec), nil
}

// ListPlaybackDevices lists sinks via pactl, or a single default device
func (b *Backend) ListPlaybackDevices(ctx context.Context) ([]audio.Device, error) {
	return b.listDevices(ctx, sinkDevices)
}

// ListRecordingDevices lists sources via pactl, or a single default device
func (b *Backend) ListRecordingDevices(ctx context.Context) ([]audio.Device, error) {
	return b.listDevices(ctx, sourceDevices)
}

// DefaultPlaybackDevice picks the default sink
func (b *Backend) DefaultPlaybackDevice(ctx context.Context) (audio.Device, error) {
	devices, err := b.ListPlaybackDevices(ctx)
	if err != nil {
		return audio.Device{}, err
	}
	return backend.PickDefault(devices, b.config()), nil
}

// DefaultRecordingDevice picks the default source
func (b *Backend) DefaultRecordingDevice(ctx context.Context) (audio.Device, error) {
	devices, err := b.ListRecordingDevices(ctx)
	if err != nil {
		return audio.Device{}, err
	}
	return backend.PickDefault(devices, b.config()), nil
}

// Latency is the requested tool buffer plus the default prebuffer
func (b *Backend) Latency() backend.Latency {
	bufferMs := float64(b.config().BufferMs)
	return backend.Latency{
		InputMs:  bufferMs,
		OutputMs: bufferMs + stream.DefaultPrebufferMs,
		BufferMs: bufferMs,
	}
}

// BufferHealth aggregates the open streams
func (b *Backend) BufferHealth() backend.BufferHealth {
	return b.streams.BufferHealth()
}
