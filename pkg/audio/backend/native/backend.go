// ABOUTME: Native backend running streams on an in-process audio library
// ABOUTME: Negotiates a driver at Initialize and opens one device handle per activation
package native

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
)

// Name identifies this backend
const Name = "native"

// captureRingMs is how much captured audio the device ring holds
const captureRingMs = 500

// Backend plays and records through an in-process driver
type Backend struct {
	log          zerolog.Logger
	drainTimeout time.Duration
	factories    []DriverFactory

	mu          sync.Mutex
	cfg         audio.Config
	driver      Driver
	probed      *ProbeResult
	probedFor   audio.Format
	initialized bool

	streams *backend.Registry
}

// Option configures a Backend
type Option func(*Backend)

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(b *Backend) {
		b.log = log.With().Str("component", "native").Logger()
	}
}

// WithDrivers replaces the platform driver cascade
func WithDrivers(factories ...DriverFactory) Option {
	return func(b *Backend) { b.factories = factories }
}

// WithDrainTimeout bounds Drain on streams from this backend
func WithDrainTimeout(d time.Duration) Option {
	return func(b *Backend) { b.drainTimeout = d }
}

// New creates an uninitialized native backend
func New(opts ...Option) *Backend {
	b := &Backend{
		log:     zerolog.Nop(),
		cfg:     audio.DefaultConfig(),
		streams: backend.NewRegistry(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "native"
func (b *Backend) Name() string { return Name }

// IsAvailable probes the drivers once and keeps the result for Initialize
func (b *Backend) IsAvailable(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return true
	}
	return b.probeLocked(ctx).OK()
}

func (b *Backend) probeLocked(ctx context.Context) ProbeResult {
	if b.probed == nil {
		res := Probe(ctx, b.cfg.StreamFormat(), b.factories...)
		if res.OK() {
			b.log.Debug().Str("driver", res.Driver.Name()).Msg("native driver probed")
		} else {
			b.log.Debug().Err(res.Err).Msg("native probe failed")
		}
		b.probed = &res
		b.probedFor = b.cfg.StreamFormat()
	}
	return *b.probed
}

// Capabilities reports live volume, pause and whether the driver can capture
func (b *Backend) Capabilities() backend.Capabilities {
	b.mu.Lock()
	defer b.mu.Unlock()

	canCapture := false
	if b.driver != nil {
		canCapture = b.driver.CanCapture()
	} else if b.probed != nil && b.probed.OK() {
		canCapture = b.probed.Driver.CanCapture()
	}
	return backend.Capabilities{Pause: true, LiveVolume: true, Recording: canCapture}
}

// Initialize negotiates a driver. Calling it again is a no-op.
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

	if b.probed != nil && (!b.probed.OK() || b.probedFor != cfg.StreamFormat()) {
		// failures may be transient and drivers are bound to the probed layout
		if b.probed.OK() {
			_ = b.probed.Driver.Close()
		}
		b.probed = nil
	}
	b.cfg = cfg
	res := b.probeLocked(ctx)
	b.probed = nil
	if !res.OK() {
		return res.Err
	}

	b.driver = res.Driver
	b.initialized = true
	b.log.Info().Str("driver", res.Driver.Name()).Str("format", cfg.StreamFormat().String()).Msg("native backend ready")
	return nil
}

// Shutdown closes every stream and releases the driver
func (b *Backend) Shutdown(ctx context.Context) error {
	err := b.streams.CloseAll(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.driver != nil {
		if cerr := b.driver.Close(); cerr != nil {
			b.log.Warn().Err(cerr).Msg("driver close")
		}
		b.driver = nil
	}
	if b.probed != nil && b.probed.OK() {
		_ = b.probed.Driver.Close()
	}
	b.probed = nil
	b.initialized = false
	return err
}

func (b *Backend) current() (Driver, audio.Config, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, b.cfg, backend.ErrNotInitialized
	}
	return b.driver, b.cfg, nil
}

func (b *Backend) settings() stream.Settings {
	return stream.Settings{Logger: b.log, DrainTimeout: b.drainTimeout}
}

// CreatePlaybackStream returns a tracked stream that opens a device on activation
func (b *Backend) CreatePlaybackStream(ctx context.Context, params stream.PlaybackParams) (stream.Playback, error) {
	drv, _, err := b.current()
	if err != nil {
		return nil, err
	}
	pb := stream.NewPlayback(params, b.openPlayback(drv), b.settings())
	b.log.Debug().Str("stream", params.ID).Str("name", params.Name).Msg("playback stream created")
	return b.streams.TrackPlayback(pb), nil
}

// CreateRecordingStream returns a tracked capture stream, or an error when the driver cannot capture
func (b *Backend) CreateRecordingStream(ctx context.Context, params stream.RecordingParams) (stream.Recording, error) {
	drv, _, err := b.current()
	if err != nil {
		return nil, err
	}
	if !drv.CanCapture() {
		return nil, fmt.Errorf("%s driver: recording: %w", drv.Name(), stream.ErrUnsupported)
	}
	rec := stream.NewRecording(params, b.openRecording(drv), b.settings())
	b.log.Debug().Str("stream", params.ID).Str("name", params.Name).Msg("recording stream created")
	return b.streams.TrackRecording(rec), nil
}

func (b *Backend) openPlayback(drv Driver) stream.SinkOpener {
	return func(ctx context.Context, params stream.PlaybackParams, volume float64, r stream.Reporter) (stream.Sink, error) {
		// the ring holds the configured buffer plus the prebuffer burst
		capacityMs := params.BufferMs + params.PrebufferMs
		if capacityMs < 2*devicePeriodMs {
			capacityMs = 2 * devicePeriodMs
		}
		sink := newRingSink(params.Format, capacityMs, volume, r)

		h, err := drv.OpenPlayback(DeviceConfig{
			Device:   params.Device,
			Format:   params.Format,
			PeriodMs: devicePeriodMs,
		}, sink.fill)
		if err != nil {
			return nil, err
		}
		sink.drv, sink.handle = drv, h

		if err := drv.Start(h); err != nil {
			_ = drv.CloseHandle(h)
			return nil, err
		}
		go sink.report()
		return sink, nil
	}
}

func (b *Backend) openRecording(drv Driver) stream.SourceOpener {
	return func(ctx context.Context, params stream.RecordingParams, r stream.Reporter) (stream.Source, error) {
		src := newRingSource(params.Format, captureRingMs, r)

		h, err := drv.OpenCapture(DeviceConfig{
			Device:   params.Device,
			Format:   params.Format,
			PeriodMs: devicePeriodMs,
		}, src.deliver)
		if err != nil {
			return nil, err
		}
		src.drv, src.handle = drv, h

		if err := drv.Start(h); err != nil {
			_ = drv.CloseHandle(h)
			return nil, err
		}
		go src.report()
		return src, nil
	}
}

func (b *Backend) devices(kind DeviceKind) ([]audio.Device, audio.Config, error) {
	drv, cfg, err := b.current()
	if err != nil {
		return nil, cfg, err
	}
	devices, err := drv.Devices(kind)
	if err != nil {
		return nil, cfg, err
	}
	if len(devices) == 0 {
		devices = []audio.Device{backend.DefaultDevice(cfg)}
	}
	return devices, cfg, nil
}

// ListPlaybackDevices asks the driver for output devices
func (b *Backend) ListPlaybackDevices(ctx context.Context) ([]audio.Device, error) {
	devices, _, err := b.devices(KindPlayback)
	return devices, err
}

// ListRecordingDevices asks the driver for input devices
func (b *Backend) ListRecordingDevices(ctx context.Context) ([]audio.Device, error) {
	devices, _, err := b.devices(KindCapture)
	return devices, err
}

// DefaultPlaybackDevice picks the driver default output
func (b *Backend) DefaultPlaybackDevice(ctx context.Context) (audio.Device, error) {
	devices, cfg, err := b.devices(KindPlayback)
	if err != nil {
		return audio.Device{}, err
	}
	return backend.PickDefault(devices, cfg), nil
}

// DefaultRecordingDevice picks the driver default input
func (b *Backend) DefaultRecordingDevice(ctx context.Context) (audio.Device, error) {
	devices, cfg, err := b.devices(KindCapture)
	if err != nil {
		return audio.Device{}, err
	}
	return backend.PickDefault(devices, cfg), nil
}

// Latency reports the device period plus the deepest playback queue
func (b *Backend) Latency() backend.Latency {
	b.mu.Lock()
	bufferMs := float64(b.cfg.BufferMs)
	b.mu.Unlock()

	output := b.streams.MaxOutputLatencyMs()
	if output == 0 {
		output = devicePeriodMs
	}
	return backend.Latency{
		InputMs:  devicePeriodMs,
		OutputMs: output,
		BufferMs: bufferMs,
	}
}

// BufferHealth aggregates the open streams
func (b *Backend) BufferHealth() backend.BufferHealth {
	return b.streams.BufferHealth()
}
