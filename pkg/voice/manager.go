// ABOUTME: Audio buffer manager: backend selection, stream tracking and ducking
// ABOUTME: The single entry point callers use to create playback and recording streams
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend/native"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend/subprocess"
	"github.com/Sendspin/sendspin-voice/pkg/audio/ducking"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoBackend means no audio backend could be initialized
	ErrNoBackend = errors.New("no audio backend available")

	// ErrUnknownStream is returned for ids the manager does not track
	ErrUnknownStream = errors.New("unknown stream")
)

type playbackEntry struct {
	stream      stream.Playback
	priority    int
	unsubscribe func()
}

type recordingEntry struct {
	stream      stream.Recording
	unsubscribe func()
}

// Manager owns the active backend, every stream created through it and the
// ducking coordinator. Construct one per process at the composition root.
type Manager struct {
	log          zerolog.Logger
	native       backend.Backend
	subprocess   backend.Backend
	drainTimeout time.Duration
	ducking      *ducking.Coordinator

	// initMu serializes backend selection
	initMu sync.Mutex

	mu          sync.Mutex
	cfg         audio.Config
	active      backend.Backend
	initialized bool
	playback    map[string]*playbackEntry
	recording   map[string]*recordingEntry
}

// Option configures a Manager
type Option func(*Manager)

// WithConfig sets the defaults used by Initialize and stream creation
func WithConfig(cfg audio.Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithLogger sets the logger passed to the manager and the default backends
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithNativeBackend replaces the native backend
func WithNativeBackend(b backend.Backend) Option {
	return func(m *Manager) { m.native = b }
}

// WithSubprocessBackend replaces the subprocess backend
func WithSubprocessBackend(b backend.Backend) Option {
	return func(m *Manager) { m.subprocess = b }
}

// WithDrainTimeout bounds Drain on streams from the default backends
func WithDrainTimeout(d time.Duration) Option {
	return func(m *Manager) { m.drainTimeout = d }
}

// New creates an uninitialized manager
func New(opts ...Option) *Manager {
	m := &Manager{
		log:       zerolog.Nop(),
		cfg:       audio.DefaultConfig(),
		playback:  make(map[string]*playbackEntry),
		recording: make(map[string]*recordingEntry),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.native == nil {
		m.native = native.New(native.WithLogger(m.log), native.WithDrainTimeout(m.drainTimeout))
	}
	if m.subprocess == nil {
		m.subprocess = subprocess.New(subprocess.WithLogger(m.log), subprocess.WithDrainTimeout(m.drainTimeout))
	}
	m.ducking = ducking.New(m.log)
	m.log = m.log.With().Str("component", "manager").Logger()
	return m
}

// Initialize selects and initializes a backend. With a nil cfg the manager's
// current config is used. Calling it again after success is a no-op.
func (m *Manager) Initialize(ctx context.Context, cfg *audio.Config) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	if cfg != nil {
		m.cfg = *cfg
	}
	c := m.cfg.WithDefaults()
	m.mu.Unlock()

	if err := c.Validate(); err != nil {
		return err
	}

	var candidates []backend.Backend
	switch c.Backend {
	case audio.BackendNative:
		candidates = []backend.Backend{m.native}
	case audio.BackendSubprocess:
		candidates = []backend.Backend{m.subprocess}
	default:
		candidates = []backend.Backend{m.native, m.subprocess}
	}

	var errs []error
	for _, b := range candidates {
		if err := b.Initialize(ctx, c); err != nil {
			m.log.Debug().Err(err).Str("backend", b.Name()).Msg("backend unavailable")
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}

		m.mu.Lock()
		m.cfg = c
		m.active = b
		m.initialized = true
		m.mu.Unlock()

		m.log.Info().
			Str("backend", b.Name()).
			Str("preference", string(c.Backend)).
			Str("format", c.StreamFormat().String()).
			Msg("audio backend selected")
		return nil
	}

	return fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

func (m *Manager) ensureInitialized(ctx context.Context) (backend.Backend, audio.Config, error) {
	if err := m.Initialize(ctx, nil); err != nil {
		return nil, audio.Config{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		// shut down between Initialize and here
		return nil, audio.Config{}, ErrNoBackend
	}
	return m.active, m.cfg, nil
}

// CreatePlaybackStream creates a playback stream on the active backend and
// registers it for ducking at its priority
func (m *Manager) CreatePlaybackStream(ctx context.Context, opts stream.PlaybackOptions) (stream.Playback, error) {
	b, cfg, err := m.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	params, err := opts.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	pb, err := b.CreatePlaybackStream(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create playback stream %s: %w", params.Name, err)
	}

	entry := &playbackEntry{stream: pb, priority: params.Priority}
	entry.unsubscribe = pb.Subscribe(func(ev stream.Event) {
		switch ev.(type) {
		case stream.Started:
			m.trackPlayback(entry)
		case stream.Stopped:
			m.releasePlayback(pb.ID())
		}
	})
	m.trackPlayback(entry)

	m.log.Debug().Str("stream", pb.ID()).Str("name", params.Name).Int("priority", params.Priority).Msg("playback stream created")
	return pb, nil
}

// trackPlayback registers a new stream, or one a later write reactivated.
// The coordinator is updated under mu so registry and ducking never disagree.
func (m *Manager) trackPlayback(e *playbackEntry) {
	id := e.stream.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playback[id]; ok {
		return
	}
	m.playback[id] = e
	m.ducking.AddStream(e.stream, e.priority)
}

// releasePlayback forgets a stopped stream; duplicate Stopped events are harmless
func (m *Manager) releasePlayback(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playback[id]; !ok {
		return
	}
	delete(m.playback, id)
	m.ducking.RemoveStream(id)
}

// CreateRecordingStream creates a recording stream on the active backend
func (m *Manager) CreateRecordingStream(ctx context.Context, opts stream.RecordingOptions) (stream.Recording, error) {
	b, cfg, err := m.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	params, err := opts.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	rec, err := b.CreateRecordingStream(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create recording stream %s: %w", params.Name, err)
	}

	entry := &recordingEntry{stream: rec}
	entry.unsubscribe = rec.Subscribe(func(ev stream.Event) {
		switch ev.(type) {
		case stream.Started:
			m.trackRecording(entry)
		case stream.Stopped:
			m.mu.Lock()
			delete(m.recording, rec.ID())
			m.mu.Unlock()
		}
	})
	m.trackRecording(entry)

	m.log.Debug().Str("stream", rec.ID()).Str("name", params.Name).Msg("recording stream created")
	return rec, nil
}

func (m *Manager) trackRecording(e *recordingEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording[e.stream.ID()] = e
}

// SetDuckingStrategy changes the ducking policy and reapplies volumes now
func (m *Manager) SetDuckingStrategy(strategy ducking.Strategy, duckLevel ...float64) {
	m.ducking.SetStrategy(strategy, duckLevel...)
}

// UpdatePriority changes the ducking priority of an active playback stream
func (m *Manager) UpdatePriority(id string, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.playback[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, id)
	}
	e.priority = stream.ClampPriority(priority)
	m.ducking.UpdatePriority(id, e.priority)
	return nil
}

// DuckingState returns the coordinator's registry for diagnostics
func (m *Manager) DuckingState() []ducking.StreamInfo {
	return m.ducking.Streams()
}

// DuckingStrategy returns the active ducking strategy and level
func (m *Manager) DuckingStrategy() (ducking.Strategy, float64) {
	return m.ducking.Strategy(), m.ducking.DuckLevel()
}

// ListPlaybackDevices initializes the manager if needed and lists outputs
func (m *Manager) ListPlaybackDevices(ctx context.Context) ([]audio.Device, error) {
	b, _, err := m.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	return b.ListPlaybackDevices(ctx)
}

// ListRecordingDevices initializes the manager if needed and lists inputs
func (m *Manager) ListRecordingDevices(ctx context.Context) ([]audio.Device, error) {
	b, _, err := m.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	return b.ListRecordingDevices(ctx)
}

func (m *Manager) backend() backend.Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Latency reports the active backend's latency, or zeros without a backend
func (m *Manager) Latency() backend.Latency {
	if b := m.backend(); b != nil {
		return b.Latency()
	}
	return backend.Latency{}
}

// BufferHealth reports the active backend's buffer health, or zeros without a backend
func (m *Manager) BufferHealth() backend.BufferHealth {
	if b := m.backend(); b != nil {
		return b.BufferHealth()
	}
	return backend.BufferHealth{}
}

// Capabilities reports the active backend's optional features
func (m *Manager) Capabilities() backend.Capabilities {
	if b := m.backend(); b != nil {
		return b.Capabilities()
	}
	return backend.Capabilities{}
}

// ActivePlaybackCount is the number of playback streams not yet stopped
func (m *Manager) ActivePlaybackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.playback)
}

// ActiveRecordingCount is the number of recording streams not yet stopped
func (m *Manager) ActiveRecordingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recording)
}

// BackendName returns the active backend's name, or "" before Initialize
func (m *Manager) BackendName() string {
	if b := m.backend(); b != nil {
		return b.Name()
	}
	return ""
}

// IsInitialized reports whether a backend has been selected
func (m *Manager) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Config returns the defaults streams are resolved against
func (m *Manager) Config() audio.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.WithDefaults()
}

// Shutdown closes every stream, shuts the backend down and resets the manager
// so Initialize can run again. It is a no-op when already shut down.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if !m.initialized && len(m.playback) == 0 && len(m.recording) == 0 {
		m.mu.Unlock()
		return nil
	}
	playback, recording := m.playback, m.recording
	m.playback = make(map[string]*playbackEntry)
	m.recording = make(map[string]*recordingEntry)
	b := m.active
	m.active = nil
	m.initialized = false
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for id, e := range playback {
		m.ducking.RemoveStream(id)
		g.Go(closeEntry(e.stream.Close, e.unsubscribe))
	}
	for _, e := range recording {
		g.Go(closeEntry(e.stream.Close, e.unsubscribe))
	}
	err := g.Wait()

	if b != nil {
		if serr := b.Shutdown(ctx); serr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown %s: %w", b.Name(), serr))
		}
	}

	m.log.Info().Int("playback", len(playback)).Int("recording", len(recording)).Msg("audio manager shut down")
	return err
}

func closeEntry(closeFn func() error, unsubscribe func()) func() error {
	return func() error {
		defer func() {
			if unsubscribe != nil {
				unsubscribe()
			}
		}()
		return closeFn()
	}
}
