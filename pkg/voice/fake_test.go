// ABOUTME: In-memory backend for manager tests
// ABOUTME: Builds real streams over sinks and sources that never touch a device
package voice

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
)

type fakeBackend struct {
	name    string
	initErr error

	mu          sync.Mutex
	initCalls   int
	shutdowns   int
	initialized bool
	cfg         audio.Config
	streams     *backend.Registry
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name, streams: backend.NewRegistry()}
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) IsAvailable(ctx context.Context) bool { return b.initErr == nil }

func (b *fakeBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Pause: true, LiveVolume: true, Recording: true}
}

func (b *fakeBackend) Initialize(ctx context.Context, cfg audio.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls++
	if b.initErr != nil {
		return b.initErr
	}
	b.initialized = true
	b.cfg = cfg
	return nil
}

func (b *fakeBackend) Shutdown(ctx context.Context) error {
	err := b.streams.CloseAll(ctx)
	b.mu.Lock()
	b.shutdowns++
	b.initialized = false
	b.mu.Unlock()
	return err
}

func (b *fakeBackend) ready() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	return nil
}

func (b *fakeBackend) CreatePlaybackStream(ctx context.Context, params stream.PlaybackParams) (stream.Playback, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	pb := stream.NewPlayback(params, openNullSink, stream.Settings{Logger: zerolog.Nop()})
	return b.streams.TrackPlayback(pb), nil
}

func (b *fakeBackend) CreateRecordingStream(ctx context.Context, params stream.RecordingParams) (stream.Recording, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	rec := stream.NewRecording(params, openIdleSource, stream.Settings{Logger: zerolog.Nop()})
	return b.streams.TrackRecording(rec), nil
}

func (b *fakeBackend) ListPlaybackDevices(ctx context.Context) ([]audio.Device, error) {
	return []audio.Device{{ID: b.name + "-out", Name: "Speakers", IsDefault: true, SampleRate: 48000, Channels: 2}}, nil
}

func (b *fakeBackend) ListRecordingDevices(ctx context.Context) ([]audio.Device, error) {
	return []audio.Device{{ID: b.name + "-in", Name: "Microphone", IsDefault: true, SampleRate: 16000, Channels: 1}}, nil
}

func (b *fakeBackend) DefaultPlaybackDevice(ctx context.Context) (audio.Device, error) {
	devices, _ := b.ListPlaybackDevices(ctx)
	return devices[0], nil
}

func (b *fakeBackend) DefaultRecordingDevice(ctx context.Context) (audio.Device, error) {
	devices, _ := b.ListRecordingDevices(ctx)
	return devices[0], nil
}

func (b *fakeBackend) Latency() backend.Latency {
	return backend.Latency{InputMs: 5, OutputMs: 20, BufferMs: 100}
}

func (b *fakeBackend) BufferHealth() backend.BufferHealth { return b.streams.BufferHealth() }

func openNullSink(ctx context.Context, params stream.PlaybackParams, volume float64, r stream.Reporter) (stream.Sink, error) {
	return nullSink{}, nil
}

type nullSink struct{}

func (nullSink) Write(p []byte) (int, error)     { return len(p), nil }
func (nullSink) Drain(ctx context.Context) error { return nil }
func (nullSink) Pause() error                    { return nil }
func (nullSink) Resume() error                   { return nil }
func (nullSink) Close() error                    { return nil }
func (nullSink) Fill() float64                   { return 0.5 }
func (nullSink) LatencyMs() float64              { return 20 }

func openIdleSource(ctx context.Context, params stream.RecordingParams, r stream.Reporter) (stream.Source, error) {
	return &idleSource{done: make(chan struct{})}, nil
}

// idleSource captures nothing until closed
type idleSource struct {
	once sync.Once
	done chan struct{}
}

func (s *idleSource) Read(p []byte) (int, error) {
	<-s.done
	return 0, io.EOF
}

func (s *idleSource) Pause() error       { return nil }
func (s *idleSource) Resume() error      { return nil }
func (s *idleSource) LatencyMs() float64 { return 0 }

func (s *idleSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

var errMissing = errors.New("library not found")
