// ABOUTME: In-memory sinks and sources for stream tests
// ABOUTME: Record every interaction so lifecycle behavior can be asserted
package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

type fakeSink struct {
	mu       sync.Mutex
	data     []byte
	writes   int
	closed   bool
	paused   bool
	volume   float64
	drained  bool
	pauseErr error

	// blockDrain makes Drain wait for ctx or Close
	blockDrain bool
	closeCh    chan struct{}
}

func newFakeSink(volume float64) *fakeSink {
	return &fakeSink{volume: volume, closeCh: make(chan struct{})}
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.data = append(s.data, p...)
	s.writes++
	return len(p), nil
}

func (s *fakeSink) Drain(ctx context.Context) error {
	s.mu.Lock()
	block := s.blockDrain
	s.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closeCh:
			return io.ErrClosedPipe
		}
	}

	s.mu.Lock()
	s.drained = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pauseErr != nil {
		return s.pauseErr
	}
	s.paused = true
	return nil
}

func (s *fakeSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pauseErr != nil {
		return s.pauseErr
	}
	s.paused = false
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
	}
	return nil
}

func (s *fakeSink) Fill() float64      { return 0.5 }
func (s *fakeSink) LatencyMs() float64 { return 42 }

func (s *fakeSink) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *fakeSink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOutput opens fakeSinks and remembers them per activation
type fakeOutput struct {
	mu        sync.Mutex
	sinks     []*fakeSink
	reporters []Reporter
	volumes   []float64
	openErr   error
	configure func(*fakeSink)
}

func (o *fakeOutput) open(ctx context.Context, params PlaybackParams, volume float64, r Reporter) (Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	s := newFakeSink(volume)
	if o.configure != nil {
		o.configure(s)
	}
	o.sinks = append(o.sinks, s)
	o.reporters = append(o.reporters, r)
	o.volumes = append(o.volumes, volume)
	return s, nil
}

func (o *fakeOutput) activations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sinks)
}

func (o *fakeOutput) last() (*fakeSink, Reporter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sinks) == 0 {
		return nil, nil
	}
	return o.sinks[len(o.sinks)-1], o.reporters[len(o.reporters)-1]
}

// fakeSource serves chunks pushed by the test, then endErr
type fakeSource struct {
	chunks chan []byte
	endErr error
	once   sync.Once
	done   chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan []byte, 64), done: make(chan struct{})}
}

func (s *fakeSource) Read(p []byte) (int, error) {
	select {
	case c, ok := <-s.chunks:
		if !ok {
			if s.endErr != nil {
				return 0, s.endErr
			}
			return 0, io.EOF
		}
		return copy(p, c), nil
	case <-s.done:
		return 0, io.EOF
	}
}

func (s *fakeSource) Pause() error       { return nil }
func (s *fakeSource) Resume() error      { return nil }
func (s *fakeSource) LatencyMs() float64 { return 5 }

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type fakeInput struct {
	mu      sync.Mutex
	sources []*fakeSource
	openErr error
}

func (in *fakeInput) open(ctx context.Context, params RecordingParams, r Reporter) (Source, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.openErr != nil {
		return nil, in.openErr
	}
	s := newFakeSource()
	in.sources = append(in.sources, s)
	return s, nil
}

func (in *fakeInput) last() *fakeSource {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.sources) == 0 {
		return nil
	}
	return in.sources[len(in.sources)-1]
}

// eventLog collects events from Subscribe
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Name())
	}
	return out
}

func (l *eventLog) count(name string) int {
	n := 0
	for _, got := range l.names() {
		if got == name {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")

// monoFloat48k is the layout used by most tests: 48000 Hz, mono, float32
func monoFloat48k() audio.Format {
	return audio.Format{SampleRate: 48000, Channels: 1, Sample: audio.FormatFloat32LE}
}

func testPlaybackParams(prebufferMs int) PlaybackParams {
	return PlaybackParams{
		ID:          "pb-1",
		Name:        "test",
		Format:      monoFloat48k(),
		BufferMs:    100,
		PrebufferMs: prebufferMs,
		Priority:    DefaultPriority,
	}
}
