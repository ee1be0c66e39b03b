// ABOUTME: Backend-agnostic recording stream with a bounded capture queue
// ABOUTME: A reader goroutine pulls PCM from the Source; Read hands it out in caller-sized pieces
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/rs/zerolog"
)

const (
	// captureChunkMs is the size of each read from the source
	captureChunkMs = 20

	// maxQueueMs caps unread capture before the oldest audio is dropped
	maxQueueMs = 10_000
)

// Recording is a readable PCM input stream
type Recording interface {
	ID() string
	Name() string
	Format() audio.Format
	State() State

	// Start acquires the input; Read starts it implicitly
	Start(ctx context.Context) error
	// Read returns up to size bytes of captured PCM, blocking until some is
	// available. It returns io.EOF once capture stopped and the queue is empty.
	Read(ctx context.Context, size int) ([]byte, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Close() error

	Health() Health
	Subscribe(h Handler) (unsubscribe func())
}

type recording struct {
	params RecordingParams
	open   SourceOpener
	log    zerolog.Logger

	events emitter
	stats  counters

	startMu sync.Mutex

	mu       sync.Mutex
	state    State
	closed   bool
	source   Source
	gen      uint64
	queue    [][]byte
	queued   int
	maxQueue int

	notify chan struct{}
	done   chan struct{}
}

// NewRecording creates an idle recording stream that activates sources via open
func NewRecording(params RecordingParams, open SourceOpener, settings Settings) Recording {
	maxQueue := params.Format.BytesFor(maxQueueMs)
	if fs := params.Format.FrameSize(); maxQueue < fs {
		maxQueue = fs
	}
	return &recording{
		params:   params,
		open:     open,
		log:      settings.Logger.With().Str("stream", params.ID).Str("name", params.Name).Logger(),
		state:    StateIdle,
		maxQueue: maxQueue,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (r *recording) ID() string           { return r.params.ID }
func (r *recording) Name() string         { return r.params.Name }
func (r *recording) Format() audio.Format { return r.params.Format }

func (r *recording) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *recording) Subscribe(h Handler) func() {
	return r.events.subscribe(h)
}

func (r *recording) Start(ctx context.Context) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrStreamClosed
	}
	if r.state.Active() {
		r.mu.Unlock()
		return nil
	}
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	src, err := r.open(ctx, r.params, &sourceReporter{r: r, gen: gen})

	r.mu.Lock()
	if err != nil {
		if r.gen == gen && !r.closed {
			r.state = StateError
		}
		r.mu.Unlock()
		return fmt.Errorf("activate %s: %w", r.params.Name, err)
	}
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		_ = src.Close()
		return ErrStreamClosed
	}
	r.source = src
	r.state = StateRunning
	r.mu.Unlock()

	r.log.Debug().Msg("capture started")
	r.events.emit(Started{ID: r.params.ID})

	go r.pump(src, gen)
	return nil
}

// pump moves captured audio into the queue until the source ends
func (r *recording) pump(src Source, gen uint64) {
	size := r.params.Format.BytesFor(captureChunkMs)
	if fs := r.params.Format.FrameSize(); size < fs {
		size = fs
	}

	for {
		buf := make([]byte, size)
		n, err := src.Read(buf)
		if n > 0 {
			r.push(gen, buf[:n])
		}
		if err != nil {
			r.sourceEnded(gen, err)
			return
		}
	}
}

func (r *recording) push(gen uint64, chunk []byte) {
	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, chunk)
	r.queued += len(chunk)

	dropped := false
	for r.queued > r.maxQueue && len(r.queue) > 1 {
		r.queued -= len(r.queue[0])
		r.queue[0] = nil
		r.queue = r.queue[1:]
		dropped = true
	}
	r.mu.Unlock()

	if dropped {
		r.stats.overruns.Add(1)
	}
	r.wake()
}

func (r *recording) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recording) sourceEnded(gen uint64, err error) {
	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		return
	}
	src, _ := r.endActivationLocked()
	r.mu.Unlock()

	var events []Event
	if !errors.Is(err, io.EOF) {
		r.log.Warn().Err(err).Msg("capture ended with error")
		events = append(events, ErrorEvent{ID: r.params.ID, Err: err})
	}
	r.closeSource(src)
	r.events.emit(append(events, Stopped{ID: r.params.ID})...)
}

func (r *recording) Read(ctx context.Context, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: read size must be positive, got %d", audio.ErrInvalidConfig, size)
	}

	r.mu.Lock()
	idle := r.state == StateIdle && !r.closed
	r.mu.Unlock()
	if idle {
		if err := r.Start(ctx); err != nil {
			return nil, err
		}
	}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrStreamClosed
		}
		if len(r.queue) > 0 {
			head := r.queue[0]
			var out []byte
			if len(head) > size {
				out = head[:size:size]
				r.queue[0] = head[size:]
			} else {
				out = head
				r.queue[0] = nil
				r.queue = r.queue[1:]
			}
			r.queued -= len(out)
			r.mu.Unlock()
			return out, nil
		}
		if !r.state.Active() {
			r.mu.Unlock()
			return nil, io.EOF
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
		case <-r.notify:
		}
	}
}

func (r *recording) Pause(ctx context.Context) error {
	return r.toggle(StateRunning, StatePaused, Source.Pause, Paused{ID: r.params.ID})
}

func (r *recording) Resume(ctx context.Context) error {
	return r.toggle(StatePaused, StateRunning, Source.Resume, Resumed{ID: r.params.ID})
}

func (r *recording) toggle(from, to State, op func(Source) error, ev Event) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrStreamClosed
	}
	if r.state != from {
		r.mu.Unlock()
		return nil
	}
	src, gen := r.source, r.gen
	r.mu.Unlock()

	if err := op(src); err != nil {
		r.log.Debug().Err(err).Str("op", ev.Name()).Msg("best-effort transition failed")
		return nil
	}

	r.mu.Lock()
	changed := r.gen == gen && r.state == from
	if changed {
		r.state = to
	}
	r.mu.Unlock()

	if changed {
		r.events.emit(ev)
	}
	return nil
}

func (r *recording) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	src, changed := r.endActivationLocked()
	r.mu.Unlock()

	r.closeSource(src)
	if changed {
		r.events.emit(Stopped{ID: r.params.ID})
	}
	return nil
}

func (r *recording) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	src, _ := r.endActivationLocked()
	r.queue = nil
	r.queued = 0
	close(r.done)
	r.mu.Unlock()

	r.closeSource(src)
	r.log.Debug().Msg("stream closed")
	r.events.emit(Stopped{ID: r.params.ID})
	return nil
}

// endActivationLocked keeps queued audio readable until it is consumed
func (r *recording) endActivationLocked() (Source, bool) {
	changed := r.state != StateStopped
	src := r.source
	r.source = nil
	r.gen++
	r.state = StateStopped
	r.wake()
	return src, changed
}

func (r *recording) closeSource(src Source) {
	if src == nil {
		return
	}
	if err := src.Close(); err != nil {
		r.log.Debug().Err(err).Msg("source close")
	}
}

func (r *recording) Health() Health {
	r.mu.Lock()
	state, src, queued := r.state, r.source, r.queued
	r.mu.Unlock()

	h := Health{
		State:     state,
		FillLevel: clampUnit(float64(queued) / float64(r.maxQueue)),
		Underruns: r.stats.underruns.Load(),
		Overruns:  r.stats.overruns.Load(),
		LatencyMs: r.params.Format.DurationMs(queued),
	}
	if src != nil {
		h.LatencyMs += src.LatencyMs()
	}
	return h
}

// sourceReporter binds source callbacks to one activation.
// Sources report termination through Read, so Exited only surfaces the error.
type sourceReporter struct {
	r   *recording
	gen uint64
}

func (s *sourceReporter) stale() bool {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return s.r.closed || s.r.gen != s.gen
}

func (s *sourceReporter) Underrun() {
	if !s.stale() {
		s.r.stats.underruns.Add(1)
	}
}

func (s *sourceReporter) Overrun() {
	if !s.stale() {
		s.r.stats.overruns.Add(1)
	}
}

func (s *sourceReporter) Exited(err error) {
	if err != nil && !s.stale() {
		s.r.events.emit(ErrorEvent{ID: s.r.params.ID, Err: err})
	}
}

// Chunks streams captured audio in pieces of at most size bytes until the
// recording ends, fails or ctx is cancelled
func Chunks(ctx context.Context, rec Recording, size int) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			chunk, err := rec.Read(ctx, size)
			if err != nil {
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
