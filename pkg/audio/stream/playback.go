// ABOUTME: Backend-agnostic playback stream with prebuffering and lifecycle
// ABOUTME: Drives a Sink through idle, prebuffering, running, paused, draining and stopped
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/rs/zerolog"
)

// Playback is a writable PCM output stream
type Playback interface {
	ID() string
	Name() string
	Format() audio.Format
	Priority() int
	State() State

	// Write queues PCM for output. While prebuffering, the write that reaches
	// the prebuffer target acquires the output and flushes everything queued
	// so far, in order, before returning.
	Write(ctx context.Context, p []byte) error
	// Prebuffer accumulates PCM without ever starting the output
	Prebuffer(ctx context.Context, p []byte) error
	// Start acquires the output now and flushes anything prebuffered
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	// Drain waits for queued audio to be played, bounded by the drain timeout
	Drain(ctx context.Context) error
	// Stop ends the current activation; a later Write starts a new one
	Stop(ctx context.Context) error
	// Close stops the stream for good. It is idempotent.
	Close() error

	SetVolume(v float64)
	Volume() float64
	Health() Health
	Subscribe(h Handler) (unsubscribe func())
}

// Settings tune behavior shared by every backend
type Settings struct {
	Logger       zerolog.Logger
	DrainTimeout time.Duration
}

func (s Settings) drainTimeout() time.Duration {
	if s.DrainTimeout <= 0 {
		return DefaultDrainTimeout
	}
	return s.DrainTimeout
}

// ClampVolume bounds v to [0, 1]; NaN is treated as silence
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type playback struct {
	params       PlaybackParams
	open         SinkOpener
	log          zerolog.Logger
	drainTimeout time.Duration

	events emitter
	stats  counters

	// writeMu keeps writes, flushes and drains in submission order
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	closed       bool
	volume       float64
	pending      [][]byte
	pendingBytes int
	sink         Sink
	gen          uint64
	draining     bool
	lastErr      error
}

// NewPlayback creates an idle playback stream that activates sinks via open
func NewPlayback(params PlaybackParams, open SinkOpener, settings Settings) Playback {
	return &playback{
		params:       params,
		open:         open,
		log:          settings.Logger.With().Str("stream", params.ID).Str("name", params.Name).Logger(),
		drainTimeout: settings.drainTimeout(),
		state:        StateIdle,
		volume:       1.0,
	}
}

func (p *playback) ID() string           { return p.params.ID }
func (p *playback) Name() string         { return p.params.Name }
func (p *playback) Format() audio.Format { return p.params.Format }
func (p *playback) Priority() int        { return p.params.Priority }

func (p *playback) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *playback) Subscribe(h Handler) func() {
	return p.events.subscribe(h)
}

func (p *playback) Write(ctx context.Context, data []byte) error {
	return p.write(ctx, data, true)
}

func (p *playback) Prebuffer(ctx context.Context, data []byte) error {
	return p.write(ctx, data, false)
}

func (p *playback) write(ctx context.Context, data []byte, autoStart bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// a drain holds writeMu until it completes
	p.mu.Lock()
	draining := p.state == StateDraining
	p.mu.Unlock()
	if draining {
		return fmt.Errorf("%w: cannot write while draining", ErrInvalidState)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrStreamClosed
	}

	switch p.state {
	case StateRunning, StatePaused:
		sink, gen := p.sink, p.gen
		p.mu.Unlock()
		return p.writeSink(sink, gen, data)
	case StateDraining:
		p.mu.Unlock()
		return fmt.Errorf("%w: cannot write while draining", ErrInvalidState)
	case StateIdle, StateStopped, StateError:
		p.state = StatePrebuffering
	}

	if len(data) > 0 {
		p.pending = append(p.pending, append([]byte(nil), data...))
		p.pendingBytes += len(data)
	}
	reached := p.pendingBytes >= p.params.PrebufferBytes()
	p.mu.Unlock()

	if autoStart && reached {
		return p.activate(ctx)
	}
	return nil
}

// activate acquires a sink and flushes the prebuffer. Caller holds writeMu.
func (p *playback) activate(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrStreamClosed
	}
	if p.state.Active() {
		p.mu.Unlock()
		return nil
	}
	chunks := p.pending
	buffered := p.pendingBytes
	p.pending = nil
	p.pendingBytes = 0
	p.gen++
	gen := p.gen
	volume := p.volume
	p.mu.Unlock()

	sink, err := p.open(ctx, p.params, volume, &reporter{p: p, gen: gen})

	p.mu.Lock()
	if err != nil {
		if p.gen == gen && !p.closed {
			// keep the audio so a retry can still play it
			p.pending = chunks
			p.pendingBytes = buffered
			p.state = StateError
			p.lastErr = err
		}
		p.mu.Unlock()
		return fmt.Errorf("activate %s: %w", p.params.Name, err)
	}
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		_ = sink.Close()
		return ErrStreamClosed
	}
	p.sink = sink
	p.state = StateRunning
	p.lastErr = nil
	p.mu.Unlock()

	p.log.Debug().Int("prebuffered_bytes", buffered).Float64("volume", volume).Msg("stream started")
	p.events.emit(Started{ID: p.params.ID})

	for _, chunk := range chunks {
		if err := p.writeSink(sink, gen, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p *playback) writeSink(sink Sink, gen uint64, data []byte) error {
	for len(data) > 0 {
		n, err := sink.Write(data)
		if err != nil {
			if p.stale(gen) {
				return ErrStreamClosed
			}
			return fmt.Errorf("write %s: %w", p.params.Name, err)
		}
		if n == 0 {
			return fmt.Errorf("write %s: %w", p.params.Name, io.ErrShortWrite)
		}
		data = data[n:]
	}
	return nil
}

func (p *playback) stale(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || p.gen != gen
}

func (p *playback) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrStreamClosed
	}
	if p.state.Active() {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.activate(ctx)
}

func (p *playback) Pause(ctx context.Context) error {
	return p.toggle(StateRunning, StatePaused, Sink.Pause, Paused{ID: p.params.ID})
}

func (p *playback) Resume(ctx context.Context) error {
	return p.toggle(StatePaused, StateRunning, Sink.Resume, Resumed{ID: p.params.ID})
}

// toggle performs a best-effort pause or resume. Failures are logged and swallowed.
func (p *playback) toggle(from, to State, op func(Sink) error, ev Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrStreamClosed
	}
	if p.state != from {
		p.mu.Unlock()
		return nil
	}
	sink, gen := p.sink, p.gen
	p.mu.Unlock()

	if err := op(sink); err != nil {
		p.log.Debug().Err(err).Str("op", ev.Name()).Msg("best-effort transition failed")
		return nil
	}

	p.mu.Lock()
	changed := p.gen == gen && p.state == from
	if changed {
		p.state = to
	}
	p.mu.Unlock()

	if changed {
		p.events.emit(ev)
	}
	return nil
}

func (p *playback) Drain(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrStreamClosed
	}
	state, lastErr := p.state, p.lastErr
	p.mu.Unlock()

	switch state {
	case StateIdle, StateStopped:
		return nil
	case StateError:
		return fmt.Errorf("%w: %v", ErrInvalidState, lastErr)
	case StatePrebuffering:
		// short utterances never reach the prebuffer target
		if err := p.activate(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.closed || !p.state.Active() {
		p.mu.Unlock()
		return ErrStreamClosed
	}
	sink, gen := p.sink, p.gen
	wasPaused := p.state == StatePaused
	p.state = StateDraining
	p.draining = true
	p.mu.Unlock()

	if wasPaused {
		_ = sink.Resume()
	}

	dctx, cancel := context.WithTimeout(ctx, p.drainTimeout)
	defer cancel()
	err := sink.Drain(dctx)

	p.mu.Lock()
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		return ErrStreamClosed
	}
	p.draining = false
	if err != nil {
		p.mu.Unlock()
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			p.log.Warn().Dur("timeout", p.drainTimeout).Msg("drain timed out")
			return fmt.Errorf("%w after %s", ErrDrainTimeout, p.drainTimeout)
		}
		return fmt.Errorf("drain %s: %w", p.params.Name, err)
	}
	sink, _ = p.endActivationLocked()
	p.mu.Unlock()

	p.closeSink(sink)
	p.events.emit(Drained{ID: p.params.ID}, Stopped{ID: p.params.ID})
	return nil
}

func (p *playback) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	sink, changed := p.endActivationLocked()
	p.mu.Unlock()

	p.closeSink(sink)
	if changed {
		p.events.emit(Stopped{ID: p.params.ID})
	}
	return nil
}

func (p *playback) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sink, _ := p.endActivationLocked()
	p.mu.Unlock()

	p.closeSink(sink)
	p.log.Debug().Msg("stream closed")
	p.events.emit(Stopped{ID: p.params.ID})
	return nil
}

// endActivationLocked moves to stopped and invalidates the activation.
// It reports whether the state changed.
func (p *playback) endActivationLocked() (Sink, bool) {
	changed := p.state != StateStopped
	sink := p.sink
	p.sink = nil
	p.gen++
	p.pending = nil
	p.pendingBytes = 0
	p.draining = false
	p.state = StateStopped
	return sink, changed
}

func (p *playback) closeSink(sink Sink) {
	if sink == nil {
		return
	}
	if err := sink.Close(); err != nil {
		p.log.Debug().Err(err).Msg("sink close")
	}
}

func (p *playback) exited(gen uint64, err error) {
	p.mu.Lock()
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		return
	}

	var events []Event
	if err != nil {
		p.lastErr = err
		events = append(events, ErrorEvent{ID: p.params.ID, Err: err})
	}
	if p.draining {
		// Drain observes the exit and finishes the activation itself
		p.mu.Unlock()
		p.events.emit(events...)
		return
	}
	sink, _ := p.endActivationLocked()
	p.mu.Unlock()

	if err != nil {
		p.log.Warn().Err(err).Msg("output exited")
	}
	p.closeSink(sink)
	p.events.emit(append(events, Stopped{ID: p.params.ID})...)
}

func (p *playback) SetVolume(v float64) {
	v = ClampVolume(v)

	p.mu.Lock()
	p.volume = v
	sink := p.sink
	p.mu.Unlock()

	if vs, ok := sink.(VolumeSetter); ok {
		vs.SetVolume(v)
	}
}

func (p *playback) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *playback) Health() Health {
	p.mu.Lock()
	state, sink, pending := p.state, p.sink, p.pendingBytes
	p.mu.Unlock()

	h := Health{
		State:     state,
		Underruns: p.stats.underruns.Load(),
		Overruns:  p.stats.overruns.Load(),
	}

	switch {
	case sink != nil:
		h.FillLevel = clampUnit(sink.Fill())
		h.LatencyMs = sink.LatencyMs()
	case pending > 0:
		target := p.params.PrebufferBytes()
		if target > 0 {
			h.FillLevel = clampUnit(float64(pending) / float64(target))
		} else {
			h.FillLevel = 1
		}
		h.LatencyMs = p.params.Format.DurationMs(pending)
	}
	return h
}

// reporter binds sink callbacks to one activation
type reporter struct {
	p   *playback
	gen uint64
}

func (r *reporter) Underrun() {
	if r.p.stale(r.gen) {
		return
	}
	n := r.p.stats.underruns.Add(1)
	r.p.events.emit(Underrun{ID: r.p.params.ID, Count: n})
}

func (r *reporter) Overrun() {
	if r.p.stale(r.gen) {
		return
	}
	r.p.stats.overruns.Add(1)
}

func (r *reporter) Exited(err error) {
	r.p.exited(r.gen, err)
}
