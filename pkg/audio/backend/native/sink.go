// ABOUTME: Ring-buffered playback sink and capture source over a driver handle
// ABOUTME: The device callback drains or fills the ring; stream goroutines never touch the device
package native

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

// devicePeriodMs is the callback period requested from drivers
const devicePeriodMs = 10

// ringSink feeds a playback device from a Ring
type ringSink struct {
	drv    Driver
	handle Handle
	ring   *Ring
	format audio.Format
	rep    stream.Reporter

	volume    atomic.Uint64 // float64 bits
	primed    atomic.Bool
	starved   atomic.Bool
	finishing atomic.Bool

	pendingUnderruns atomic.Uint64
	space            chan struct{}
	notify           chan struct{}
	closed           chan struct{}
	closeOnce        sync.Once
}

func newRingSink(format audio.Format, capacityMs int, volume float64, rep stream.Reporter) *ringSink {
	s := &ringSink{
		ring:   NewRing(format.BytesFor(capacityMs)),
		format: format,
		rep:    rep,
		space:  make(chan struct{}, 1),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	s.SetVolume(volume)
	return s
}

// fill runs on the audio thread. It must not block or allocate.
func (s *ringSink) fill(out []byte) {
	frame := s.format.FrameSize()
	avail := s.ring.Len()
	if frame > 0 {
		avail -= avail % frame
	}
	want := len(out)
	if want > avail {
		want = avail
	}

	n := s.ring.Read(out[:want])
	clear(out[n:])
	audio.ApplyVolume(out[:n], s.format.Sample, s.Volume())

	if n < len(out) {
		// running dry at the end of a drain is expected
		if s.primed.Load() && !s.finishing.Load() && !s.starved.Swap(true) {
			s.pendingUnderruns.Add(1)
			signal(s.notify)
		}
	} else {
		s.starved.Store(false)
	}
	signal(s.space)
}

// report forwards underruns off the audio thread
func (s *ringSink) report() {
	for {
		select {
		case <-s.closed:
			return
		case <-s.notify:
			for n := s.pendingUnderruns.Swap(0); n > 0; n-- {
				s.rep.Underrun()
			}
		}
	}
}

func (s *ringSink) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		select {
		case <-s.closed:
			return written, io.ErrClosedPipe
		default:
		}

		n := s.ring.Write(p[written:])
		written += n
		if n > 0 {
			s.primed.Store(true)
			continue
		}

		select {
		case <-s.space:
		case <-s.closed:
			return written, io.ErrClosedPipe
		}
	}
	return written, nil
}

// Drain waits for the callback to consume everything buffered
func (s *ringSink) Drain(ctx context.Context) error {
	s.finishing.Store(true)
	for s.ring.Len() >= s.format.FrameSize() && s.ring.Len() > 0 {
		select {
		case <-s.space:
		case <-s.closed:
			return io.ErrClosedPipe
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *ringSink) Pause() error  { return s.drv.Stop(s.handle) }
func (s *ringSink) Resume() error { return s.drv.Start(s.handle) }

func (s *ringSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.drv.Stop(s.handle)
		err = s.drv.CloseHandle(s.handle)
	})
	return err
}

func (s *ringSink) Fill() float64 {
	return float64(s.ring.Len()) / float64(s.ring.Cap())
}

func (s *ringSink) LatencyMs() float64 {
	return s.format.DurationMs(s.ring.Len()) + devicePeriodMs
}

func (s *ringSink) SetVolume(v float64) {
	s.volume.Store(math.Float64bits(stream.ClampVolume(v)))
}

func (s *ringSink) Volume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// ringSource collects captured PCM in a Ring for the stream's reader
type ringSource struct {
	drv    Driver
	handle Handle
	ring   *Ring
	format audio.Format
	rep    stream.Reporter

	pendingOverruns atomic.Uint64
	data            chan struct{}
	notify          chan struct{}
	closed          chan struct{}
	closeOnce       sync.Once
}

func newRingSource(format audio.Format, capacityMs int, rep stream.Reporter) *ringSource {
	return &ringSource{
		ring:   NewRing(format.BytesFor(capacityMs)),
		format: format,
		rep:    rep,
		data:   make(chan struct{}, 1),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// deliver runs on the audio thread
func (s *ringSource) deliver(in []byte) {
	if n := s.ring.Write(in); n < len(in) {
		s.pendingOverruns.Add(1)
		signal(s.notify)
	}
	signal(s.data)
}

func (s *ringSource) report() {
	for {
		select {
		case <-s.closed:
			return
		case <-s.notify:
			for n := s.pendingOverruns.Swap(0); n > 0; n-- {
				s.rep.Overrun()
			}
		}
	}
}

func (s *ringSource) Read(p []byte) (int, error) {
	frame := s.format.FrameSize()
	if frame > 0 && len(p) >= frame {
		p = p[:len(p)-len(p)%frame]
	}
	for {
		if n := s.ring.Read(p); n > 0 {
			return n, nil
		}
		select {
		case <-s.data:
		case <-s.closed:
			return 0, io.EOF
		}
	}
}

func (s *ringSource) Pause() error  { return s.drv.Stop(s.handle) }
func (s *ringSource) Resume() error { return s.drv.Start(s.handle) }

func (s *ringSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.drv.Stop(s.handle)
		err = s.drv.CloseHandle(s.handle)
	})
	return err
}

func (s *ringSource) LatencyMs() float64 {
	return s.format.DurationMs(s.ring.Len()) + devicePeriodMs
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
