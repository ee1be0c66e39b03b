// ABOUTME: Stream registry shared by backend implementations
// ABOUTME: Tracks open streams for shutdown and health aggregation
package backend

import (
	"context"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"golang.org/x/sync/errgroup"
)

// Registry tracks the streams a backend handed out until they are closed.
// Underrun and overrun counts of closed streams are retained until CloseAll.
type Registry struct {
	mu        sync.Mutex
	playback  map[string]stream.Playback
	recording map[string]stream.Recording

	closedUnderruns uint64
	closedOverruns  uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		playback:  make(map[string]stream.Playback),
		recording: make(map[string]stream.Recording),
	}
}

// TrackPlayback registers pb and returns a handle that unregisters on Close
func (r *Registry) TrackPlayback(pb stream.Playback) stream.Playback {
	r.mu.Lock()
	r.playback[pb.ID()] = pb
	r.mu.Unlock()

	return &trackedPlayback{Playback: pb, release: func() {
		r.mu.Lock()
		if _, ok := r.playback[pb.ID()]; ok {
			delete(r.playback, pb.ID())
			r.retainLocked(pb.Health())
		}
		r.mu.Unlock()
	}}
}

// TrackRecording registers rec and returns a handle that unregisters on Close
func (r *Registry) TrackRecording(rec stream.Recording) stream.Recording {
	r.mu.Lock()
	r.recording[rec.ID()] = rec
	r.mu.Unlock()

	return &trackedRecording{Recording: rec, release: func() {
		r.mu.Lock()
		if _, ok := r.recording[rec.ID()]; ok {
			delete(r.recording, rec.ID())
			r.retainLocked(rec.Health())
		}
		r.mu.Unlock()
	}}
}

func (r *Registry) retainLocked(h stream.Health) {
	r.closedUnderruns += h.Underruns
	r.closedOverruns += h.Overruns
}

// Len returns the number of tracked streams
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.playback) + len(r.recording)
}

// CloseAll closes every tracked stream concurrently, empties the registry and
// resets the retained counters
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	r.closedUnderruns, r.closedOverruns = 0, 0
	closers := make([]func() error, 0, len(r.playback)+len(r.recording))
	for _, pb := range r.playback {
		closers = append(closers, pb.Close)
	}
	for _, rec := range r.recording {
		closers = append(closers, rec.Close)
	}
	r.playback = make(map[string]stream.Playback)
	r.recording = make(map[string]stream.Recording)
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, closeFn := range closers {
		g.Go(closeFn)
	}
	return g.Wait()
}

// BufferHealth aggregates the health of every tracked stream. The totals also
// include streams closed since the last CloseAll.
func (r *Registry) BufferHealth() BufferHealth {
	r.mu.Lock()
	underruns, overruns := r.closedUnderruns, r.closedOverruns
	healths := make([]stream.Health, 0, len(r.playback)+len(r.recording))
	for _, pb := range r.playback {
		healths = append(healths, pb.Health())
	}
	for _, rec := range r.recording {
		healths = append(healths, rec.Health())
	}
	r.mu.Unlock()

	bh := Aggregate(healths)
	bh.TotalUnderruns += underruns
	bh.TotalOverruns += overruns
	return bh
}

// MaxOutputLatencyMs returns the largest latency among playback streams
func (r *Registry) MaxOutputLatencyMs() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var max float64
	for _, pb := range r.playback {
		if l := pb.Health().LatencyMs; l > max {
			max = l
		}
	}
	return max
}

// Aggregate folds per-stream snapshots into a BufferHealth
func Aggregate(healths []stream.Health) BufferHealth {
	var bh BufferHealth
	if len(healths) == 0 {
		return bh
	}

	var fill float64
	for _, h := range healths {
		fill += h.FillLevel
		bh.TotalUnderruns += h.Underruns
		bh.TotalOverruns += h.Overruns
		if h.State.Active() || h.State == stream.StatePrebuffering {
			bh.ActiveStreams++
		}
	}
	bh.AverageFill = fill / float64(len(healths))
	return bh
}

type trackedPlayback struct {
	stream.Playback
	once    sync.Once
	release func()
}

func (t *trackedPlayback) Close() error {
	err := t.Playback.Close()
	t.once.Do(t.release)
	return err
}

type trackedRecording struct {
	stream.Recording
	once    sync.Once
	release func()
}

func (t *trackedRecording) Close() error {
	err := t.Recording.Close()
	t.once.Do(t.release)
	return err
}
