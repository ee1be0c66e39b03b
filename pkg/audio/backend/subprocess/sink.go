// ABOUTME: Playback sink that pipes PCM into a player process's stdin
// ABOUTME: Estimates queued audio from bytes written versus wall-clock time
package subprocess

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

type playbackSink struct {
	proc     *process
	stdin    io.WriteCloser
	format   audio.Format
	bufferMs int

	closeStdin sync.Once

	mu          sync.Mutex
	anchor      time.Time
	written     int
	pausedAt    time.Time
	pausedTotal time.Duration
	now         func() time.Time
}

func (b *Backend) openPlayback(t tool) stream.SinkOpener {
	return func(ctx context.Context, params stream.PlaybackParams, volume float64, r stream.Reporter) (stream.Sink, error) {
		cmd := b.command(context.WithoutCancel(ctx), t.path, playbackArgs(t, params, volume)...)
		cmd.Env = append(cmd.Environ(), deviceEnv(t, params.Device)...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}

		onLine := func(line string) {
			if containsFold(line, "underrun", "under-run") {
				r.Underrun()
			}
		}
		log := b.log.With().Str("stream", params.ID).Logger()
		proc, err := startProcess(t, cmd, log, onLine, r.Exited)
		if err != nil {
			return nil, err
		}

		return &playbackSink{
			proc:     proc,
			stdin:    stdin,
			format:   params.Format,
			bufferMs: params.BufferMs,
			now:      time.Now,
		}, nil
	}
}

func (s *playbackSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.queuedMsLocked() <= 0 {
		// the player caught up; restart the estimate from here
		s.anchor = s.now()
		s.written = 0
		s.pausedTotal = 0
	}
	s.mu.Unlock()

	n, err := s.stdin.Write(p)

	s.mu.Lock()
	s.written += n
	s.mu.Unlock()

	if err != nil && s.proc.exited() {
		return n, io.ErrClosedPipe
	}
	return n, err
}

// Drain closes stdin so the player exits after its buffer empties
func (s *playbackSink) Drain(ctx context.Context) error {
	s.closeStdin.Do(func() { closeQuietly(s.stdin) })
	if s.proc.paused.Load() {
		_ = s.proc.resume()
	}
	return s.proc.wait(ctx)
}

func (s *playbackSink) Pause() error {
	if err := s.proc.pause(); err != nil {
		return err
	}
	s.mu.Lock()
	s.pausedAt = s.now()
	s.mu.Unlock()
	return nil
}

func (s *playbackSink) Resume() error {
	if err := s.proc.resume(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.pausedAt.IsZero() {
		s.pausedTotal += s.now().Sub(s.pausedAt)
		s.pausedAt = time.Time{}
	}
	s.mu.Unlock()
	return nil
}

func (s *playbackSink) Close() error {
	s.closeStdin.Do(func() { closeQuietly(s.stdin) })
	s.proc.stop()
	return nil
}

func (s *playbackSink) Fill() float64 {
	if s.bufferMs <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuedMsLocked() / float64(s.bufferMs)
}

func (s *playbackSink) LatencyMs() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuedMsLocked() + float64(s.bufferMs)
}

// queuedMsLocked estimates audio written but not yet played
func (s *playbackSink) queuedMsLocked() float64 {
	if s.anchor.IsZero() {
		return 0
	}
	now := s.now()
	played := now.Sub(s.anchor) - s.pausedTotal
	if !s.pausedAt.IsZero() {
		played -= now.Sub(s.pausedAt)
	}
	q := s.format.DurationMs(s.written) - float64(played)/float64(time.Millisecond)
	if q < 0 {
		return 0
	}
	return q
}
