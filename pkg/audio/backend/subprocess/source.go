// ABOUTME: Recording source that reads PCM from a recorder process's stdout
// ABOUTME: Capture ends when the recorder exits; failures surface through Read
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

type recordingSource struct {
	proc     *process
	stdout   *os.File
	bufferMs int
	closed   atomic.Bool
}

func (b *Backend) openRecording(t tool) stream.SourceOpener {
	return func(ctx context.Context, params stream.RecordingParams, r stream.Reporter) (stream.Source, error) {
		cmd := b.command(context.WithoutCancel(ctx), t.path, recordingArgs(t, params)...)
		cmd.Env = append(cmd.Environ(), deviceEnv(t, params.Device)...)

		// a plain pipe keeps Wait from racing our reads
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("capture pipe: %w", err)
		}
		cmd.Stdout = pw

		onLine := func(line string) {
			if containsFold(line, "overrun", "over-run") {
				r.Overrun()
			}
		}
		log := b.log.With().Str("stream", params.ID).Logger()
		proc, err := startProcess(t, cmd, log, onLine, nil)
		closeQuietly(pw)
		if err != nil {
			closeQuietly(pr)
			return nil, err
		}

		return &recordingSource{proc: proc, stdout: pr, bufferMs: params.BufferMs}, nil
	}
}

func (s *recordingSource) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	if s.closed.Load() {
		return n, io.EOF
	}
	if errors.Is(err, io.EOF) {
		<-s.proc.done
		if s.proc.exitErr != nil {
			return n, s.proc.exitErr
		}
		return n, io.EOF
	}
	return n, err
}

func (s *recordingSource) Pause() error  { return s.proc.pause() }
func (s *recordingSource) Resume() error { return s.proc.resume() }

func (s *recordingSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.proc.stop()
	return s.stdout.Close()
}

func (s *recordingSource) LatencyMs() float64 {
	return float64(s.bufferMs)
}
