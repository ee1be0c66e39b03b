// ABOUTME: Child process lifecycle shared by playback sinks and recording sources
// ABOUTME: Scans stderr for buffer warnings and classifies how the process exited
package subprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// CommandFunc builds a command; tests substitute a helper process
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// LookPathFunc resolves a tool name to a path
type LookPathFunc func(file string) (string, error)

// process wraps one running player or recorder
type process struct {
	tool tool
	cmd  *exec.Cmd
	log  zerolog.Logger

	done    chan struct{}
	exitErr error

	stopping atomic.Bool
	paused   atomic.Bool
	stopOnce sync.Once
}

// startProcess launches cmd and supervises it until exit. onLine receives
// every stderr line. exited runs after the process is reaped.
func startProcess(t tool, cmd *exec.Cmd, log zerolog.Logger, onLine func(string), exited func(error)) (*process, error) {
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stderr: %w", t, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", t, err)
	}

	p := &process{
		tool: t,
		cmd:  cmd,
		log:  log.With().Str("tool", t.String()).Int("pid", cmd.Process.Pid).Logger(),
		done: make(chan struct{}),
	}
	p.log.Debug().Strs("args", cmd.Args[1:]).Msg("process started")

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			p.log.Trace().Str("stderr", line).Msg("tool output")
			if onLine != nil {
				onLine(line)
			}
		}

		// stderr reaches EOF before Wait may run
		p.exitErr = p.classify(cmd.Wait())
		close(p.done)

		if p.exitErr != nil {
			p.log.Warn().Err(p.exitErr).Msg("process failed")
		} else {
			p.log.Debug().Msg("process exited")
		}
		if exited != nil {
			exited(p.exitErr)
		}
	}()

	return p, nil
}

// classify turns Wait's result into the error reported to the stream.
// Signal terminations and stops we asked for count as clean exits.
func (p *process) classify(err error) error {
	if err == nil || p.stopping.Load() {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == -1 {
			return nil
		}
		return fmt.Errorf("%s exited with code %d", p.tool, exitErr.ExitCode())
	}
	return fmt.Errorf("%s: %w", p.tool, err)
}

// wait blocks until the process exited or ctx ends
func (p *process) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *process) pause() error {
	if err := suspend(p.cmd.Process); err != nil {
		return err
	}
	p.paused.Store(true)
	return nil
}

func (p *process) resume() error {
	if err := resume(p.cmd.Process); err != nil {
		return err
	}
	p.paused.Store(false)
	return nil
}

// stop kills the process and waits for it to be reaped
func (p *process) stop() {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)
		if p.exited() {
			return
		}
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.log.Debug().Err(err).Msg("kill failed")
		}
	})
	<-p.done
}

// containsFold reports whether line mentions any of the words, ignoring case
func containsFold(line string, words ...string) bool {
	lower := strings.ToLower(line)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// closeQuietly ignores the error of closers on teardown paths
func closeQuietly(c io.Closer) {
	_ = c.Close()
}
