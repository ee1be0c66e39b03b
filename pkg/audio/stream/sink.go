// ABOUTME: Contracts between the shared stream logic and backend transports
// ABOUTME: Backends provide Sinks (playback) and Sources (recording) per activation
package stream

import (
	"context"
	"time"
)

// DefaultDrainTimeout bounds how long Drain waits for the output to finish
const DefaultDrainTimeout = 30 * time.Second

// Reporter lets a sink or source surface runtime conditions to its stream.
// A reporter is bound to one activation; calls after the activation ended are ignored.
type Reporter interface {
	// Underrun records that the output ran out of data
	Underrun()
	// Overrun records that data arrived faster than it could be consumed
	Overrun()
	// Exited reports that the transport ended on its own. A nil err is a clean exit.
	Exited(err error)
}

// Sink is the OS-level output acquired by one playback activation
type Sink interface {
	// Write hands PCM to the output, blocking for back-pressure.
	// It must return promptly once Close is called.
	Write(p []byte) (int, error)

	// Drain signals end of input and waits until the output consumed everything.
	// It must return when ctx ends or Close is called.
	Drain(ctx context.Context) error

	// Pause and Resume are best-effort; ErrUnsupported when unavailable
	Pause() error
	Resume() error

	// Close releases the resource; safe to call more than once
	Close() error

	// Fill estimates how full the output buffer is (0.0 - 1.0)
	Fill() float64

	// LatencyMs estimates the delay until newly written audio is heard
	LatencyMs() float64
}

// VolumeSetter is implemented by sinks that can change gain mid-activation
type VolumeSetter interface {
	SetVolume(v float64)
}

// SinkOpener acquires the output for a new activation at the given volume
type SinkOpener func(ctx context.Context, params PlaybackParams, volume float64, r Reporter) (Sink, error)

// Source is the OS-level input acquired by one recording activation
type Source interface {
	// Read blocks until captured PCM is available. It returns io.EOF when the
	// capture ended and must return promptly once Close is called.
	Read(p []byte) (int, error)

	Pause() error
	Resume() error
	Close() error

	// LatencyMs estimates capture delay
	LatencyMs() float64
}

// SourceOpener acquires the input for a new recording activation
type SourceOpener func(ctx context.Context, params RecordingParams, r Reporter) (Source, error)
