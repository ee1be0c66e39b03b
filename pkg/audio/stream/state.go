// ABOUTME: Stream state machine definitions
// ABOUTME: Lists playback/recording states and the sentinel errors tied to them
package stream

import "errors"

// State is the lifecycle position of a stream
type State string

const (
	StateIdle         State = "idle"
	StatePrebuffering State = "prebuffering"
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateDraining     State = "draining"
	StateStopped      State = "stopped"
	StateError        State = "error"
)

// Active reports whether an OS resource is held in this state
func (s State) Active() bool {
	switch s {
	case StateRunning, StatePaused, StateDraining:
		return true
	}
	return false
}

var (
	// ErrStreamClosed resolves operations on a stream that was closed or stopped underneath them
	ErrStreamClosed = errors.New("stream closed")

	// ErrDrainTimeout is returned when the output never finishes consuming buffered audio
	ErrDrainTimeout = errors.New("drain timed out")

	// ErrInvalidState is returned for operations the current state does not allow
	ErrInvalidState = errors.New("invalid stream state")

	// ErrUnsupported is returned by sinks and sources for optional operations they lack
	ErrUnsupported = errors.New("operation not supported")
)
