// ABOUTME: TUI initialization, status polling and control plumbing
// ABOUTME: Wraps the bubbletea program for the voicectl health monitor
package ui

import (
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/ducking"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultInterval is how often the monitor polls its source
const DefaultInterval = 250 * time.Millisecond

// StatusSource is the read side of voice.Manager the monitor displays
type StatusSource interface {
	BackendName() string
	Capabilities() backend.Capabilities
	Latency() backend.Latency
	BufferHealth() backend.BufferHealth
	ActivePlaybackCount() int
	ActiveRecordingCount() int
	DuckingStrategy() (ducking.Strategy, float64)
	DuckingState() []ducking.StreamInfo
}

// Snapshot reads the current state of src
func Snapshot(src StatusSource) StatusMsg {
	strategy, level := src.DuckingStrategy()
	return StatusMsg{
		Backend:      src.BackendName(),
		Capabilities: src.Capabilities(),
		Latency:      src.Latency(),
		Health:       src.BufferHealth(),
		Playback:     src.ActivePlaybackCount(),
		Recording:    src.ActiveRecordingCount(),
		Strategy:     strategy,
		DuckLevel:    level,
		Streams:      src.DuckingState(),
	}
}

// Change is a user edit made in the monitor.
// StreamID is set for priority changes, Strategy for strategy changes.
type Change struct {
	StreamID string
	Priority int
	Strategy ducking.Strategy
}

// Controller is the write side of voice.Manager the monitor edits
type Controller interface {
	UpdatePriority(id string, priority int) error
	SetDuckingStrategy(strategy ducking.Strategy, duckLevel ...float64)
}

// Apply performs the change on c
func (ch Change) Apply(c Controller) error {
	if ch.StreamID != "" {
		return c.UpdatePriority(ch.StreamID, ch.Priority)
	}
	if ch.Strategy != "" {
		c.SetDuckingStrategy(ch.Strategy)
	}
	return nil
}

// Control holds channels for communication from the TUI to the app
type Control struct {
	Changes chan Change
	Quit    chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Changes: make(chan Change, 10),
		Quit:    make(chan struct{}, 1),
	}
}

// send never blocks the UI; edits are dropped when the app falls behind
func (c *Control) send(ch Change) {
	if c == nil {
		return
	}
	select {
	case c.Changes <- ch:
	default:
	}
}

func (c *Control) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model. A nil src disables polling and a nil
// control discards edits.
func NewModel(src StatusSource, control *Control) Model {
	return Model{
		src:      src,
		interval: DefaultInterval,
		control:  control,
	}
}

// Run creates the TUI program; the caller starts it with Run
func Run(src StatusSource, control *Control) *tea.Program {
	return tea.NewProgram(NewModel(src, control), tea.WithAltScreen())
}
