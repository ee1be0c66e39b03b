// ABOUTME: Bubbletea model for the voicectl health monitor
// ABOUTME: Shows backend health and ducking state, and edits stream priorities
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/ducking"
	tea "github.com/charmbracelet/bubbletea"
)

// PriorityStep is how far +/- move the selected stream's priority
const PriorityStep = 10

// strategyCycle is the order the s key walks through
var strategyCycle = []ducking.Strategy{
	ducking.StrategyNone,
	ducking.StrategySimple,
	ducking.StrategyProportional,
	ducking.StrategyFade,
}

// Model represents the TUI state
type Model struct {
	// Backend
	backend      string
	capabilities backend.Capabilities
	latency      backend.Latency
	health       backend.BufferHealth

	// Streams
	playback  int
	recording int

	// Ducking
	strategy  ducking.Strategy
	duckLevel float64
	streams   []ducking.StreamInfo
	selected  int

	// Polling
	src      StatusSource
	interval time.Duration
	updates  int

	control *Control

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int
}

// Init starts polling when the model has a status source
func (m Model) Init() tea.Cmd {
	return m.poll()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
		return m, m.poll()
	}

	return m, nil
}

func (m Model) poll() tea.Cmd {
	if m.src == nil {
		return nil
	}
	src := m.src
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return Snapshot(src)
	})
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderHealth()
	s += m.renderDucking()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders backend name and capabilities
func (m Model) renderHeader() string {
	name := m.backend
	if name == "" {
		name = "not initialized"
	}

	var caps []string
	if m.capabilities.Pause {
		caps = append(caps, "pause")
	}
	if m.capabilities.LiveVolume {
		caps = append(caps, "live volume")
	}
	if m.capabilities.Recording {
		caps = append(caps, "recording")
	}
	capText := strings.Join(caps, ", ")
	if capText == "" {
		capText = "-"
	}

	return fmt.Sprintf(`┌─ Sendspin Voice ─────────────────────────────────────┐
│ Backend: %-44s │
│ Caps:    %-44s │
├──────────────────────────────────────────────────────┤
`, truncate(name, 44), truncate(capText, 44))
}

// renderHealth renders stream counts, latency and buffer health
func (m Model) renderHealth() string {
	fill := int(m.health.AverageFill*100 + 0.5)

	return fmt.Sprintf("│ Streams: %-44s │\n"+
		"│ Latency: %-44s │\n"+
		"│ Buffer:  [%s] %3d%%%-27s │\n"+
		"│ Errors:  %-44s │\n",
		fmt.Sprintf("%d playback, %d recording", m.playback, m.recording),
		fmt.Sprintf("out %.1fms  in %.1fms  buffer %.0fms", m.latency.OutputMs, m.latency.InputMs, m.latency.BufferMs),
		renderBar(fill, 100, 10), fill, "",
		fmt.Sprintf("%d underruns, %d overruns", m.health.TotalUnderruns, m.health.TotalOverruns))
}

// renderDucking renders the strategy and one line per playback stream
func (m Model) renderDucking() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if m.strategy == "" {
		s += "│ Ducking: -                                           │\n"
	} else {
		s += fmt.Sprintf("│ Ducking: %-44s │\n", fmt.Sprintf("%s (level %.2f)", m.strategy, m.duckLevel))
	}

	if len(m.streams) == 0 {
		return s + "│   No playback streams                                │\n"
	}

	for i, st := range m.streams {
		cursor := " "
		if i == m.selected {
			cursor = ">"
		}
		vol := int(st.Volume*100 + 0.5)
		mark := ""
		if st.Ducked {
			mark = "ducked"
		}
		s += fmt.Sprintf("│ %s %-8s p%-3d [%s] %3d%% %-14s │\n",
			cursor, shortID(st.ID), st.Priority, renderBar(vol, 100, 10), vol, mark)
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Select  +/-:Priority  s:Strategy  d:Debug  q:Quit │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Updates: %-41d │
│   Active (backend): %-32d │
`, m.updates, m.health.ActiveStreams)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.control.quit()
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.streams)-1 {
			m.selected++
		}
	case "+", "=":
		m.adjustPriority(PriorityStep)
	case "-", "_":
		m.adjustPriority(-PriorityStep)
	case "s":
		m.strategy = nextStrategy(m.strategy)
		m.control.send(Change{Strategy: m.strategy})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) adjustPriority(delta int) {
	if m.selected >= len(m.streams) {
		return
	}

	// the slice is shared with the StatusMsg it came from
	streams := make([]ducking.StreamInfo, len(m.streams))
	copy(streams, m.streams)
	st := &streams[m.selected]

	p := st.Priority + delta
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	if p == st.Priority {
		return
	}
	st.Priority = p
	m.streams = streams
	m.control.send(Change{StreamID: st.ID, Priority: p})
}

func nextStrategy(s ducking.Strategy) ducking.Strategy {
	for i, st := range strategyCycle {
		if st == s {
			return strategyCycle[(i+1)%len(strategyCycle)]
		}
	}
	return ducking.DefaultStrategy
}

// applyStatus replaces the displayed state with a fresh snapshot
func (m *Model) applyStatus(msg StatusMsg) {
	m.backend = msg.Backend
	m.capabilities = msg.Capabilities
	m.latency = msg.Latency
	m.health = msg.Health
	m.playback = msg.Playback
	m.recording = msg.Recording
	if msg.Strategy != "" {
		m.strategy = msg.Strategy
		m.duckLevel = msg.DuckLevel
	}
	m.streams = msg.Streams
	m.updates++

	if m.selected >= len(m.streams) {
		m.selected = len(m.streams) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Backend      string
	Capabilities backend.Capabilities
	Latency      backend.Latency
	Health       backend.BufferHealth
	Playback     int
	Recording    int
	Strategy     ducking.Strategy
	DuckLevel    float64
	Streams      []ducking.StreamInfo
}

// Utility functions
func renderBar(value, max, width int) string {
	if value < 0 {
		value = 0
	} else if value > max {
		value = max
	}
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
