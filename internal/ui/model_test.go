// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, rendering and control messages
package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/ducking"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeSource struct {
	strategy ducking.Strategy
	streams  []ducking.StreamInfo
}

func (f *fakeSource) BackendName() string { return "subprocess" }
func (f *fakeSource) Capabilities() backend.Capabilities {
	return backend.Capabilities{Recording: true}
}
func (f *fakeSource) Latency() backend.Latency { return backend.Latency{OutputMs: 40} }
func (f *fakeSource) BufferHealth() backend.BufferHealth {
	return backend.BufferHealth{AverageFill: 0.5, TotalUnderruns: 2, ActiveStreams: 2}
}
func (f *fakeSource) ActivePlaybackCount() int  { return len(f.streams) }
func (f *fakeSource) ActiveRecordingCount() int { return 1 }
func (f *fakeSource) DuckingStrategy() (ducking.Strategy, float64) {
	return f.strategy, 0.3
}
func (f *fakeSource) DuckingState() []ducking.StreamInfo { return f.streams }

type fakeController struct {
	priorities map[string]int
	strategies []ducking.Strategy
}

func (f *fakeController) UpdatePriority(id string, priority int) error {
	if _, ok := f.priorities[id]; !ok {
		return errors.New("unknown stream")
	}
	f.priorities[id] = priority
	return nil
}

func (f *fakeController) SetDuckingStrategy(strategy ducking.Strategy, duckLevel ...float64) {
	f.strategies = append(f.strategies, strategy)
}

func twoStreams() []ducking.StreamInfo {
	return []ducking.StreamInfo{
		{ID: "assistant-voice", Priority: 80, Volume: 1},
		{ID: "music", Priority: 20, Ducked: true, Volume: 0.3},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil, nil)

	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
	if model.interval != DefaultInterval {
		t.Errorf("expected interval %v, got %v", DefaultInterval, model.interval)
	}
	if cmd := model.Init(); cmd != nil {
		t.Error("expected no polling without a source")
	}
}

func TestInitPollsWithSource(t *testing.T) {
	model := NewModel(&fakeSource{}, nil)
	if model.Init() == nil {
		t.Error("expected a poll command with a source")
	}
}

func TestSnapshot(t *testing.T) {
	src := &fakeSource{strategy: ducking.StrategySimple, streams: twoStreams()}
	msg := Snapshot(src)

	if msg.Backend != "subprocess" {
		t.Errorf("expected backend 'subprocess', got %q", msg.Backend)
	}
	if msg.Playback != 2 || msg.Recording != 1 {
		t.Errorf("unexpected counts %d/%d", msg.Playback, msg.Recording)
	}
	if msg.Strategy != ducking.StrategySimple || msg.DuckLevel != 0.3 {
		t.Errorf("unexpected ducking %s %.2f", msg.Strategy, msg.DuckLevel)
	}
	if len(msg.Streams) != 2 {
		t.Errorf("expected 2 streams, got %d", len(msg.Streams))
	}
}

func TestStatusMsgApplied(t *testing.T) {
	model := NewModel(&fakeSource{}, nil)

	next, cmd := model.Update(StatusMsg{
		Backend:   "native",
		Playback:  2,
		Strategy:  ducking.StrategyFade,
		DuckLevel: 0.2,
		Streams:   twoStreams(),
		Health:    backend.BufferHealth{AverageFill: 0.75},
	})
	model = next.(Model)

	if cmd == nil {
		t.Error("expected the next poll to be scheduled")
	}
	if model.backend != "native" {
		t.Errorf("expected backend 'native', got %q", model.backend)
	}
	if model.strategy != ducking.StrategyFade || model.duckLevel != 0.2 {
		t.Errorf("unexpected ducking %s %.2f", model.strategy, model.duckLevel)
	}
	if model.health.AverageFill != 0.75 {
		t.Errorf("expected fill 0.75, got %f", model.health.AverageFill)
	}
	if model.updates != 1 {
		t.Errorf("expected 1 update, got %d", model.updates)
	}
}

func TestSelectionClampsWhenStreamsEnd(t *testing.T) {
	model := NewModel(nil, nil)
	model.applyStatus(StatusMsg{Streams: twoStreams()})
	model = press(model, "down")

	if model.selected != 1 {
		t.Fatalf("expected selection 1, got %d", model.selected)
	}

	model.applyStatus(StatusMsg{Streams: twoStreams()[:1]})
	if model.selected != 0 {
		t.Errorf("expected selection clamped to 0, got %d", model.selected)
	}

	model.applyStatus(StatusMsg{})
	if model.selected != 0 {
		t.Errorf("expected selection 0 with no streams, got %d", model.selected)
	}
}

func TestSelectionBounds(t *testing.T) {
	model := NewModel(nil, nil)
	model.applyStatus(StatusMsg{Streams: twoStreams()})

	model = press(model, "up")
	if model.selected != 0 {
		t.Errorf("expected selection to stay at 0, got %d", model.selected)
	}

	model = press(model, "down", "down", "j")
	if model.selected != 1 {
		t.Errorf("expected selection to stop at 1, got %d", model.selected)
	}
}

func TestPriorityKeysSendChanges(t *testing.T) {
	control := NewControl()
	model := NewModel(nil, control)
	streams := twoStreams()
	model.applyStatus(StatusMsg{Streams: streams})

	model = press(model, "down", "+")

	select {
	case ch := <-control.Changes:
		if ch.StreamID != "music" || ch.Priority != 30 {
			t.Errorf("unexpected change %+v", ch)
		}
	default:
		t.Fatal("expected a priority change")
	}
	if model.streams[1].Priority != 30 {
		t.Errorf("expected displayed priority 30, got %d", model.streams[1].Priority)
	}
	if streams[1].Priority != 20 {
		t.Error("status snapshot should not be modified")
	}

	// already at the top
	model = press(model, "up", "+", "+", "+")
	if model.streams[0].Priority != 100 {
		t.Errorf("expected priority clamped to 100, got %d", model.streams[0].Priority)
	}
	if n := len(control.Changes); n != 2 {
		t.Errorf("expected 2 changes for 80->90->100, got %d", n)
	}
}

func TestStrategyKeyCycles(t *testing.T) {
	control := NewControl()
	model := NewModel(nil, control)
	model.applyStatus(StatusMsg{Strategy: ducking.StrategyFade})

	model = press(model, "s")
	if model.strategy != ducking.StrategyNone {
		t.Errorf("expected fade to wrap to none, got %s", model.strategy)
	}
	model = press(model, "s")
	if model.strategy != ducking.StrategySimple {
		t.Errorf("expected simple after none, got %s", model.strategy)
	}

	if ch := <-control.Changes; ch.Strategy != ducking.StrategyNone {
		t.Errorf("expected none change, got %+v", ch)
	}
	if ch := <-control.Changes; ch.Strategy != ducking.StrategySimple {
		t.Errorf("expected simple change, got %+v", ch)
	}
}

func TestQuitKey(t *testing.T) {
	control := NewControl()
	model := NewModel(nil, control)

	_, cmd := model.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	select {
	case <-control.Quit:
	default:
		t.Error("expected quit signal on control channel")
	}
}

func TestNilControlIgnoresEdits(t *testing.T) {
	model := NewModel(nil, nil)
	model.applyStatus(StatusMsg{Streams: twoStreams()})

	model = press(model, "+", "s", "d")
	if !model.showDebug {
		t.Error("expected debug toggled")
	}
	if _, cmd := model.Update(key("q")); cmd == nil {
		t.Error("expected quit command without control")
	}
}

func TestViewRendersState(t *testing.T) {
	model := NewModel(nil, nil)
	if model.View() != "Loading..." {
		t.Error("expected loading view before the first resize")
	}

	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = next.(Model)
	model.applyStatus(Snapshot(&fakeSource{strategy: ducking.StrategySimple, streams: twoStreams()}))

	view := model.View()
	for _, want := range []string{"Backend: subprocess", "recording", "simple (level 0.30)", "assistan", "ducked", "2 underruns"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "DEBUG") {
		t.Error("debug section should be hidden")
	}

	model = press(model, "d")
	if !strings.Contains(model.View(), "DEBUG") {
		t.Error("debug section should be shown")
	}
}

func TestViewWithoutStreams(t *testing.T) {
	model := NewModel(nil, nil)
	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = next.(Model)

	view := model.View()
	if !strings.Contains(view, "not initialized") || !strings.Contains(view, "No playback streams") {
		t.Errorf("unexpected empty view:\n%s", view)
	}
}

func TestChangeApply(t *testing.T) {
	c := &fakeController{priorities: map[string]int{"music": 20}}

	if err := (Change{StreamID: "music", Priority: 60}).Apply(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.priorities["music"] != 60 {
		t.Errorf("expected priority 60, got %d", c.priorities["music"])
	}

	if err := (Change{StreamID: "gone", Priority: 10}).Apply(c); err == nil {
		t.Error("expected error for unknown stream")
	}

	if err := (Change{Strategy: ducking.StrategyProportional}).Apply(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.strategies) != 1 || c.strategies[0] != ducking.StrategyProportional {
		t.Errorf("unexpected strategies %v", c.strategies)
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"this is longer than allowed", 10, "this is..."},
		{"", 10, ""},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q",
				tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value    int
		expected string
	}{
		{0, "░░░░░░░░░░"},
		{30, "███░░░░░░░"},
		{100, "██████████"},
		{150, "██████████"},
		{-5, "░░░░░░░░░░"},
	}

	for _, tt := range tests {
		if got := renderBar(tt.value, 100, 10); got != tt.expected {
			t.Errorf("renderBar(%d) = %q, expected %q", tt.value, got, tt.expected)
		}
	}
}
