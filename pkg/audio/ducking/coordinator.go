// ABOUTME: Ducking coordinator that derives playback volumes from stream priorities
// ABOUTME: Volumes are recomputed from the registry snapshot on every registration change
package ducking

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
)

// Strategy selects how lower-priority streams are attenuated
type Strategy string

const (
	// StrategyNone leaves every volume untouched
	StrategyNone Strategy = "none"
	// StrategySimple plays the priority leaders at full volume and ducks the rest
	StrategySimple Strategy = "simple"
	// StrategyProportional scales each stream between the duck level and 1.0 by its own priority
	StrategyProportional Strategy = "proportional"
	// StrategyFade thresholds like StrategySimple; smoothing is left to the backend
	StrategyFade Strategy = "fade"
)

const (
	DefaultStrategy  = StrategySimple
	DefaultDuckLevel = 0.3
)

// ParseStrategy maps a config string to a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyNone, StrategySimple, StrategyProportional, StrategyFade:
		return st, nil
	case "":
		return DefaultStrategy, nil
	}
	return "", fmt.Errorf("%w: unknown ducking strategy %q", audio.ErrInvalidConfig, s)
}

// Volumer is the part of a playback stream the coordinator drives.
// SetVolume must not call back into the Coordinator.
type Volumer interface {
	ID() string
	SetVolume(v float64)
	Volume() float64
}

type managed struct {
	stream   Volumer
	priority int
	ducked   bool
}

// StreamInfo is a diagnostic snapshot of one registered stream
type StreamInfo struct {
	ID       string
	Priority int
	Ducked   bool
	Volume   float64
}

// Coordinator owns the priority registry for playback streams
type Coordinator struct {
	log zerolog.Logger

	mu        sync.Mutex
	strategy  Strategy
	duckLevel float64
	streams   map[string]*managed
}

// New returns a coordinator using the simple strategy at the default duck level
func New(log zerolog.Logger) *Coordinator {
	return &Coordinator{
		log:       log.With().Str("component", "ducking").Logger(),
		strategy:  DefaultStrategy,
		duckLevel: DefaultDuckLevel,
		streams:   make(map[string]*managed),
	}
}

// AddStream registers s at priority and recalculates volumes.
// Registering an id again replaces its entry.
func (c *Coordinator) AddStream(s Volumer, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &managed{stream: s, priority: stream.ClampPriority(priority)}
	if prev, ok := c.streams[s.ID()]; ok {
		m.ducked = prev.ducked
	}
	c.streams[s.ID()] = m
	c.recalculateLocked()
}

// RemoveStream unregisters id; unknown ids are ignored
func (c *Coordinator) RemoveStream(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.streams[id]; !ok {
		return
	}
	delete(c.streams, id)
	c.recalculateLocked()
}

// UpdatePriority changes the priority of a registered stream.
// It reports false when id is not registered.
func (c *Coordinator) UpdatePriority(id string, priority int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.streams[id]
	if !ok {
		return false
	}
	m.priority = stream.ClampPriority(priority)
	c.recalculateLocked()
	return true
}

// SetStrategy switches policy. The optional duckLevel is clamped to [0, 1];
// without it the current level is kept.
func (c *Coordinator) SetStrategy(strategy Strategy, duckLevel ...float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.strategy = strategy
	if len(duckLevel) > 0 {
		c.duckLevel = stream.ClampVolume(duckLevel[0])
	}
	c.log.Debug().Str("strategy", string(strategy)).Float64("duck_level", c.duckLevel).Msg("ducking strategy changed")
	c.recalculateLocked()
}

// RecalculateVolumes applies the current strategy to every registered stream
func (c *Coordinator) RecalculateVolumes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recalculateLocked()
}

func (c *Coordinator) recalculateLocked() {
	if c.strategy == StrategyNone || len(c.streams) == 0 {
		return
	}

	maxPriority := stream.MinPriority
	for _, m := range c.streams {
		if m.priority > maxPriority {
			maxPriority = m.priority
		}
	}

	for _, m := range c.streams {
		switch c.strategy {
		case StrategyProportional:
			v := c.duckLevel + float64(m.priority)/100*(1-c.duckLevel)
			m.stream.SetVolume(v)
			m.ducked = v < 1
		case StrategySimple, StrategyFade:
			if m.priority == maxPriority {
				if m.ducked {
					m.stream.SetVolume(1)
					m.ducked = false
				}
				continue
			}
			m.stream.SetVolume(c.duckLevel)
			m.ducked = true
		default:
			c.log.Warn().Str("strategy", string(c.strategy)).Msg("unknown ducking strategy, volumes unchanged")
			return
		}
	}
}

// Strategy returns the active strategy
func (c *Coordinator) Strategy() Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strategy
}

// DuckLevel returns the volume applied to ducked streams
func (c *Coordinator) DuckLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duckLevel
}

// Len returns the number of registered streams
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// Streams returns the registry ordered by descending priority, then id
func (c *Coordinator) Streams() []StreamInfo {
	c.mu.Lock()
	out := make([]StreamInfo, 0, len(c.streams))
	for id, m := range c.streams {
		out = append(out, StreamInfo{ID: id, Priority: m.priority, Ducked: m.ducked, Volume: m.stream.Volume()})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
