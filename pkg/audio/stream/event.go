// ABOUTME: Typed stream events and the callback registry that delivers them
// ABOUTME: Each transition is a distinct variant so handlers can switch exhaustively
package stream

import (
	"fmt"
	"sync"
)

// Event is one of Started, Stopped, Paused, Resumed, Drained, Underrun or ErrorEvent
type Event interface {
	// Name returns the wire name of the event ("started", "stopped", ...)
	Name() string
	// StreamID identifies the stream that emitted the event
	StreamID() string

	isEvent()
}

// Started is emitted when an activation acquires its OS resource
type Started struct{ ID string }

// Stopped is emitted when an activation ends or the stream is closed.
// Delivery is at-least-once; handlers must tolerate duplicates.
type Stopped struct{ ID string }

// Paused is emitted after a successful best-effort pause
type Paused struct{ ID string }

// Resumed is emitted after a successful best-effort resume
type Resumed struct{ ID string }

// Drained is emitted when all buffered audio was consumed after Drain
type Drained struct{ ID string }

// Underrun is emitted when the output ran dry; Count is the running total
type Underrun struct {
	ID    string
	Count uint64
}

// ErrorEvent reports a runtime failure after the stream handle was returned
type ErrorEvent struct {
	ID  string
	Err error
}

func (e Started) Name() string    { return "started" }
func (e Stopped) Name() string    { return "stopped" }
func (e Paused) Name() string     { return "paused" }
func (e Resumed) Name() string    { return "resumed" }
func (e Drained) Name() string    { return "drained" }
func (e Underrun) Name() string   { return "underrun" }
func (e ErrorEvent) Name() string { return "error" }

func (e Started) StreamID() string    { return e.ID }
func (e Stopped) StreamID() string    { return e.ID }
func (e Paused) StreamID() string     { return e.ID }
func (e Resumed) StreamID() string    { return e.ID }
func (e Drained) StreamID() string    { return e.ID }
func (e Underrun) StreamID() string   { return e.ID }
func (e ErrorEvent) StreamID() string { return e.ID }

func (Started) isEvent()    {}
func (Stopped) isEvent()    {}
func (Paused) isEvent()     {}
func (Resumed) isEvent()    {}
func (Drained) isEvent()    {}
func (Underrun) isEvent()   {}
func (ErrorEvent) isEvent() {}

func (e ErrorEvent) Error() string {
	return fmt.Sprintf("stream %s: %v", e.ID, e.Err)
}

func (e ErrorEvent) Unwrap() error { return e.Err }

// Handler receives stream events. Handlers run on the emitting goroutine and
// must not block.
type Handler func(Event)

// emitter is a small callback registry
type emitter struct {
	mu       sync.Mutex
	next     int
	handlers map[int]Handler
}

func (e *emitter) subscribe(h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[int]Handler)
	}
	id := e.next
	e.next++
	e.handlers[id] = h

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

// emit calls every handler outside the registry lock
func (e *emitter) emit(events ...Event) {
	if len(events) == 0 {
		return
	}

	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.handlers))
	for i := 0; i < e.next; i++ {
		if h, ok := e.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	e.mu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}
