package events

import "creditbridge/core/types"

// Event is a committed bridge state change: a deposit, a withdrawal, a role
// handover step or a config update.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render a generic types.Event.
type Typed interface {
	EventType() string
	Event() *types.Event
}

// Render converts ev into the form carried on receipts and websocket
// streams. Events that do not implement Typed keep only their type.
func Render(ev Event) *types.Event {
	if ev == nil {
		return nil
	}
	if typed, ok := ev.(Typed); ok {
		return typed.Event()
	}
	return &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
}

// Emitter receives events after the invocation that produced them commits.
// Rejected invocations emit nothing.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// NoopEmitter drops every event. It is the runtime default.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Fanout forwards every event to each emitter in order. Nil entries are skipped.
type Fanout []Emitter

func (f Fanout) Emit(ev Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(ev)
		}
	}
}
