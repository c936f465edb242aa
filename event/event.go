// Package event implements the event-dispatch core shared by all wallet
// backends: per-subsystem single-consumer event handlers, a two-lane event
// queue, and one process-wide alarm clock that drives periodic timeout
// events.
package event

import "time"

// A Dispatcher consumes one dequeued event on behalf of its type. It always
// runs on the owning handler's worker goroutine, under the handler's dispatch
// lock if one was supplied.
type Dispatcher func(h *Handler, e Event)

// An EventType describes one kind of event a handler accepts. Types are
// defined by a backend at handler-construction time and never change
// afterwards.
type EventType struct {
	Name       string
	Dispatcher Dispatcher
}

// An Event is a typed message placed on a handler's queue for later dispatch.
// Once signaled, the queue owns the value; the signaling goroutine must not
// mutate it afterwards.
type Event interface {
	// Type returns the descriptor whose dispatcher will consume the event.
	Type() *EventType
}

// EventBase carries the type reference for concrete events. Backend event
// structs embed it.
type EventBase struct {
	eventType *EventType
}

// MakeEventBase creates an EventBase tagged with the given type.
func MakeEventBase(t *EventType) EventBase {
	return EventBase{eventType: t}
}

// Type returns the event's type descriptor.
func (e EventBase) Type() *EventType {
	return e.eventType
}

// TimeoutEventName is the name of the built-in timeout type every handler
// carries. The timeout type's dispatcher is installed with
// Handler.SetTimeoutDispatcher, never through the handler's type list.
const TimeoutEventName = "Timeout Event"

// A TimeoutEvent is synthesized by the alarm clock on behalf of a handler
// with a registered timeout dispatcher. Context is the value supplied at
// registration, returned verbatim on every firing.
type TimeoutEvent struct {
	EventBase

	Context    any
	Expiration time.Time
}
