package agentloom

import (
	"slices"
	"sync"
)

// pump copies input onto a fresh channel, passing each event through keep
// first. A false return drops the event. The returned channel closes when
// the input closes.
func pump(input <-chan Event, keep func(Event) bool) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for event := range input {
			if keep(event) {
				out <- event
			}
		}
	}()
	return out
}

// FilterEvents returns a channel that forwards only events whose type is in
// types. With no types given, every event passes through. The returned
// channel closes when the input closes.
func FilterEvents(input <-chan Event, types ...EventType) <-chan Event {
	if len(types) == 0 {
		return pump(input, func(Event) bool { return true })
	}

	allowed := make(map[EventType]struct{}, len(types))
	for _, typ := range types {
		allowed[typ] = struct{}{}
	}
	return pump(input, func(event Event) bool {
		_, ok := allowed[event.Type]
		return ok
	})
}

// EventRecorder tees an event stream, keeping a copy of everything that
// passed through for later inspection.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Record forwards events from input while capturing them. The returned
// channel closes when the input closes.
func (r *EventRecorder) Record(input <-chan Event) <-chan Event {
	return pump(input, func(event Event) bool {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
		return true
	})
}

// Events returns a snapshot of the recorded events.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}
