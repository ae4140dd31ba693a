package events

import "labledger/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Payload is implemented by events that carry a structured attribute map.
type Payload interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers emitted events in order. The node uses one per call and
// only flushes it once the call's state has been committed.
type Recorder struct {
	events []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	if p, ok := evt.(Payload); ok {
		if payload := p.Event(); payload != nil {
			r.events = append(r.events, payload)
		}
		return
	}
	r.events = append(r.events, &types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
}

// Events returns the buffered events.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops every buffered event.
func (r *Recorder) Reset() {
	if r != nil {
		r.events = nil
	}
}

// Filter returns the buffered events with the given type.
func (r *Recorder) Filter(eventType string) []*types.Event {
	if r == nil {
		return nil
	}
	var out []*types.Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
