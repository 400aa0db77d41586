package saturation

import "sync"

// Event is a monitor notification.
type Event interface {
	// Type returns the event type discriminator.
	Type() string
}

// ChangedEvent fires when the discrete saturation level changes.
type ChangedEvent struct {
	Previous Level
	Current  Level
	State    State
}

func (ChangedEvent) Type() string { return "saturation_changed" }

// ActionRequiredEvent fires on a level change when AutoTriggerActions is
// enabled, carrying the recommended mitigation and a tokens-to-free hint.
type ActionRequiredEvent struct {
	Action       Action
	TokensToFree int
	State        State
}

func (ActionRequiredEvent) Type() string { return "action_required" }

// Emitter delivers monitor events to subscribers.
type Emitter interface {
	Emit(Event)
}

// FanoutEmitter is a subscriber-list Emitter. It records emitted events for
// inspection in tests and dispatches to handlers outside its own lock.
type FanoutEmitter struct {
	mu       sync.RWMutex
	handlers []func(Event)
	events   []Event
}

// NewFanoutEmitter creates an empty emitter.
func NewFanoutEmitter() *FanoutEmitter {
	return &FanoutEmitter{}
}

// Emit delivers the event to all subscribers.
func (e *FanoutEmitter) Emit(event Event) {
	e.mu.Lock()
	e.events = append(e.events, event)
	handlers := make([]func(Event), len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Subscribe registers a handler for future events.
func (e *FanoutEmitter) Subscribe(handler func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// Events returns all emitted events.
func (e *FanoutEmitter) Events() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Clear drops all recorded events.
func (e *FanoutEmitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}
