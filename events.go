package granite

import (
	"github.com/akmonengine/granite/actor"
	"github.com/akmonengine/granite/constraint"
)

const (
	CONTACT_ENTER EventType = iota
	CONTACT_STAY
	CONTACT_EXIT
	BODY_UNSTABLE
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// ContactEnterEvent fires on the first step a contact pair is active.
type ContactEnterEvent struct {
	BodyA actor.ID
	BodyB actor.ID
	Key   uint64
}

func (e ContactEnterEvent) Type() EventType { return CONTACT_ENTER }

// ContactStayEvent fires on every subsequent step the pair stays active.
type ContactStayEvent struct {
	BodyA actor.ID
	BodyB actor.ID
	Key   uint64
}

func (e ContactStayEvent) Type() EventType { return CONTACT_STAY }

// ContactExitEvent fires on the first step a previously active pair is gone.
type ContactExitEvent struct {
	BodyA actor.ID
	BodyB actor.ID
	Key   uint64
}

func (e ContactExitEvent) Type() EventType { return CONTACT_EXIT }

// UnstableEvent fires when validation clamps or resets a body.
type UnstableEvent struct {
	Body actor.ID
}

func (e UnstableEvent) Type() EventType { return BODY_UNSTABLE }

// EventListener - callback for events
type EventListener func(event Event)

type contactPair struct {
	bodyA actor.ID
	bodyB actor.ID
}

// Events tracks contact transitions across steps and dispatches them to
// subscribers at the end of each step. Contacts are rebuilt every step, so
// transitions are detected on the persistence key rather than instance
// identity.
type Events struct {
	listeners map[EventType][]EventListener

	buffer []Event

	previousActive map[uint64]contactPair
	currentActive  map[uint64]contactPair
}

func NewEvents() Events {
	return Events{
		listeners:      make(map[EventType][]EventListener),
		buffer:         make([]Event, 0, 256),
		previousActive: make(map[uint64]contactPair),
		currentActive:  make(map[uint64]contactPair),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

// recordContacts is called once per step with the assembled constraint set.
func (e *Events) recordContacts(constraints []*constraint.Constraint) {
	for _, c := range constraints {
		if c.Kind != constraint.KindContact {
			continue
		}
		e.currentActive[c.Key.Pair] = contactPair{bodyA: c.BodyA.ID(), bodyB: c.BodyB.ID()}
	}
}

// emitUnstable buffers an instability event (called from validation).
func (e *Events) emitUnstable(body actor.ID) {
	e.buffer = append(e.buffer, UnstableEvent{Body: body})
}

// processContactEvents compares current and previous pairs to detect
// Enter/Stay/Exit transitions.
func (e *Events) processContactEvents() {
	for key, pair := range e.currentActive {
		if _, ok := e.previousActive[key]; ok {
			e.buffer = append(e.buffer, ContactStayEvent{BodyA: pair.bodyA, BodyB: pair.bodyB, Key: key})
		} else {
			e.buffer = append(e.buffer, ContactEnterEvent{BodyA: pair.bodyA, BodyB: pair.bodyB, Key: key})
		}
	}

	for key, pair := range e.previousActive {
		if _, ok := e.currentActive[key]; !ok {
			e.buffer = append(e.buffer, ContactExitEvent{BodyA: pair.bodyA, BodyB: pair.bodyB, Key: key})
		}
	}

	// Swap for next frame and clear current
	e.previousActive, e.currentActive = e.currentActive, e.previousActive
	clear(e.currentActive)
}

// flush sends all buffered events and clears the buffer
func (e *Events) flush() {
	e.processContactEvents()

	for _, event := range e.buffer {
		if listeners, ok := e.listeners[event.Type()]; ok {
			for _, listener := range listeners {
				listener(event)
			}
		}
	}
	e.buffer = e.buffer[:0]
}
