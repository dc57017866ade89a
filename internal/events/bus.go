package events

import (
	"sync"

	"github.com/google/uuid"
)

type Event string

const (
	// SessionStarted is published by any surface that starts a session.
	SessionStarted Event = "session-started"
	// MilestoneUpdated is published after a stop applied a milestone delta.
	MilestoneUpdated Event = "milestone-updated"
)

type Payload struct {
	SessionID   uuid.UUID `json:"sessionId,omitempty"`
	MilestoneID uuid.UUID `json:"milestoneId,omitempty"`
	Progress    float64   `json:"progress,omitempty"`
	// Source identifies the publisher so it can ignore its own events.
	Source string `json:"source,omitempty"`
}

type Handler func(Payload)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a fire-and-forget publish/subscribe channel. Dispatch is synchronous
// to the handlers registered at publish time, in registration order. Events
// are not stored; late subscribers never see earlier events.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Event][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]subscription)}
}

// Subscribe registers handler for event and returns a func that removes it.
// Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(event Event, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(event, id) })
	}
}

func (b *Bus) Publish(event Event, payload Payload) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event]...)
	b.mu.RUnlock()

	// Handlers run outside the lock so they may subscribe or unsubscribe.
	for _, s := range subs {
		s.handler(payload)
	}
}

// Subscribers returns the number of handlers currently registered for event.
func (b *Bus) Subscribers(event Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

func (b *Bus) remove(event Event, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[event]
	for i, s := range subs {
		if s.id == id {
			b.subs[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[event]) == 0 {
		delete(b.subs, event)
	}
}
