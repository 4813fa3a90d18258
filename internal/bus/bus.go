// Package bus provides the in-process typed publish/subscribe used for
// lifecycle events. Dispatch is synchronous on the emitter; subscriber
// panics are caught so one subscriber cannot break another.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain/activity"
)

// Event is one lifecycle event flowing through the bus.
type Event struct {
	Kind      activity.Kind
	Account   string
	TaskID    string
	Timestamp time.Time
	Payload   map[string]string
}

// Handler processes one event.
type Handler func(Event)

// Bus dispatches events to subscribers in registration order.
type Bus struct {
	mu   sync.RWMutex
	subs map[activity.Kind][]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[activity.Kind][]Handler)}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind activity.Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], h)
}

// SubscribeAll registers a handler for every known kind.
func (b *Bus) SubscribeAll(h Handler) {
	for _, kind := range activity.Kinds {
		b.Subscribe(kind, h)
	}
}

// Emit delivers the event to every subscriber of its kind, in
// registration order. A panicking subscriber is logged and skipped.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := b.subs[ev.Kind]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, ev)
	}
}

func (b *Bus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	h(ev)
}
