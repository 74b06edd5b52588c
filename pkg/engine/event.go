package engine

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Events posted by the engine itself.
const (
	EventGameStarted       = "game_started"
	EventGameEnded         = "game_ended"
	EventPlayerAdded       = "player_added"
	EventPlayerTurnStarted = "player_turn_started"
)

// Event is an immutable named notification with keyword arguments.
type Event struct {
	Name      string
	Args      map[string]any
	Timestamp time.Time
}

// Handler reacts to an event. Handlers run synchronously on the posting
// goroutine and may post further events.
type Handler func(Event)

type handlerEntry struct {
	fn      Handler
	removed atomic.Bool
}

// Subscription receives every event from an EventBus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// EventBus dispatches named events. Handlers registered with On run
// synchronously in registration order, so everything an event causes has
// happened by the time Post returns. Subscriptions observe all events
// asynchronously through a buffered channel. It is safe for concurrent use.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
	subs     map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]*handlerEntry),
		subs:     make(map[*Subscription]struct{}),
	}
}

// On registers fn for events named name and returns a function that removes
// it. A removed handler is skipped even by a dispatch already in progress.
func (b *EventBus) On(name string, fn Handler) (remove func()) {
	entry := &handlerEntry{fn: fn}

	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], entry)
	b.mu.Unlock()

	return func() {
		if entry.removed.Swap(true) {
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		list := b.handlers[name]
		for i, h := range list {
			if h == entry {
				b.handlers[name] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.handlers[name]) == 0 {
			delete(b.handlers, name)
		}
	}
}

// HasHandlers reports whether any handler is registered for name.
func (b *EventBus) HasHandlers(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[name]) > 0
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Post publishes an event named name. args is copied.
func (b *EventBus) Post(name string, args map[string]any) {
	b.Publish(Event{
		Name:      name,
		Args:      maps.Clone(args),
		Timestamp: time.Now(),
	})
}

// Publish delivers e to every subscriber and then runs the handlers for
// e.Name. A subscriber whose buffer is full misses the event so a slow
// observer never stalls the game loop.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
	handlers := append([]*handlerEntry(nil), b.handlers[e.Name]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h.removed.Load() {
			continue
		}
		h.fn(e)
	}
}
