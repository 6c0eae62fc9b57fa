package revolt

import (
	"sync"

	"github.com/rs/zerolog"
)

// EventKind names one of the cache events.
type EventKind string

const (
	EventChannelCreate   EventKind = "create/channel"
	EventMessageCreate   EventKind = "create/message"
	EventChannelMutation EventKind = "mutation/channel"
	EventChannelDelete   EventKind = "delete/channel"
	EventMessage         EventKind = "message"
)

// Event is implemented only by the event types in this package, so a type
// switch over them is exhaustive.
type Event interface {
	Kind() EventKind
	isEvent()
}

// ChannelCreated is emitted once a freshly fetched channel is hydrated and
// registered.
type ChannelCreated struct {
	Channel Channel
}

// MessageCreated is emitted once a freshly fetched message is registered.
type MessageCreated struct {
	Message *Message
}

// ChannelMutated is emitted when a group patch actually changed a field.
// Patch is the partial update as received.
type ChannelMutated struct {
	Channel Channel
	Patch   ChannelPatch
}

// ChannelDeleted is emitted after the deletion cascade.
type ChannelDeleted struct {
	ID string
}

// MessageSent is emitted after a message sent through this client has been
// routed into the cache.
type MessageSent struct {
	Message *Message
}

func (ChannelCreated) Kind() EventKind { return EventChannelCreate }
func (MessageCreated) Kind() EventKind { return EventMessageCreate }
func (ChannelMutated) Kind() EventKind { return EventChannelMutation }
func (ChannelDeleted) Kind() EventKind { return EventChannelDelete }
func (MessageSent) Kind() EventKind    { return EventMessage }

func (ChannelCreated) isEvent() {}
func (MessageCreated) isEvent() {}
func (ChannelMutated) isEvent() {}
func (ChannelDeleted) isEvent() {}
func (MessageSent) isEvent()    {}

// ============================================================================
// Event Emitter
// ============================================================================

// EventHandler handles cache events. Handlers run synchronously on the
// goroutine that caused the event; a panicking handler is recovered.
type EventHandler func(Event)

type emitter struct {
	mu        sync.RWMutex
	listeners map[EventKind][]EventHandler
	wildcard  []EventHandler
	log       zerolog.Logger
	metrics   *cacheMetrics
}

func newEmitter(log zerolog.Logger, metrics *cacheMetrics) *emitter {
	return &emitter{
		listeners: make(map[EventKind][]EventHandler),
		log:       log,
		metrics:   metrics,
	}
}

func (e *emitter) on(kind EventKind, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[kind] = append(e.listeners[kind], handler)
}

func (e *emitter) onAny(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wildcard = append(e.wildcard, handler)
}

func (e *emitter) emit(ev Event) {
	kind := ev.Kind()
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.listeners[kind])+len(e.wildcard))
	handlers = append(handlers, e.listeners[kind]...)
	handlers = append(handlers, e.wildcard...)
	e.mu.RUnlock()

	e.metrics.emitted(kind)
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Warn().Str("event", string(kind)).Interface("panic", r).Msg("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}

func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[EventKind][]EventHandler)
	e.wildcard = nil
}
