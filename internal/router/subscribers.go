package router

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is what subscribers receive for every status change, progress update
// and journal append, in the order the mutations were applied.
type Event struct {
	Type string
	Data map[string]any
}

type EventCallback func(Event)

type subscriberSet struct {
	mu        sync.Mutex
	callbacks map[uuid.UUID]EventCallback
	log       *zap.SugaredLogger
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{
		callbacks: map[uuid.UUID]EventCallback{},
		log:       zap.S().Named("router"),
	}
}

// Subscribe registers a callback and returns the token used to unsubscribe.
func (r *Router) Subscribe(cb EventCallback) uuid.UUID {
	r.subscribers.mu.Lock()
	defer r.subscribers.mu.Unlock()
	id := uuid.New()
	r.subscribers.callbacks[id] = cb
	return id
}

func (r *Router) Unsubscribe(id uuid.UUID) {
	r.subscribers.mu.Lock()
	defer r.subscribers.mu.Unlock()
	delete(r.subscribers.callbacks, id)
}

// Broadcast delivers the event to every subscriber synchronously. A panic in
// one subscriber is isolated so it cannot block delivery to the others.
func (r *Router) Broadcast(event Event) {
	r.subscribers.mu.Lock()
	callbacks := make([]EventCallback, 0, len(r.subscribers.callbacks))
	for _, cb := range r.subscribers.callbacks {
		callbacks = append(callbacks, cb)
	}
	r.subscribers.mu.Unlock()

	for _, cb := range callbacks {
		r.deliver(cb, event)
	}
}

func (r *Router) deliver(cb EventCallback, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.subscribers.log.Warnw("subscriber panicked", "event", event.Type, "panic", rec)
		}
	}()
	cb(event)
}

// Publish implements session.Notifier so session mutators fan out through
// the router's subscriber set.
func (r *Router) Publish(eventType string, data map[string]any) {
	r.Broadcast(Event{Type: eventType, Data: data})
}
