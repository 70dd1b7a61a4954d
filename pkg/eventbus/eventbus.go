package eventbus

import (
	"reflect"
	"sync"
)

// Handler is a function that handles an event
type Handler func(event any)

// EventBus provides in-process pub/sub keyed by event type.
// Snapshot and trade events fan out through it to the NATS publisher,
// the voucher publisher, the audit mirror and watchlist trackers.
type EventBus struct {
	handlers map[reflect.Type][]Handler
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// New creates a new EventBus
func New() *EventBus {
	return &EventBus{
		handlers: make(map[reflect.Type][]Handler),
	}
}

// Subscribe registers a typed handler for events of type T.
// Pointer events (*T) are delivered to it as well.
func Subscribe[T any](e *EventBus, handler func(T)) {
	t := reflect.TypeFor[T]()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers[t] = append(e.handlers[t], func(event any) {
		switch v := event.(type) {
		case T:
			handler(v)
		case *T:
			if v != nil {
				handler(*v)
			}
		}
	})
}

func (e *EventBus) lookup(event any) []Handler {
	if event == nil {
		return nil
	}
	t := reflect.TypeOf(event)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	hs := e.handlers[t]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Publish delivers an event to every subscriber asynchronously.
func (e *EventBus) Publish(event any) {
	for _, h := range e.lookup(event) {
		e.wg.Add(1)
		go func(h Handler) {
			defer e.wg.Done()
			h(event)
		}(h)
	}
}

// PublishSync delivers an event to every subscriber on the caller's goroutine.
func (e *EventBus) PublishSync(event any) {
	for _, h := range e.lookup(event) {
		h(event)
	}
}

// Wait blocks until all asynchronous deliveries started so far have returned.
func (e *EventBus) Wait() {
	e.wg.Wait()
}

// SubscriberCount returns the number of subscribers for the type of sample.
func (e *EventBus) SubscriberCount(sample any) int {
	return len(e.lookup(sample))
}
