package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Handler handles a published event.
type Handler func(ctx context.Context, event any) error

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventbus: nil event")

// ErrInvalidEventType is returned when the event type cannot be determined
// or a handler receives an event of an unexpected type.
var ErrInvalidEventType = errors.New("eventbus: invalid event type")

// Bus is an in-process, synchronous event bus. Handlers run on the
// publisher's goroutine in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Publish dispatches an event to every handler of its type. All handlers run
// even if one fails; the failures are joined.
func (b *Bus) Publish(ctx context.Context, event any) error {
	if b == nil {
		return nil
	}
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for an event type name.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	if b == nil || eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// On registers a typed handler for events of type T, accepting T or *T.
func On[T any](b *Bus, handler func(ctx context.Context, event T) error) {
	b.Subscribe(EventTypeOf[T](), func(ctx context.Context, event any) error {
		switch evt := event.(type) {
		case T:
			return handler(ctx, evt)
		case *T:
			if evt == nil {
				return ErrNilEvent
			}
			return handler(ctx, *evt)
		default:
			return ErrInvalidEventType
		}
	})
}

// EventType returns the fully-qualified type name for an event instance.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf returns the fully-qualified type name for a type parameter.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// NewEventID returns a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}
