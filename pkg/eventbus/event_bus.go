// Package eventbus publishes and consumes run lifecycle events over
// watermill, keeping the engine decoupled from the transport (in-process
// channel for tests and single-binary runs, kafka for deployments).
package eventbus

import (
	"context"

	"github.com/redflow/redflow/pkg/events"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() events.EventType
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	GenerateID() string
	Close() error
}
