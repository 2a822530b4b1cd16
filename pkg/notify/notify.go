// Package notify delivers free-form progress messages from a running
// pipeline to whoever is watching it. The engine calls Notify on step
// transitions and media poll ticks; delivery must never block or fail the
// run.
package notify

import (
	"context"
	"log/slog"

	"github.com/redflow/redflow/pkg/eventbus"
	"github.com/redflow/redflow/pkg/events"
)

// Notifier receives progress messages for one run. Implementations must be
// safe for concurrent use and must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, runID, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, runID, message string)

func (f NotifierFunc) Notify(ctx context.Context, runID, message string) {
	f(ctx, runID, message)
}

// Discard drops all messages.
var Discard Notifier = NotifierFunc(func(context.Context, string, string) {})

// LogNotifier writes progress messages to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, runID, message string) {
	n.logger.InfoContext(ctx, "run progress", "run_id", runID, "message", message)
}

// EventBusNotifier publishes progress messages as run.progress events. The
// publish runs in its own goroutine so a slow transport never stalls the
// pipeline; publish errors are logged and dropped.
type EventBusNotifier struct {
	bus    eventbus.EventBus
	logger *slog.Logger
}

func NewEventBusNotifier(bus eventbus.EventBus, logger *slog.Logger) *EventBusNotifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventBusNotifier{bus: bus, logger: logger}
}

func (n *EventBusNotifier) Notify(ctx context.Context, runID, message string) {
	event := events.RunProgress{
		BaseEvent: events.NewBaseEvent(events.RunProgressEvent, runID),
		Message:   message,
	}

	go func() {
		if err := n.bus.Publish(context.WithoutCancel(ctx), runID, event); err != nil {
			n.logger.Warn("failed to publish progress event",
				"run_id", runID, "error", err)
		}
	}()
}

// Multi fans one message out to several notifiers.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, runID, message string) {
		for _, n := range notifiers {
			n.Notify(ctx, runID, message)
		}
	})
}
