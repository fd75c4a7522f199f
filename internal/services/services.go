// Package services orchestrates the ledger operations across storage, the
// scoring and draw engines, and the event publisher.
package services

import (
	"context"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/log"
	"kakeibo/internal/metrics"
)

// EventPublisher publishes ledger events. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.Event) error
}

// Options carries the collaborators every service shares. Zero values are
// usable: no publisher, no metrics, a discarding logger and time.Now.
type Options struct {
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Logger    *log.Logger
	Now       func() time.Time
}

func (o Options) resolve(component string) Options {
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	o.Logger = o.Logger.WithComponent(component)
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// publish sends an event without failing the caller. The ledger write has
// already happened by the time an event goes out.
func (o Options) publish(ctx context.Context, t amqp.EventType, payload any) {
	if o.Publisher == nil {
		o.Logger.DebugContext(ctx, "AMQP client not available, skipping event", log.FieldEventType, string(t))
		return
	}

	event, err := amqp.NewEvent(t, payload)
	if err != nil {
		o.Logger.ErrorContext(ctx, "Failed to build event", log.FieldEventType, string(t), log.FieldError, err)
		return
	}

	err = o.Publisher.Publish(ctx, event)
	o.Metrics.EventPublished(string(t), err)
	if err != nil {
		o.Logger.ErrorContext(ctx, "Failed to publish event",
			log.FieldEventType, string(t), log.FieldError, err)
	}
}
