package orchestrator

import (
	"context"

	"skyport/pkg/model"
)

// Publisher announces terminal outcomes. A failed publish is logged and never
// changes the outcome.
type Publisher interface {
	Publish(ctx context.Context, event model.BookingEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, model.BookingEvent) error { return nil }

func eventType(state State) model.BookingEventType {
	switch state {
	case StateCommitted:
		return model.EventBookingCommitted
	case StateDeclined:
		return model.EventBookingDeclined
	case StateFailed:
		return model.EventBookingFailed
	default:
		return model.EventBookingRejected
	}
}
