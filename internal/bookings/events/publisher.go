// Package events connects the booking workflow to Kafka: outcomes go out on
// the bookings topic, and traveler health and training updates come in.
package events

import (
	"context"
	"fmt"

	"skyport/pkg/kafka"
	"skyport/pkg/model"
)

const (
	SchemaVersion = "1"
	Source        = "bookings"
)

// MessagePublisher is the slice of a Kafka producer the publisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Publisher emits booking events keyed by traveler and course, so every
// event about one pair lands on one partition in order.
type Publisher struct {
	producer MessagePublisher
}

func NewPublisher(producer MessagePublisher) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) Publish(ctx context.Context, ev model.BookingEvent) error {
	msg, err := kafka.NewMessage().
		WithKey(ev.TravelerID + "|" + ev.CourseID).
		WithValue(ev).
		WithEventID(ev.ID).
		WithEventType(string(ev.Type)).
		WithCorrelationID(ev.HoldID).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithTimestamp(ev.OccurredAt).
		Build()
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for %s: %w", ev.Type, msg.Key, err)
	}
	return nil
}
