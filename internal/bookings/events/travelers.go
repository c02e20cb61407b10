package events

import (
	"context"
	"errors"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/validator"
	"skyport/pkg/kafka"
	"skyport/pkg/logger"
	"skyport/pkg/model"
)

const (
	EventHealthChecked    = "traveler.health_checked"
	EventTrainingProgress = "traveler.training_progress"
)

// Recorder applies traveler updates.
type Recorder interface {
	ApplyHealthCheck(ctx context.Context, report model.HealthReport) (*model.Traveler, error)
	ApplyTrainingEvent(ctx context.Context, ev model.TrainingEvent) (*model.Traveler, error)
}

// TravelerHandler feeds traveler events from Kafka into the recorder.
// Malformed or invalid events are permanent failures; storage trouble is
// transient and retried by the consumer.
type TravelerHandler struct {
	recorder  Recorder
	validator *validator.BookingValidator
	log       *logger.Logger
}

func NewTravelerHandler(recorder Recorder, v *validator.BookingValidator, log *logger.Logger) *TravelerHandler {
	return &TravelerHandler{recorder: recorder, validator: v, log: log}
}

func (h *TravelerHandler) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.GetEventType() {
	case EventHealthChecked:
		var report model.HealthReport
		if err := msg.DecodeValue(&report); err != nil {
			return kafka.NewPermanentError("decode health report", err)
		}
		if err := h.validator.ValidateHealthReport(&report); err != nil {
			return kafka.NewPermanentError("invalid health report", err)
		}
		_, err := h.recorder.ApplyHealthCheck(ctx, report)
		return classify("apply health report", err)

	case EventTrainingProgress:
		var ev model.TrainingEvent
		if err := msg.DecodeValue(&ev); err != nil {
			return kafka.NewPermanentError("decode training event", err)
		}
		if err := h.validator.ValidateTrainingEvent(&ev); err != nil {
			return kafka.NewPermanentError("invalid training event", err)
		}
		_, err := h.recorder.ApplyTrainingEvent(ctx, ev)
		return classify("apply training event", err)
	}

	h.log.Debug("Ignoring traveler event", "event_type", msg.GetEventType(), "key", msg.Key)
	return nil
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bookingserrors.ErrTravelerNotFound),
		errors.Is(err, bookingserrors.ErrInvalidTransition):
		return kafka.NewPermanentError(op, err)
	}
	return kafka.NewTransientError(op, err)
}
