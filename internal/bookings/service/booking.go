package service

import (
	"context"
	"errors"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/orchestrator"
	"skyport/internal/bookings/validator"
	apperrors "skyport/pkg/errors"
	"skyport/pkg/logger"
	"skyport/pkg/model"
	"skyport/pkg/sanitizer"
)

// Orchestrator is the booking workflow the service fronts.
type Orchestrator interface {
	SubmitBooking(ctx context.Context, req model.BookingRequest) (orchestrator.Outcome, error)
	CancelBooking(ctx context.Context, bookingID string) (orchestrator.CancelOutcome, error)
	GetBooking(ctx context.Context, id string) (*model.BookingRecord, error)
	Availability(ctx context.Context, courseID string) (int, error)
}

type BookingService interface {
	Submit(ctx context.Context, req *model.BookingRequest) (orchestrator.Outcome, error)
	GetByID(ctx context.Context, id string) (*model.BookingRecord, error)
	Cancel(ctx context.Context, id string) (orchestrator.CancelOutcome, error)
	Availability(ctx context.Context, courseID string) (*Availability, error)
}

type Availability struct {
	CourseID  string `json:"course_id"`
	Available int    `json:"available"`
}

type bookingService struct {
	orchestrator Orchestrator
	validator    *validator.BookingValidator
	log          *logger.Logger
}

func NewBookingService(orch Orchestrator, validator *validator.BookingValidator, log *logger.Logger) BookingService {
	return &bookingService{
		orchestrator: orch,
		validator:    validator,
		log:          log,
	}
}

// Submit validates req and runs it through the workflow. Policy rejections
// come back as outcomes, not errors.
func (s *bookingService) Submit(ctx context.Context, req *model.BookingRequest) (orchestrator.Outcome, error) {
	s.sanitize(req)
	if err := s.validator.Validate(req); err != nil {
		return orchestrator.Outcome{}, apperrors.Validation("Booking request validation failed", map[string]any{"error": err.Error()})
	}

	outcome, err := s.orchestrator.SubmitBooking(ctx, *req)
	if err != nil {
		switch {
		case errors.Is(err, bookingserrors.ErrTravelerNotFound):
			return orchestrator.Outcome{}, apperrors.NotFoundWithID("Traveler", req.TravelerID)
		case errors.Is(err, bookingserrors.ErrCourseNotFound):
			return orchestrator.Outcome{}, apperrors.NotFoundWithID("Course", req.CourseID)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return orchestrator.Outcome{}, apperrors.Timeout("Timed out waiting for a concurrent booking attempt")
		}
		s.log.Error("Failed to submit booking", "traveler_id", req.TravelerID, "course_id", req.CourseID, "error", err)
		return orchestrator.Outcome{}, apperrors.Internal("Failed to submit booking", err)
	}
	return outcome, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.BookingRecord, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	record, err := s.orchestrator.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return record, nil
}

func (s *bookingService) Cancel(ctx context.Context, id string) (orchestrator.CancelOutcome, error) {
	if id == "" {
		return orchestrator.CancelOutcome{}, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	outcome, err := s.orchestrator.CancelBooking(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, bookingserrors.ErrNotFound):
			return orchestrator.CancelOutcome{}, apperrors.NotFoundWithID("Booking", id)
		case errors.Is(err, bookingserrors.ErrNotABooking):
			return orchestrator.CancelOutcome{}, apperrors.Conflict("Only bookings can be cancelled")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return orchestrator.CancelOutcome{}, apperrors.Timeout("Timed out waiting for a concurrent cancellation")
		}
		return orchestrator.CancelOutcome{}, apperrors.Internal("Failed to cancel booking", err)
	}
	return outcome, nil
}

func (s *bookingService) Availability(ctx context.Context, courseID string) (*Availability, error) {
	if courseID == "" {
		return nil, apperrors.InvalidInput("Course ID cannot be empty")
	}

	n, err := s.orchestrator.Availability(ctx, courseID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrCourseNotFound) {
			return nil, apperrors.NotFoundWithID("Course", courseID)
		}
		return nil, apperrors.Internal("Failed to compute availability", err)
	}
	return &Availability{CourseID: courseID, Available: n}, nil
}

func (s *bookingService) sanitize(req *model.BookingRequest) {
	req.TravelerID = sanitizer.TrimAndNormalize(req.TravelerID)
	req.CourseID = sanitizer.TrimAndNormalize(req.CourseID)
	req.PaymentMethodToken = sanitizer.TrimAndNormalize(req.PaymentMethodToken)
}
