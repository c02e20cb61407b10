package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrTravelerNotFound = errors.New("traveler not found")

	ErrCourseNotFound = errors.New("course not found")

	ErrHoldNotFound = errors.New("hold not found")

	ErrIntentNotFound = errors.New("payment intent not found")

	ErrCapacityExceeded = errors.New("course capacity exceeded")

	ErrHoldExpired = errors.New("hold expired or released")

	ErrStatusConflict = errors.New("record status changed concurrently")

	ErrDuplicate = errors.New("record already exists")

	ErrAlreadyCancelled = errors.New("booking already cancelled")

	ErrNotABooking = errors.New("record is not a booking")

	ErrProcessorUnavailable = errors.New("payment processor unavailable")

	ErrGatewayDeclined = errors.New("payment declined by gateway")

	ErrIdempotencyConflict = errors.New("idempotency key reused with a different amount")

	ErrRefundFailed = errors.New("refund could not be confirmed")

	ErrAlreadyRefunded = errors.New("payment already refunded")

	ErrInvalidTransition = errors.New("invalid status transition")
)
