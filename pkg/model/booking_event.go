package model

import "time"

type BookingEventType string

const (
	EventBookingCommitted BookingEventType = "booking.committed"
	EventBookingDeclined  BookingEventType = "booking.declined"
	EventBookingRejected  BookingEventType = "booking.rejected"
	EventBookingFailed    BookingEventType = "booking.failed"
	EventBookingCancelled BookingEventType = "booking.cancelled"
)

// BookingEvent announces a terminal booking or cancellation outcome.
// Failed events carry the hold and receipt identifiers needed to reconcile
// by hand.
type BookingEvent struct {
	ID           string           `json:"id"`
	Type         BookingEventType `json:"type"`
	State        string           `json:"state"`
	Reason       string           `json:"reason,omitempty"`
	BookingID    string           `json:"booking_id,omitempty"`
	TravelerID   string           `json:"traveler_id"`
	CourseID     string           `json:"course_id"`
	HoldID       string           `json:"hold_id,omitempty"`
	HoldSequence int64            `json:"hold_sequence,omitempty"`
	ReceiptID    string           `json:"receipt_id,omitempty"`
	RefundID     string           `json:"refund_id,omitempty"`
	Amount       int64            `json:"amount,omitempty"`
	Currency     string           `json:"currency,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
