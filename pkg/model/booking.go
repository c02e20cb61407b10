package model

import (
	"time"
)

type RecordKind string

const (
	RecordBooking      RecordKind = "booking"
	RecordCancellation RecordKind = "cancellation"
)

// BookingRecord is immutable once written. A cancellation is a second record
// pointing at the booking it cancels.
type BookingRecord struct {
	ID               string     `json:"id" bson:"_id"`
	Kind             RecordKind `json:"kind" bson:"kind"`
	TravelerID       string     `json:"traveler_id" bson:"traveler_id"`
	CourseID         string     `json:"course_id" bson:"course_id"`
	HoldID           string     `json:"hold_id" bson:"hold_id"`
	HoldSequence     int64      `json:"hold_sequence" bson:"hold_sequence"`
	IdempotencyKey   string     `json:"idempotency_key" bson:"idempotency_key"`
	ReceiptID        string     `json:"receipt_id" bson:"receipt_id"`
	RefundID         string     `json:"refund_id,omitempty" bson:"refund_id,omitempty"`
	Amount           int64      `json:"amount" bson:"amount"`
	Currency         string     `json:"currency" bson:"currency"`
	CancelsBookingID string     `json:"cancels_booking_id,omitempty" bson:"cancels_booking_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
}

type PaymentPlan string

const (
	PlanFull    PaymentPlan = "full"
	PlanSplit   PaymentPlan = "split"
	PlanDeposit PaymentPlan = "deposit"
)

// BookingRequest is the structured request produced by the conversational front end.
type BookingRequest struct {
	TravelerID         string      `json:"traveler_id" validate:"required,max=64,identifier"`
	CourseID           string      `json:"course_id" validate:"required,max=64,identifier"`
	PaymentMethodToken string      `json:"payment_method_token" validate:"required,payment_token"`
	PaymentPlan        PaymentPlan `json:"payment_plan,omitempty" validate:"omitempty,oneof=full split deposit"`
}
