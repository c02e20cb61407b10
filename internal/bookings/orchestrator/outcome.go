package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"skyport/pkg/model"
)

type State string

const (
	StateReceived      State = "received"
	StateSafetyChecked State = "safety_checked"
	StateHoldAcquired  State = "hold_acquired"
	StateCharging      State = "charging"
	StateCommitted     State = "committed"

	StateDeclined            State = "declined"
	StateCapacityUnavailable State = "capacity_unavailable"
	StateIneligible          State = "ineligible"
	StateTrainingRequired    State = "training_required"
	StateFailed              State = "failed"
)

func (s State) Terminal() bool {
	switch s {
	case StateCommitted, StateDeclined, StateCapacityUnavailable, StateIneligible, StateTrainingRequired, StateFailed:
		return true
	}
	return false
}

// Reason codes carried by non-committed outcomes. Ineligible and declined
// outcomes use the safety gate's and the processor's reasons verbatim.
const (
	ReasonCapacityExceeded     = "capacity_exceeded"
	ReasonProcessorUnavailable = "processor_unavailable"
	ReasonChargedNotBooked     = "charged-but-not-booked"
	ReasonChargedRefundPending = "charged-refund-pending"
	ReasonRecordPending        = "charged-record-pending"
	ReasonIdempotencyConflict  = "idempotency_conflict"
	ReasonInternal             = "internal_error"
)

// Outcome is the terminal result of one SubmitBooking attempt. Failed
// outcomes keep every identifier reached so far for reconciliation.
type Outcome struct {
	State          State                `json:"state"`
	Reason         string               `json:"reason,omitempty"`
	TravelerID     string               `json:"traveler_id"`
	CourseID       string               `json:"course_id"`
	BookingID      string               `json:"booking_id,omitempty"`
	HoldID         string               `json:"hold_id,omitempty"`
	HoldSequence   int64                `json:"hold_sequence,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	ReceiptID      string               `json:"receipt_id,omitempty"`
	RefundID       string               `json:"refund_id,omitempty"`
	Amount         int64                `json:"amount,omitempty"`
	Currency       string               `json:"currency,omitempty"`
	Missing        []string             `json:"missing_training,omitempty"`
	InProgress     []string             `json:"training_in_progress,omitempty"`
	Resumed        bool                 `json:"resumed,omitempty"`
	Booking        *model.BookingRecord `json:"booking,omitempty"`
	Detail         string               `json:"detail,omitempty"`
	Cause          error                `json:"-"`
}

type CancelResult string

const (
	Cancelled        CancelResult = "cancelled"
	AlreadyCancelled CancelResult = "already_cancelled"
	RefundFailed     CancelResult = "refund_failed"
)

type CancelOutcome struct {
	Result       CancelResult         `json:"result"`
	BookingID    string               `json:"booking_id"`
	RefundID     string               `json:"refund_id,omitempty"`
	Cancellation *model.BookingRecord `json:"cancellation,omitempty"`
	Detail       string               `json:"detail,omitempty"`
	Cause        error                `json:"-"`
}

// IdempotencyKey derives the payment key for one hold. Resuming the same hold
// always yields the same key.
func IdempotencyKey(travelerID, courseID string, holdSequence int64) string {
	sum := sha256.Sum256([]byte(travelerID + "|" + courseID + "|" + strconv.FormatInt(holdSequence, 10)))
	return hex.EncodeToString(sum[:])
}
