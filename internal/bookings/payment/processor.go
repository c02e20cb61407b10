package payment

import (
	"context"
	"errors"
	"fmt"

	bookingserrors "skyport/internal/bookings/errors"
)

// Processor is the contract any external payment gateway client satisfies.
// The idempotency key is forwarded so the gateway can deduplicate too.
//
// Charge and Refund return an error wrapping ErrGatewayDeclined (ideally a
// *DeclinedError) for a definitive refusal. Any other error is treated as
// the processor being unavailable.
type Processor interface {
	Charge(ctx context.Context, idempotencyKey string, amount int64, currency, token string) (receiptID string, err error)
	Refund(ctx context.Context, receiptID string) (refundID string, err error)
}

// DeclinedError is a terminal refusal of a charge by the processor.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

func (e *DeclinedError) Unwrap() error {
	return bookingserrors.ErrGatewayDeclined
}

func Declined(reason string) error {
	return &DeclinedError{Reason: reason}
}

// DeclineReason extracts the processor's reason from a declined error.
func DeclineReason(err error) string {
	var declined *DeclinedError
	if errors.As(err, &declined) {
		return declined.Reason
	}
	return "declined"
}

func IsDeclined(err error) bool {
	return errors.Is(err, bookingserrors.ErrGatewayDeclined)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, bookingserrors.ErrProcessorUnavailable)
}

// Receipt is the proof of one successful charge.
type Receipt struct {
	ReceiptID      string `json:"receipt_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// UnrecordedChargeError reports a charge the processor accepted but whose
// outcome could not be written to the intent record. Receipt identifies the
// money that moved so the caller can refund it through Compensate.
type UnrecordedChargeError struct {
	Receipt Receipt
	Err     error
}

func (e *UnrecordedChargeError) Error() string {
	return fmt.Sprintf("charge %s succeeded but was not recorded: %v", e.Receipt.ReceiptID, e.Err)
}

func (e *UnrecordedChargeError) Unwrap() error {
	return e.Err
}

// AsUnrecorded returns the unrecorded charge carried by err, if any.
func AsUnrecorded(err error) (*UnrecordedChargeError, bool) {
	var unrecorded *UnrecordedChargeError
	if errors.As(err, &unrecorded) {
		return unrecorded, true
	}
	return nil, false
}
