package model

import "time"

type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "created"
	PaymentCharging PaymentStatus = "charging"
	PaymentCharged  PaymentStatus = "charged"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentIntent records a charge attempt. The idempotency key is the primary
// key: created -> charging -> charged is the only path to a successful charge.
// While charging, LeaseOwner holds the processor call until LeaseExpiresAt.
type PaymentIntent struct {
	IdempotencyKey string        `json:"idempotency_key" bson:"_id"`
	Amount         int64         `json:"amount" bson:"amount"`
	Currency       string        `json:"currency" bson:"currency"`
	Status         PaymentStatus `json:"status" bson:"status"`
	ReceiptID      string        `json:"receipt_id,omitempty" bson:"receipt_id,omitempty"`
	RefundID       string        `json:"refund_id,omitempty" bson:"refund_id,omitempty"`
	FailureReason  string        `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	Attempts       int           `json:"attempts" bson:"attempts"`
	LeaseOwner     string        `json:"lease_owner,omitempty" bson:"lease_owner,omitempty"`
	LeaseExpiresAt time.Time     `json:"lease_expires_at,omitzero" bson:"lease_expires_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" bson:"updated_at"`
}
