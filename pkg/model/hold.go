package model

import "time"

type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldCommitted HoldStatus = "committed"
	HoldReleased  HoldStatus = "released"
	HoldExpired   HoldStatus = "expired"
)

// Occupies reports whether a hold in this status consumes course capacity.
func (s HoldStatus) Occupies() bool {
	return s == HoldActive || s == HoldCommitted
}

// Hold reserves one seat of a course for a traveler for a limited time.
type Hold struct {
	ID         string     `json:"id" bson:"_id"`
	TravelerID string     `json:"traveler_id" bson:"traveler_id"`
	CourseID   string     `json:"course_id" bson:"course_id"`
	Sequence   int64      `json:"sequence" bson:"sequence"`
	Status     HoldStatus `json:"status" bson:"status"`
	ExpiresAt  time.Time  `json:"expires_at" bson:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// Stale reports whether an active hold has outlived its expiry at now.
func (h Hold) Stale(now time.Time) bool {
	return h.Status == HoldActive && !h.ExpiresAt.After(now)
}
