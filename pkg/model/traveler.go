package model

import (
	"slices"
	"time"
)

type ClearanceStatus string

const (
	ClearanceNone    ClearanceStatus = "none"
	ClearancePending ClearanceStatus = "pending"
	ClearanceCleared ClearanceStatus = "cleared"
	ClearanceExpired ClearanceStatus = "expired"
)

type Clearance struct {
	Status    ClearanceStatus `json:"status" bson:"status" yaml:"status" validate:"required,oneof=none pending cleared expired"`
	ExpiresAt time.Time       `json:"expires_at,omitempty" bson:"expires_at,omitempty" yaml:"expires_at"`
	CheckedAt time.Time       `json:"checked_at,omitempty" bson:"checked_at,omitempty" yaml:"checked_at"`
}

type TrainingStatus string

const (
	TrainingNotStarted TrainingStatus = "not_started"
	TrainingInProgress TrainingStatus = "in_progress"
	TrainingCompleted  TrainingStatus = "completed"
	TrainingFailed     TrainingStatus = "failed"
)

type TrainingProgress struct {
	CourseID  string         `json:"course_id" bson:"course_id"`
	Status    TrainingStatus `json:"status" bson:"status"`
	Score     int            `json:"score,omitempty" bson:"score,omitempty"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updated_at"`
}

// Traveler is superseded on every clearance or training change, never deleted.
// Revision increases by one per superseding write.
type Traveler struct {
	ID                string                      `json:"id" bson:"_id" yaml:"id" validate:"required"`
	Name              string                      `json:"name" bson:"name" yaml:"name" validate:"required,min=1,max=100"`
	Clearance         Clearance                   `json:"clearance" bson:"clearance" yaml:"clearance"`
	CompletedTraining []string                    `json:"completed_training" bson:"completed_training" yaml:"completed_training" validate:"omitempty,dive,required"`
	Training          map[string]TrainingProgress `json:"training,omitempty" bson:"training,omitempty" yaml:"-"`
	Revision          int64                       `json:"revision" bson:"revision" yaml:"-"`
	UpdatedAt         time.Time                   `json:"updated_at" bson:"updated_at" yaml:"-"`
}

func (t *Traveler) HasCompleted(courseID string) bool {
	return slices.Contains(t.CompletedTraining, courseID)
}

// Clone returns a deep copy so callers can derive a superseding revision
// without touching the snapshot they were handed.
func (t *Traveler) Clone() *Traveler {
	c := *t
	c.CompletedTraining = slices.Clone(t.CompletedTraining)
	if t.Training != nil {
		c.Training = make(map[string]TrainingProgress, len(t.Training))
		for k, v := range t.Training {
			c.Training[k] = v
		}
	}
	return &c
}
