package model

import "time"

type BloodPressure struct {
	Systolic  int `json:"systolic" validate:"min=0,max=300"`
	Diastolic int `json:"diastolic" validate:"min=0,max=200"`
}

// HealthReport is the result of a medical examination. A nil or empty check
// means the examination did not cover it.
type HealthReport struct {
	TravelerID     string         `json:"traveler_id" validate:"required"`
	CheckedAt      time.Time      `json:"checked_at" validate:"required"`
	BloodPressure  *BloodPressure `json:"blood_pressure,omitempty"`
	HeartCondition string         `json:"heart_condition,omitempty"`
	BoneDensity    *float64       `json:"bone_density,omitempty"`
	InnerEar       string         `json:"inner_ear,omitempty"`
	Vision         string         `json:"vision,omitempty"`
}

type TrainingAction string

const (
	TrainingStarted  TrainingAction = "started"
	TrainingFinished TrainingAction = "finished"
)

type TrainingEvent struct {
	TravelerID string         `json:"traveler_id" validate:"required"`
	CourseID   string         `json:"course_id" validate:"required"`
	Action     TrainingAction `json:"action" validate:"required,oneof=started finished"`
	Score      int            `json:"score,omitempty" validate:"min=0,max=100"`
	At         time.Time      `json:"at"`
}
