package safety

import (
	"slices"
	"time"

	"skyport/pkg/model"
)

type Decision string

const (
	Eligible         Decision = "eligible"
	NotEligible      Decision = "not_eligible"
	TrainingRequired Decision = "training_required"
)

const (
	ReasonNoClearance      = "no_clearance"
	ReasonClearancePending = "clearance_pending"
	ReasonClearanceExpired = "clearance_expired"
	ReasonMissingTraining  = "missing_training"
)

// Verdict is the outcome of evaluating one traveler snapshot against one course.
type Verdict struct {
	Decision Decision
	Reason   string
	// Missing lists prerequisites absent from the traveler's completed
	// training, sorted. InProgress is the subset already being trained for.
	Missing    []string
	InProgress []string
}

func (v Verdict) Eligible() bool {
	return v.Decision == Eligible
}

// Evaluate decides whether traveler may book course at now. It has no side
// effects; callers evaluate again on every attempt.
func Evaluate(traveler *model.Traveler, course *model.Course, now time.Time) Verdict {
	switch traveler.Clearance.Status {
	case model.ClearanceCleared:
		if !traveler.Clearance.ExpiresAt.After(now) {
			return Verdict{Decision: NotEligible, Reason: ReasonClearanceExpired}
		}
	case model.ClearanceExpired:
		return Verdict{Decision: NotEligible, Reason: ReasonClearanceExpired}
	case model.ClearancePending:
		return Verdict{Decision: NotEligible, Reason: ReasonClearancePending}
	default:
		return Verdict{Decision: NotEligible, Reason: ReasonNoClearance}
	}

	var missing, inProgress []string
	for _, prereq := range course.Prerequisites {
		if traveler.HasCompleted(prereq) || slices.Contains(missing, prereq) {
			continue
		}
		missing = append(missing, prereq)
		if p, ok := traveler.Training[prereq]; ok && p.Status == model.TrainingInProgress {
			inProgress = append(inProgress, prereq)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		slices.Sort(inProgress)
		return Verdict{
			Decision:   TrainingRequired,
			Reason:     ReasonMissingTraining,
			Missing:    missing,
			InProgress: inProgress,
		}
	}

	return Verdict{Decision: Eligible}
}
