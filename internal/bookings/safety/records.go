package safety

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/repository"
	"skyport/pkg/clock"
	"skyport/pkg/logger"
	"skyport/pkg/model"
)

const (
	MaxSystolic  = 140
	MaxDiastolic = 90

	DefaultPassingScore      = 80
	DefaultClearanceValidity = 180 * 24 * time.Hour

	supersedeAttempts = 3
)

var RequiredChecks = []string{"blood_pressure", "heart_condition", "bone_density", "inner_ear", "vision"}

// MissingChecks returns the required examinations absent from report.
func MissingChecks(report model.HealthReport) []string {
	present := map[string]bool{
		"blood_pressure":  report.BloodPressure != nil,
		"heart_condition": report.HeartCondition != "",
		"bone_density":    report.BoneDensity != nil,
		"inner_ear":       report.InnerEar != "",
		"vision":          report.Vision != "",
	}
	var missing []string
	for _, check := range RequiredChecks {
		if !present[check] {
			missing = append(missing, check)
		}
	}
	return missing
}

// AssessHealth derives the clearance granted by report. An incomplete report
// leaves clearance pending; blood pressure above limits withholds it.
func AssessHealth(report model.HealthReport, validity time.Duration) model.Clearance {
	if len(MissingChecks(report)) > 0 {
		return model.Clearance{Status: model.ClearancePending, CheckedAt: report.CheckedAt}
	}
	bp := report.BloodPressure
	if bp.Systolic > MaxSystolic || bp.Diastolic > MaxDiastolic {
		return model.Clearance{Status: model.ClearanceNone, CheckedAt: report.CheckedAt}
	}
	return model.Clearance{
		Status:    model.ClearanceCleared,
		CheckedAt: report.CheckedAt,
		ExpiresAt: report.CheckedAt.Add(validity),
	}
}

// AdvanceTraining applies ev to the current progress of one course.
// Completed is terminal and a failed course may be restarted. Replaying an
// event that leads nowhere new reports changed=false.
func AdvanceTraining(current model.TrainingProgress, ev model.TrainingEvent, passingScore int) (next model.TrainingProgress, changed bool, err error) {
	status := current.Status
	if status == "" {
		status = model.TrainingNotStarted
	}
	next = model.TrainingProgress{CourseID: ev.CourseID, Status: status, Score: current.Score, UpdatedAt: ev.At}

	switch ev.Action {
	case model.TrainingStarted:
		switch status {
		case model.TrainingNotStarted, model.TrainingFailed:
			next.Status = model.TrainingInProgress
			next.Score = 0
			return next, true, nil
		case model.TrainingInProgress, model.TrainingCompleted:
			return current, false, nil
		}
	case model.TrainingFinished:
		switch status {
		case model.TrainingInProgress:
			next.Score = ev.Score
			next.Status = model.TrainingFailed
			if ev.Score >= passingScore {
				next.Status = model.TrainingCompleted
			}
			return next, true, nil
		case model.TrainingCompleted:
			return current, false, nil
		}
	}
	return current, false, fmt.Errorf("%w: training %s cannot go from %s on %q", bookingserrors.ErrInvalidTransition, ev.CourseID, status, ev.Action)
}

// Recorder is the only writer of traveler clearance and training state.
// Every change supersedes the stored traveler with a new revision.
type Recorder struct {
	travelers    repository.TravelerRepository
	clock        clock.Clock
	validity     time.Duration
	passingScore int
	logger       *logger.Logger
}

type RecorderOption func(*Recorder)

func WithClearanceValidity(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.validity = d
		}
	}
}

func WithPassingScore(score int) RecorderOption {
	return func(r *Recorder) {
		r.passingScore = score
	}
}

func NewRecorder(travelers repository.TravelerRepository, clk clock.Clock, log *logger.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		travelers:    travelers,
		clock:        clk,
		validity:     DefaultClearanceValidity,
		passingScore: DefaultPassingScore,
		logger:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) ApplyHealthCheck(ctx context.Context, report model.HealthReport) (*model.Traveler, error) {
	if report.CheckedAt.IsZero() {
		report.CheckedAt = r.clock.Now()
	}
	clearance := AssessHealth(report, r.validity)

	traveler, err := r.supersede(ctx, report.TravelerID, func(t *model.Traveler) (bool, error) {
		if t.Clearance.CheckedAt.After(report.CheckedAt) {
			return false, nil
		}
		t.Clearance = clearance
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Clearance updated",
		"traveler_id", report.TravelerID,
		"clearance_status", traveler.Clearance.Status,
		"missing_checks", MissingChecks(report),
		"revision", traveler.Revision,
	)
	return traveler, nil
}

func (r *Recorder) ApplyTrainingEvent(ctx context.Context, ev model.TrainingEvent) (*model.Traveler, error) {
	if ev.At.IsZero() {
		ev.At = r.clock.Now()
	}

	traveler, err := r.supersede(ctx, ev.TravelerID, func(t *model.Traveler) (bool, error) {
		next, changed, err := AdvanceTraining(t.Training[ev.CourseID], ev, r.passingScore)
		if err != nil || !changed {
			return false, err
		}
		if t.Training == nil {
			t.Training = make(map[string]model.TrainingProgress)
		}
		t.Training[ev.CourseID] = next
		if next.Status == model.TrainingCompleted && !t.HasCompleted(ev.CourseID) {
			t.CompletedTraining = append(t.CompletedTraining, ev.CourseID)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Training progress updated",
		"traveler_id", ev.TravelerID,
		"course_id", ev.CourseID,
		"training_status", traveler.Training[ev.CourseID].Status,
		"revision", traveler.Revision,
	)
	return traveler, nil
}

// supersede reads the traveler, applies mutate to a copy and writes it as the
// next revision, re-reading when another writer got there first.
func (r *Recorder) supersede(ctx context.Context, travelerID string, mutate func(*model.Traveler) (bool, error)) (*model.Traveler, error) {
	var lastErr error
	for range supersedeAttempts {
		current, err := r.travelers.FindByID(ctx, travelerID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		changed, err := mutate(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}
		next.UpdatedAt = r.clock.Now()

		err = r.travelers.Save(ctx, next, current.Revision)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, bookingserrors.ErrStatusConflict) {
			return nil, fmt.Errorf("failed to supersede traveler %s: %w", travelerID, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to supersede traveler %s after %d attempts: %w", travelerID, supersedeAttempts, lastErr)
}
