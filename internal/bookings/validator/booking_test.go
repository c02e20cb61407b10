package validator

import (
	"errors"
	"testing"
	"time"

	"skyport/pkg/logger"
	"skyport/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() model.BookingRequest {
	return model.BookingRequest{
		TravelerID:         "t-1",
		CourseID:           "orbit-101",
		PaymentMethodToken: "tok_visa_4242",
		PaymentPlan:        model.PlanFull,
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %T", err)
	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	return fields
}

func TestValidate(t *testing.T) {
	v := NewBookingValidator(logger.Discard())

	tests := []struct {
		name      string
		mutate    func(*model.BookingRequest)
		wantField string
	}{
		{"valid", func(*model.BookingRequest) {}, ""},
		{"plan omitted", func(r *model.BookingRequest) { r.PaymentPlan = "" }, ""},
		{"missing traveler", func(r *model.BookingRequest) { r.TravelerID = "" }, "TravelerID"},
		{"traveler with spaces", func(r *model.BookingRequest) { r.TravelerID = "t 1" }, "TravelerID"},
		{"course too long", func(r *model.BookingRequest) { r.CourseID = string(make([]byte, 65)) }, "CourseID"},
		{"short token", func(r *model.BookingRequest) { r.PaymentMethodToken = "tok" }, "PaymentMethodToken"},
		{"token with symbols", func(r *model.BookingRequest) { r.PaymentMethodToken = "tok;drop" }, "PaymentMethodToken"},
		{"unknown plan", func(r *model.BookingRequest) { r.PaymentPlan = "layaway" }, "PaymentPlan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := v.Validate(&req)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			assert.Contains(t, fieldsOf(t, err), tt.wantField)
		})
	}
}

func TestValidateHealthReport(t *testing.T) {
	v := NewBookingValidator(logger.Discard())
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	ok := &model.HealthReport{TravelerID: "t-1", CheckedAt: now, BloodPressure: &model.BloodPressure{Systolic: 120, Diastolic: 80}}
	assert.NoError(t, v.ValidateHealthReport(ok))

	inverted := &model.HealthReport{TravelerID: "t-1", CheckedAt: now, BloodPressure: &model.BloodPressure{Systolic: 70, Diastolic: 90}}
	assert.Equal(t, []string{"BloodPressure"}, fieldsOf(t, v.ValidateHealthReport(inverted)))

	undated := &model.HealthReport{TravelerID: "t-1"}
	assert.Equal(t, []string{"CheckedAt"}, fieldsOf(t, v.ValidateHealthReport(undated)))
}

func TestValidateTrainingEvent(t *testing.T) {
	v := NewBookingValidator(logger.Discard())

	assert.NoError(t, v.ValidateTrainingEvent(&model.TrainingEvent{TravelerID: "t-1", CourseID: "eva", Action: model.TrainingFinished, Score: 91}))
	assert.Equal(t, []string{"Action"}, fieldsOf(t, v.ValidateTrainingEvent(&model.TrainingEvent{TravelerID: "t-1", CourseID: "eva", Action: "paused"})))
	assert.Equal(t, []string{"Score"}, fieldsOf(t, v.ValidateTrainingEvent(&model.TrainingEvent{TravelerID: "t-1", CourseID: "eva", Action: model.TrainingStarted, Score: 50})))
}

func TestValidateCourse(t *testing.T) {
	v := NewBookingValidator(logger.Discard())
	course := &model.Course{
		ID:          "orbit-101",
		Name:        "Low Earth Orbit",
		DepartureAt: time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC),
		Capacity:    4,
		Price:       25000000,
		Currency:    "USD",
	}
	assert.NoError(t, v.ValidateCourse(course))

	course.Prerequisites = []string{"orbit-101"}
	assert.Equal(t, []string{"Prerequisites"}, fieldsOf(t, v.ValidateCourse(course)))

	course.Prerequisites = nil
	course.Currency = "US"
	assert.Equal(t, []string{"Currency"}, fieldsOf(t, v.ValidateCourse(course)))
}

func TestValidateTraveler(t *testing.T) {
	v := NewBookingValidator(logger.Discard())
	traveler := &model.Traveler{
		ID:        "t-1",
		Name:      "Ada",
		Clearance: model.Clearance{Status: model.ClearanceCleared, ExpiresAt: time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	assert.NoError(t, v.ValidateTraveler(traveler))

	traveler.Clearance.ExpiresAt = time.Time{}
	assert.Equal(t, []string{"ExpiresAt"}, fieldsOf(t, v.ValidateTraveler(traveler)))

	traveler.Clearance.Status = "revoked"
	assert.Equal(t, []string{"Status"}, fieldsOf(t, v.ValidateTraveler(traveler)))

	traveler.Clearance.Status = model.ClearanceNone
	traveler.CompletedTraining = []string{"eva", ""}
	assert.Equal(t, []string{"CompletedTraining[1]"}, fieldsOf(t, v.ValidateTraveler(traveler)))
}
