package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"skyport/pkg/logger"
	"skyport/pkg/model"

	"github.com/go-playground/validator/v10"
)

var (
	identifierRegex   = regexp.MustCompile(`^[A-Za-z0-9_\-.:]+$`)
	paymentTokenRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]{4,256}$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("identifier", validateIdentifier); err != nil {
		log.Fatal("Failed to register 'identifier' validator", "error", err)
	}
	if err := v.RegisterValidation("payment_token", validatePaymentToken); err != nil {
		log.Fatal("Failed to register 'payment_token' validator", "error", err)
	}

	log.Debug("Booking validator initialized")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierRegex.MatchString(fl.Field().String())
}

func validatePaymentToken(fl validator.FieldLevel) bool {
	return paymentTokenRegex.MatchString(fl.Field().String())
}

func (v *BookingValidator) Validate(req *model.BookingRequest) error {
	if err := v.validate.Struct(req); err != nil {
		return v.translate(err)
	}

	return nil
}

func (v *BookingValidator) ValidateHealthReport(report *model.HealthReport) error {
	if err := v.validate.Struct(report); err != nil {
		return v.translate(err)
	}
	if report.BloodPressure != nil && report.BloodPressure.Diastolic > report.BloodPressure.Systolic {
		return ValidationErrors{{Field: "BloodPressure", Message: "diastolic cannot exceed systolic"}}
	}
	return nil
}

func (v *BookingValidator) ValidateTrainingEvent(ev *model.TrainingEvent) error {
	if err := v.validate.Struct(ev); err != nil {
		return v.translate(err)
	}
	if ev.Action == model.TrainingStarted && ev.Score != 0 {
		return ValidationErrors{{Field: "Score", Message: "score is only reported when training finishes"}}
	}
	return nil
}

// ValidateCourse checks a catalog entry before it is stored.
func (v *BookingValidator) ValidateCourse(course *model.Course) error {
	if err := v.validate.Struct(course); err != nil {
		return v.translate(err)
	}
	for _, p := range course.Prerequisites {
		if p == course.ID {
			return ValidationErrors{{Field: "Prerequisites", Message: "a course cannot be its own prerequisite"}}
		}
	}
	return nil
}

func (v *BookingValidator) ValidateTraveler(traveler *model.Traveler) error {
	if err := v.validate.Struct(traveler); err != nil {
		return v.translate(err)
	}
	if traveler.Clearance.Status == model.ClearanceCleared && traveler.Clearance.ExpiresAt.IsZero() {
		return ValidationErrors{{Field: "ExpiresAt", Message: "a cleared traveler needs a clearance expiry"}}
	}
	return nil
}

func (v *BookingValidator) translate(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return translateValidationErrors(validationErrs)
	}
	return err
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "len":
			message = fmt.Sprintf("%s must be exactly %s characters", err.Field(), err.Param())
		case "identifier":
			message = fmt.Sprintf("%s may only contain letters, digits and _-.:", err.Field())
		case "payment_token":
			message = fmt.Sprintf("%s is malformed", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
