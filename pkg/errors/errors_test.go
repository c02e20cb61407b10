package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   New(CodeNotFound, "booking not found", http.StatusNotFound),
			expected: "NOT_FOUND: booking not found",
		},
		{
			name:     "with underlying error",
			appErr:   Internal("internal error", errors.New("store unreachable")),
			expected: "INTERNAL_ERROR: internal error (caused by: store unreachable)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("gateway reset")

	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("Booking"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad request body", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("malformed JSON"), CodeInvalidInput, http.StatusBadRequest},
		{"conflict", Conflict("already cancelled"), CodeConflict, http.StatusConflict},
		{"too many requests", TooManyRequests("slow down"), CodeTooManyRequests, http.StatusTooManyRequests},
		{"bad gateway", BadGateway("refund not confirmed", cause), CodeBadGateway, http.StatusBadGateway},
		{"internal", Internal("boom", cause), CodeInternal, http.StatusInternalServerError},
		{"timeout", Timeout("request timed out"), CodeTimeout, http.StatusGatewayTimeout},
		{"unavailable", Unavailable("Payment processor"), CodeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode())
		})
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := NotFoundWithID("Booking", "bk-1")

	assert.Equal(t, "Booking not found", err.Message)
	assert.Equal(t, "bk-1", err.Details["id"])
	assert.Equal(t, "Booking", err.Details["resource"])
}

func TestWithDetail(t *testing.T) {
	err := Conflict("charged but not booked").
		WithDetail("hold_id", "h-1").
		WithDetail("receipt_id", "r-1")

	assert.Equal(t, map[string]any{"hold_id": "h-1", "receipt_id": "r-1"}, err.Details)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("original error")
	appErr := Wrap(cause, CodeInternal, "wrapped", http.StatusInternalServerError)

	assert.ErrorIs(t, appErr, cause)
}

func TestAsAppError(t *testing.T) {
	t.Run("returns app error from chain", func(t *testing.T) {
		appErr := NotFound("Traveler")
		wrapped := fmt.Errorf("lookup: %w", appErr)

		assert.True(t, IsAppError(wrapped))
		assert.Same(t, appErr, AsAppError(wrapped))
	})

	t.Run("wraps plain error as internal", func(t *testing.T) {
		plain := errors.New("regular error")

		assert.False(t, IsAppError(plain))
		result := AsAppError(plain)
		assert.Equal(t, CodeInternal, result.Code)
		assert.ErrorIs(t, result, plain)
	})
}

func TestStatusCode_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, (&AppError{Code: CodeInternal}).StatusCode())
}

func TestToJSON(t *testing.T) {
	var decoded ErrorResponse
	require.NoError(t, json.Unmarshal(NotFoundWithID("Course", "c-9").ToJSON(), &decoded))

	assert.Equal(t, CodeNotFound, decoded.Code)
	assert.Equal(t, "Course not found", decoded.Message)
	assert.Equal(t, "c-9", decoded.Details["id"])
}
