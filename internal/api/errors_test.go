package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/queue"
	"github.com/phrazzld/leadgen-api/internal/service"
	"github.com/phrazzld/leadgen-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.NewValidationError("lead_count", "too big"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("submit: %w", domain.ErrValidation), http.StatusBadRequest},
		{"service not found", service.ErrJobNotFound, http.StatusNotFound},
		{"store not found", store.ErrJobNotFound, http.StatusNotFound},
		{"invalid state", store.ErrInvalidState, http.StatusConflict},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict},
		{"dispatch", fmt.Errorf("%w: %w", service.ErrDispatchFailed, errors.New("redis down")), http.StatusServiceUnavailable},
		{"queue full", queue.ErrQueueFull, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Job not found", GetSafeErrorMessage(service.ErrJobNotFound))
	assert.Equal(t, "Invalid limit: must be between 1 and 1000",
		GetSafeErrorMessage(domain.NewValidationError("limit", "must be between 1 and 1000")))
	assert.Equal(t, "Job could not be dispatched, try again later",
		GetSafeErrorMessage(fmt.Errorf("%w: %w", service.ErrDispatchFailed, errors.New("dial tcp 10.0.0.5:6379"))))

	msg := GetSafeErrorMessage(errors.New("pq: password authentication failed for user admin"))
	assert.Equal(t, "An unexpected error occurred", msg)
}

func TestSanitizeValidationError(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name   string
		params submitJobParams
		want   string
	}{
		{"bad intent", submitJobParams{Intent: "marketing", LeadCount: 10}, "Invalid intent: must be one of career, growth, sales"},
		{"count too small", submitJobParams{Intent: "career", LeadCount: 0}, "Invalid lead_count: must be at least 1"},
		{"count too large", submitJobParams{Intent: "sales", LeadCount: 1001}, "Invalid lead_count: must be at most 1000"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Struct(tc.params)
			require.Error(t, err)
			assert.Equal(t, tc.want, SanitizeValidationError(err))
			assert.Equal(t, http.StatusBadRequest, MapErrorToStatusCode(err))
		})
	}

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "lead_count", toSnakeCase("LeadCount"))
	assert.Equal(t, "intent", toSnakeCase("Intent"))
}
