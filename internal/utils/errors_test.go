package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "test error message",
	}

	assert.Equal(t, "test error message", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("validation failed")

	assert.Error(t, err)
	assert.Equal(t, "validation failed", err.Error())

	validationErr, ok := err.(*ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "validation failed", validationErr.Message)
}

func TestNewValidationErrorf(t *testing.T) {
	err := NewValidationErrorf("followup ratio %.2f outside [0,1]", 1.5)

	assert.Equal(t, "followup ratio 1.50 outside [0,1]", err.Error())
}

func TestNewFieldError(t *testing.T) {
	err := NewFieldError("elasticity_bound", "must be within [0,1], got %v", 2.0)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "elasticity_bound", ve.Field)
	assert.Equal(t, "elasticity_bound: must be within [0,1], got 2", err.Error())
}

func TestIsValidationError(t *testing.T) {
	wrapped := fmt.Errorf("load config: %w", NewFieldError("volume.followup_daily_cap", "must not be negative"))

	assert.True(t, IsValidationError(wrapped))
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.False(t, IsValidationError(nil))
}
