package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vytor/wordflash/internal/errors"
)

func TestSentinelsMatchConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", errors.NewNotFoundError("item", "a"), errors.ErrNotFound},
		{"validation", errors.NewValidationError("word", "empty"), errors.ErrValidation},
		{"storage", errors.NewStorageUnavailableError(fmt.Errorf("disk full")), errors.ErrStorageUnavailable},
		{"no cards", errors.NewNoCardsAvailableError(), errors.ErrNoCardsAvailable},
		{"network", errors.NewNetworkError("upsert", fmt.Errorf("dial")), errors.ErrNetworkFailure},
		{"conflict", errors.NewVersionConflictError("a"), errors.ErrVersionConflict},
		{"grade", errors.NewInvalidGradeError(7), errors.ErrInvalidGrade},
		{"stuck", errors.NewStuckChangeError("c", 3), errors.ErrStuckChange},
		{"state", errors.NewInvalidStateError("idle"), errors.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, stderrors.Is(tt.err, tt.sentinel))
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, stderrors.Is(wrapped, tt.sentinel))
			assert.False(t, stderrors.Is(tt.err, errors.ErrInternal))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk I/O error")
	err := errors.NewStorageUnavailableError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STORAGE_UNAVAILABLE")
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestCode(t *testing.T) {
	assert.Equal(t, errors.ErrCodeInvalidGrade, errors.Code(fmt.Errorf("x: %w", errors.NewInvalidGradeError(9))))
	assert.Equal(t, "", errors.Code(fmt.Errorf("plain")))
	assert.Equal(t, "", errors.Code(nil))
}
