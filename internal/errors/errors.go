package errors

import "fmt"

// Error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeInvalidState       = "INVALID_STATE"
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeNoCardsAvailable   = "NO_CARDS_AVAILABLE"
	ErrCodeNetworkFailure     = "NETWORK_FAILURE"
	ErrCodeVersionConflict    = "VERSION_CONFLICT"
	ErrCodeInvalidGrade       = "INVALID_GRADE"
	ErrCodeStuckChange        = "STUCK_CHANGE"
)

// AppError represents an application error with a stable code and an HTTP status
type AppError struct {
	Code    string // Error code (e.g., "NOT_FOUND", "INVALID_GRADE")
	Message string // Human-readable error message
	Status  int    // HTTP status code
	Err     error  // Wrapped underlying error (optional)
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error wrapping support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code, so the sentinels
// below match any error built by the constructors.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &AppError{Code: ErrCodeNotFound, Message: "not found", Status: 404}
	ErrValidation         = &AppError{Code: ErrCodeValidation, Message: "validation failed", Status: 400}
	ErrInternal           = &AppError{Code: ErrCodeInternal, Message: "internal error", Status: 500}
	ErrInvalidState       = &AppError{Code: ErrCodeInvalidState, Message: "invalid state", Status: 409}
	ErrStorageUnavailable = &AppError{Code: ErrCodeStorageUnavailable, Message: "storage unavailable", Status: 503}
	ErrNoCardsAvailable   = &AppError{Code: ErrCodeNoCardsAvailable, Message: "no cards available", Status: 404}
	ErrNetworkFailure     = &AppError{Code: ErrCodeNetworkFailure, Message: "network failure", Status: 502}
	ErrVersionConflict    = &AppError{Code: ErrCodeVersionConflict, Message: "version conflict", Status: 409}
	ErrInvalidGrade       = &AppError{Code: ErrCodeInvalidGrade, Message: "invalid grade", Status: 400}
	ErrStuckChange        = &AppError{Code: ErrCodeStuckChange, Message: "change is stuck", Status: 409}
)

// NewNotFoundError creates a new NOT_FOUND error
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
		Status:  404,
	}
}

// NewValidationError creates a new VALIDATION_ERROR
func NewValidationError(field string, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Status:  400,
	}
}

// NewInternalError creates a new INTERNAL_ERROR
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "internal error",
		Status:  500,
		Err:     err,
	}
}

func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidState,
		Message: message,
		Status:  409,
	}
}

// NewStorageUnavailableError marks err as a failure of the local durable store.
func NewStorageUnavailableError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeStorageUnavailable,
		Message: "local storage unavailable",
		Status:  503,
		Err:     err,
	}
}

func NewNoCardsAvailableError() *AppError {
	return &AppError{
		Code:    ErrCodeNoCardsAvailable,
		Message: "no due or new items to review",
		Status:  404,
	}
}

// NewNetworkError marks a retryable remote failure.
func NewNetworkError(op string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeNetworkFailure,
		Message: fmt.Sprintf("remote %s failed", op),
		Status:  502,
		Err:     err,
	}
}

func NewVersionConflictError(id string) *AppError {
	return &AppError{
		Code:    ErrCodeVersionConflict,
		Message: fmt.Sprintf("remote item %s changed since base version", id),
		Status:  409,
	}
}

func NewInvalidGradeError(quality int) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidGrade,
		Message: fmt.Sprintf("quality %d outside 0..5", quality),
		Status:  400,
	}
}

func NewStuckChangeError(changeID string, retries int) *AppError {
	return &AppError{
		Code:    ErrCodeStuckChange,
		Message: fmt.Sprintf("change %s failed %d times and needs manual resolution", changeID, retries),
		Status:  409,
	}
}

// Code returns the AppError code found in err's chain, or "" if there is none.
func Code(err error) string {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
