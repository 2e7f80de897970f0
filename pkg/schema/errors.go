package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeLoad         = "LOAD_ERROR"
	ErrCodeConfig       = "CONFIG_ERROR"
	ErrCodeSchedule     = "SCHEDULE_ERROR"
	ErrCodeExecution    = "EXECUTION_ERROR"
	ErrCodeInvalidState = "INVALID_STATE"
	ErrCodeNotFound     = "NOT_FOUND"
)

// BlueprintError is the structured error type for all engine operations.
type BlueprintError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	ActionID string         `json:"action_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *BlueprintError) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.ActionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BlueprintError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BlueprintError.
func NewError(code, message string) *BlueprintError {
	return &BlueprintError{Code: code, Message: message}
}

// NewErrorf creates a new BlueprintError with a formatted message.
func NewErrorf(code, format string, args ...any) *BlueprintError {
	return &BlueprintError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches an action ID to the error.
func (e *BlueprintError) WithAction(actionID string) *BlueprintError {
	e.ActionID = actionID
	return e
}

// WithCause attaches an underlying cause.
func (e *BlueprintError) WithCause(err error) *BlueprintError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BlueprintError) WithDetails(details map[string]any) *BlueprintError {
	e.Details = details
	return e
}
