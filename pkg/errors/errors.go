package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode classifies an AppError and selects its HTTP status.
type ErrorCode string

const (
	// Reservation outcomes
	ErrorCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrorCodeConflict     ErrorCode = "CONFLICT"
	ErrorCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Request handling
	ErrorCodeInvalidJSON ErrorCode = "INVALID_JSON"
	ErrorCodeTimeout     ErrorCode = "TIMEOUT_ERROR"
	ErrorCodeRateLimit   ErrorCode = "RATE_LIMIT_ERROR"

	// Infrastructure
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabase ErrorCode = "DATABASE_ERROR"
)

var httpStatus = map[ErrorCode]int{
	ErrorCodeValidation:   http.StatusBadRequest,
	ErrorCodeInvalidJSON:  http.StatusBadRequest,
	ErrorCodeNotFound:     http.StatusNotFound,
	ErrorCodeConflict:     http.StatusConflict,
	ErrorCodeUnauthorized: http.StatusUnauthorized,
	ErrorCodeForbidden:    http.StatusForbidden,
	ErrorCodeTimeout:      http.StatusRequestTimeout,
	ErrorCodeRateLimit:    http.StatusTooManyRequests,
}

// AppError is the error every layer hands up to the HTTP boundary.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ToJSON renders the error body written by middleware that runs outside
// the handlers' response helpers.
func (e *AppError) ToJSON() []byte {
	body := map[string]interface{}{
		"error":     e.Message,
		"code":      e.Code,
		"timestamp": e.Timestamp,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	data, _ := json.Marshal(body)
	return data
}

// GetHTTPStatus maps the code to a status; unknown codes are 500.
func (e *AppError) GetHTTPStatus() int {
	if status, ok := httpStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewAppError creates an error without an underlying cause.
func NewAppError(code ErrorCode, message string) *AppError {
	return NewAppErrorWithCause(code, message, nil)
}

// NewAppErrorWithCause creates an error that wraps cause.
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// WithDetail attaches a key/value to the error's details.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func ValidationError(message string) *AppError {
	return NewAppError(ErrorCodeValidation, message)
}

// ValidationErrorWithDetails carries per-field messages keyed by JSON name.
func ValidationErrorWithDetails(message string, fields map[string]string) *AppError {
	err := NewAppError(ErrorCodeValidation, message)
	for field, msg := range fields {
		err.WithDetail(field, msg)
	}
	return err
}

// NotFoundError reports a missing computer, student, user or booking.
func NotFoundError(resource string) *AppError {
	return NewAppError(ErrorCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ConflictError covers overlaps, duplicates and busy computers.
func ConflictError(message string) *AppError {
	return NewAppError(ErrorCodeConflict, message)
}

// ForbiddenError covers exhausted usage quotas and inactive accounts.
func ForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message)
}

func UnauthorizedError(message string) *AppError {
	return NewAppError(ErrorCodeUnauthorized, message)
}

func DatabaseError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeDatabase, message, cause)
}

func InternalError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeInternal, message, cause)
}

// InvalidJSONError reports a request body that failed to decode.
func InvalidJSONError(cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeInvalidJSON, "Invalid JSON format", cause)
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// WrapError passes AppErrors through and turns anything else into an
// internal error.
func WrapError(err error, message string) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return NewAppErrorWithCause(ErrorCodeInternal, message, err)
}
