package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	apperrors "lab-scheduler-api/pkg/errors"
)

// Error response structure for consistent JSON error responses
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Success response structure for consistent JSON success responses
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorHandler provides centralized error handling functionality for handlers
type ErrorHandler struct {
	Logger *log.Logger
}

// NewErrorHandler creates a new ErrorHandler instance
func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ErrorHandler{
		Logger: logger,
	}
}

// SendErrorResponse sends a structured error response
func (e *ErrorHandler) SendErrorResponse(w http.ResponseWriter, statusCode int, message, code string, details map[string]string) {
	e.writeError(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func (e *ErrorHandler) writeError(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		e.Logger.Printf("Failed to encode error response: %v", err)
	}
}

// SendSuccessResponse sends a structured success response
func (e *ErrorHandler) SendSuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := SuccessResponse{
		Message: message,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		e.Logger.Printf("Failed to encode success response: %v", err)
	}
}

// SendJSONResponse sends a generic JSON response
func (e *ErrorHandler) SendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		e.Logger.Printf("Failed to encode JSON response: %v", err)
		e.SendErrorResponse(w, http.StatusInternalServerError, "Failed to encode response", "ENCODING_ERROR", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(append(body, '\n')); err != nil {
		e.Logger.Printf("Failed to write JSON response: %v", err)
	}
}

// HandleServiceError maps a service error to its HTTP status. Errors that
// are not application errors become 500s and are logged with their cause.
func (e *ErrorHandler) HandleServiceError(ctx context.Context, w http.ResponseWriter, err error, operation string) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = apperrors.NewAppErrorWithCause(apperrors.ErrorCodeTimeout, "Operation timed out", err)
		} else {
			appErr = apperrors.WrapError(err, fmt.Sprintf("Failed to %s", operation))
		}
	}

	status := appErr.GetHTTPStatus()
	if status >= http.StatusInternalServerError {
		e.Logger.Printf("Service error during %s: %v", operation, appErr)
	} else {
		e.Logger.Printf("Request rejected during %s: %s", operation, appErr.Message)
	}

	e.writeError(w, status, ErrorResponse{
		Error:     appErr.Message,
		Code:      string(appErr.Code),
		Details:   stringDetails(appErr.Details),
		RequestID: requestIDFromContext(ctx),
	})
}

// HandleValidationErrors handles validation errors and sends appropriate response
func (e *ErrorHandler) HandleValidationErrors(w http.ResponseWriter, validationErrors map[string]string) {
	if len(validationErrors) > 0 {
		e.SendErrorResponse(w, http.StatusBadRequest, "Validation failed", string(apperrors.ErrorCodeValidation), validationErrors)
	}
}

// HandleJSONDecodeError handles JSON decoding errors
func (e *ErrorHandler) HandleJSONDecodeError(w http.ResponseWriter, err error) {
	appErr := apperrors.InvalidJSONError(err)
	e.Logger.Printf("JSON decode error: %v", appErr.Cause)
	e.SendErrorResponse(w, appErr.GetHTTPStatus(), appErr.Message, string(appErr.Code), nil)
}

// ParseAndValidateID parses a positive numeric path ID
func (e *ErrorHandler) ParseAndValidateID(w http.ResponseWriter, idStr string) (int64, bool) {
	if idStr == "" {
		e.SendErrorResponse(w, http.StatusBadRequest, "ID is required", "INVALID_ID", nil)
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		e.SendErrorResponse(w, http.StatusBadRequest, "Invalid ID format", "INVALID_ID", nil)
		return 0, false
	}

	return id, true
}

func stringDetails(details map[string]interface{}) map[string]string {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = fmt.Sprint(v)
	}
	return out
}
