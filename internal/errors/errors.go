// Package errors defines the JSON error envelope returned by every endpoint.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes
const (
	// Authentication errors
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"

	// Authorization errors
	ErrCodeForbidden = "FORBIDDEN"

	// Validation errors
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnprocessable = "UNPROCESSABLE"

	// Resource errors
	ErrCodeNotFound = "NOT_FOUND"
	ErrCodeConflict = "CONFLICT"

	// Service errors
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new APIError
func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// NewAPIErrorWithDetails creates a new APIError with details
func NewAPIErrorWithDetails(code, message string, details interface{}) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// RespondWithError sends an error response and stops the handler chain.
func RespondWithError(c *gin.Context, statusCode int, err *APIError) {
	c.AbortWithStatusJSON(statusCode, err)
}

// Respond sends an error with an explicit code, e.g. a policy reason.
func Respond(c *gin.Context, statusCode int, code, message string) {
	RespondWithError(c, statusCode, NewAPIError(code, message))
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Not authenticated"
	}
	Respond(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// InvalidCredentials sends the uniform 401 for failed logins
func InvalidCredentials(c *gin.Context) {
	Respond(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid credentials")
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	Respond(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "Invalid request"
	}
	Respond(c, http.StatusBadRequest, ErrCodeInvalidInput, message)
}

// BadRequestWithDetails sends a 400 response with details
func BadRequestWithDetails(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, NewAPIErrorWithDetails(ErrCodeInvalidInput, message, details))
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	if message == "" {
		message = "Resource conflict"
	}
	Respond(c, http.StatusConflict, ErrCodeConflict, message)
}

// Unprocessable sends a 422 response
func Unprocessable(c *gin.Context, message string) {
	if message == "" {
		message = "Unprocessable entity"
	}
	Respond(c, http.StatusUnprocessableEntity, ErrCodeUnprocessable, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	Respond(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable sends a 503 response
func ServiceUnavailable(c *gin.Context, message string) {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	Respond(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}
