package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeInternal                = "INTERNAL_ERROR"
	ErrCodeBadRequest              = "BAD_REQUEST"
	ErrCodeContentNotFound         = "CONTENT_NOT_FOUND"
	ErrCodeSessionEnded            = "SESSION_ENDED"
	ErrCodeSessionNotEnded         = "SESSION_NOT_ENDED"
	ErrCodeTurnLimitExceeded       = "TURN_LIMIT_EXCEEDED"
	ErrCodeLanguageConformance     = "LANGUAGE_CONFORMANCE_FAILURE"
	ErrCodeUpstreamUnavailable     = "UPSTREAM_UNAVAILABLE"
	ErrCodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidClozeSyntax      = "INVALID_CLOZE_SYNTAX"
	ErrCodeSchemaValidationFailure = "SCHEMA_VALIDATION_FAILURE"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	Code    string // Error code (e.g., "NOT_FOUND", "SESSION_ENDED")
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

// Is matches any AppError carrying the same code, so the sentinels below
// work with errors.Is regardless of message or wrapped cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is checks. Never return these directly; use the constructors.
var (
	ErrNotFound            = &AppError{Code: ErrCodeNotFound}
	ErrValidation          = &AppError{Code: ErrCodeValidation}
	ErrInternal            = &AppError{Code: ErrCodeInternal}
	ErrBadRequest          = &AppError{Code: ErrCodeBadRequest}
	ErrContentNotFound     = &AppError{Code: ErrCodeContentNotFound}
	ErrSessionEnded        = &AppError{Code: ErrCodeSessionEnded}
	ErrSessionNotEnded     = &AppError{Code: ErrCodeSessionNotEnded}
	ErrTurnLimitExceeded   = &AppError{Code: ErrCodeTurnLimitExceeded}
	ErrLanguageConformance = &AppError{Code: ErrCodeLanguageConformance}
	ErrUpstreamUnavailable = &AppError{Code: ErrCodeUpstreamUnavailable}
	ErrRateLimitExceeded   = &AppError{Code: ErrCodeRateLimitExceeded}
	ErrInvalidClozeSyntax  = &AppError{Code: ErrCodeInvalidClozeSyntax}
	ErrSchemaValidation    = &AppError{Code: ErrCodeSchemaValidationFailure}
)

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// NewNotFoundError creates a new NOT_FOUND error
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
		Status:  http.StatusNotFound,
	}
}

// NewValidationError creates a new VALIDATION_ERROR
func NewValidationError(field string, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Status:  http.StatusBadRequest,
	}
}

// NewInternalError creates a new INTERNAL_ERROR
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// NewBadRequestError creates a new BAD_REQUEST error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func NewContentNotFoundError(ref string) *AppError {
	return &AppError{
		Code:    ErrCodeContentNotFound,
		Message: fmt.Sprintf("content not found: %s", ref),
		Status:  http.StatusNotFound,
	}
}

func NewSessionEndedError(sessionID string) *AppError {
	return &AppError{
		Code:    ErrCodeSessionEnded,
		Message: fmt.Sprintf("session %s has ended", sessionID),
		Status:  http.StatusConflict,
	}
}

func NewSessionNotEndedError(sessionID string) *AppError {
	return &AppError{
		Code:    ErrCodeSessionNotEnded,
		Message: fmt.Sprintf("session %s is still active", sessionID),
		Status:  http.StatusConflict,
	}
}

func NewTurnLimitExceededError(sessionID string, max int) *AppError {
	return &AppError{
		Code:    ErrCodeTurnLimitExceeded,
		Message: fmt.Sprintf("session %s reached the limit of %d turns", sessionID, max),
		Status:  http.StatusConflict,
	}
}

// NewLanguageConformanceError reports a reply that stayed outside the target
// language after the corrective retry.
func NewLanguageConformanceError(language string, foreignShare float64) *AppError {
	return &AppError{
		Code:    ErrCodeLanguageConformance,
		Message: fmt.Sprintf("reply was not in %s (%.0f%% foreign tokens)", language, foreignShare*100),
		Status:  http.StatusBadGateway,
	}
}

// NewUpstreamUnavailableError wraps the last failure seen by the completion gateway.
func NewUpstreamUnavailableError(attempts int, err error) *AppError {
	return &AppError{
		Code:    ErrCodeUpstreamUnavailable,
		Message: fmt.Sprintf("completion service unavailable after %d attempts", attempts),
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func NewRateLimitExceededError(actorKey string) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimitExceeded,
		Message: fmt.Sprintf("too many requests for %s, try again later", actorKey),
		Status:  http.StatusTooManyRequests,
	}
}

func NewInvalidClozeSyntaxError(reason string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidClozeSyntax,
		Message: fmt.Sprintf("invalid cloze markup: %s", reason),
		Status:  http.StatusUnprocessableEntity,
	}
}

func NewSchemaValidationError(reason string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeSchemaValidationFailure,
		Message: reason,
		Status:  http.StatusUnprocessableEntity,
		Err:     err,
	}
}
