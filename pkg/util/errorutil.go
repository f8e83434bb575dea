package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes for the orchestration core. The first three abort a transition
// transaction with no partial writes; connectivity and schema failures occur
// before the transactional section and never touch state.
const (
	CodeIllegalTransition  = "ILLEGAL_TRANSITION"
	CodeMissingContext     = "MISSING_CONTEXT"
	CodeAssignmentNotFound = "ASSIGNMENT_NOT_FOUND"
	CodeSchemaValidation   = "SCHEMA_VALIDATION"
	CodeConnectivity       = "CONNECTIVITY"
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewIllegalTransition signals that the current state forbids the requested
// transition. Never retried.
func NewIllegalTransition(transition string, details map[string]any) error {
	return NewDomainError(CodeIllegalTransition,
		fmt.Sprintf("transition %s not allowed from current state", transition),
		http.StatusConflict, details)
}

// NewMissingContext signals a required transition-context key is absent.
func NewMissingContext(key string) error {
	return NewDomainError(CodeMissingContext,
		fmt.Sprintf("required context key %q missing", key),
		http.StatusBadRequest, map[string]any{"key": key})
}

// NewAssignmentNotFound signals a referential integrity violation on
// accept/release.
func NewAssignmentNotFound(conversationID, operatorID string) error {
	return NewDomainError(CodeAssignmentNotFound,
		"no assignment found for operator on conversation",
		http.StatusNotFound, map[string]any{
			"conversation_id": conversationID,
			"operator_id":     operatorID,
		})
}

// NewSchemaValidation signals a malformed automated-response payload. The
// caller treats it as the recoverable "fallback" outcome.
func NewSchemaValidation(message string, details map[string]any) error {
	return NewDomainError(CodeSchemaValidation, message, http.StatusUnprocessableEntity, details)
}

// NewConnectivity wraps a transport failure from the automated-response
// backend. Recoverable; the conversation stays in its current state.
func NewConnectivity(err error) error {
	return &DomainError{
		Code:       CodeConnectivity,
		Message:    "automated-response backend unreachable",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
