package errorutil

import (
	"database/sql"
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

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
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

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewNotAuthorizedApprover flags a decision from a caller holding no pending
// approval instance for the change.
func NewNotAuthorizedApprover() error {
	return NewDomainError("NOT_AUTHORIZED_APPROVER", "caller is not a pending approver for this change", http.StatusForbidden, nil)
}

// NewAlreadyDecided flags a replayed decision against a terminal instance.
// Replays must fail rather than overwrite, to preserve the audit trail.
func NewAlreadyDecided() error {
	return NewDomainError("ALREADY_DECIDED", "approval instance already decided", http.StatusConflict, nil)
}

// NewLevelNotActive flags a decision at a level that is not currently open.
func NewLevelNotActive() error {
	return NewDomainError("LEVEL_NOT_ACTIVE", "approval level is not active for this change", http.StatusConflict, nil)
}

// NewWorkflowFinalized flags a decision against a workflow already approved
// or rejected.
func NewWorkflowFinalized() error {
	return NewDomainError("WORKFLOW_FINALIZED", "approval workflow already finalized", http.StatusConflict, nil)
}

// NewNoMatchingRoute flags submission of a change for which no routing rule
// exists while unrouted auto-approval is disabled.
func NewNoMatchingRoute(details map[string]any) error {
	return NewDomainError("NO_MATCHING_ROUTE", "no approval routing configured for this product and risk level", http.StatusUnprocessableEntity, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
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
