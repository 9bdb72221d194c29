package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to callers.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_FAILED"
	CodeInvalidTransition = "INVALID_STATE_TRANSITION"
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeAlreadyActive     = "ALREADY_ACTIVE"
	CodePartnerBusy       = "PARTNER_BUSY"
	CodeNoTickets         = "NO_TICKETS_AVAILABLE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
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
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewInvalidTransition reports an operation attempted from a status that does not permit it.
func NewInvalidTransition(operation, current string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["operation"] = operation
	details["current_status"] = current
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("%s not allowed from status %s", operation, current),
		http.StatusConflict, details)
}

func NewBusinessRule(message string, details map[string]any) error {
	return NewDomainError(CodeBusinessRule, message, http.StatusUnprocessableEntity, details)
}

func NewAlreadyActive(technicianID string) error {
	return NewDomainError(CodeAlreadyActive, "technician already has an active ticket",
		http.StatusUnprocessableEntity, map[string]any{"technician_id": technicianID})
}

func NewPartnerBusy(partnerID string) error {
	return NewDomainError(CodePartnerBusy, "partner already has an active ticket",
		http.StatusUnprocessableEntity, map[string]any{"partner_id": partnerID})
}

func NewNoTicketsAvailable(details map[string]any) error {
	return NewDomainError(CodeNoTickets, "no tickets available", http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsBusinessRule reports whether err is any business rule violation, including the
// specialised ALREADY_ACTIVE and PARTNER_BUSY codes.
func IsBusinessRule(err error) bool {
	return HasCode(err, CodeBusinessRule) || HasCode(err, CodeAlreadyActive) || HasCode(err, CodePartnerBusy)
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
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
