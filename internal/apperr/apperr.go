package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure category. Codes are part of the HTTP API contract; keep them stable.
type Code string

const (
	// CodeValidation: bad or missing phone number / required field. Rejected before any network call.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNoOwnedNumbers: the agent has not provisioned an outbound number.
	CodeNoOwnedNumbers Code = "NO_OWNED_NUMBERS"
	// CodeAgentPhoneMissing: the agent profile has no phone to bridge the dialer to.
	CodeAgentPhoneMissing Code = "AGENT_PHONE_MISSING"
	// CodeProviderRejected: the provider answered with a non-success response.
	CodeProviderRejected Code = "PROVIDER_REJECTED"
	// CodeNetworkAmbiguous: the request failed before a response; the phone may or may not have rung.
	CodeNetworkAmbiguous Code = "NETWORK_AMBIGUOUS"
	// CodeEventDecode: a webhook payload or client state could not be parsed.
	CodeEventDecode Code = "EVENT_DECODE_FAILURE"
	// CodeLookupMiss: an event referenced a leg id with no call session.
	CodeLookupMiss Code = "LOOKUP_MISS"
	// CodeNotConfigured: provider credentials or another collaborator is missing.
	CodeNotConfigured Code = "NOT_CONFIGURED"
	// CodeBusy: another start request for the same user is in flight.
	CodeBusy Code = "BUSY"
	// CodeUnauthorized: missing, expired or wrong-type token.
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is a coded application error that can be returned to API clients.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so errors.Is(err, apperr.New(CodeBusy, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func MissingRequired(field string) *Error {
	return New(CodeValidation, fmt.Sprintf("%s is required", field))
}

func InvalidPhone(field, value string) *Error {
	return New(CodeValidation, fmt.Sprintf("%s is not a valid E.164 number", field)).
		WithDetails(map[string]string{"field": field, "value": value})
}

func NoOwnedNumbers() *Error {
	return New(CodeNoOwnedNumbers, "no outbound numbers provisioned; purchase a number before placing calls")
}

func AgentPhoneMissing() *Error {
	return New(CodeAgentPhoneMissing, "no agent phone on the profile; add one before starting the dialer")
}

func ProviderRejected(status int, cause error) *Error {
	return Wrap(CodeProviderRejected, fmt.Sprintf("provider rejected the request (status %d)", status), cause)
}

func NetworkAmbiguous(cause error) *Error {
	return Wrap(CodeNetworkAmbiguous, "provider request failed before a response; the call may have been placed", cause)
}

func EventDecode(cause error) *Error {
	return Wrap(CodeEventDecode, "event payload could not be decoded", cause)
}

func LookupMiss(legID string) *Error {
	return New(CodeLookupMiss, fmt.Sprintf("no call session for leg %q", legID))
}

func NotConfigured(what string) *Error {
	return New(CodeNotConfigured, fmt.Sprintf("%s not configured", what))
}

func Busy(message string) *Error {
	return New(CodeBusy, message)
}

func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

func Internal(message string, cause error) *Error {
	return Wrap(CodeInternal, message, cause)
}

// As converts an error to *Error if possible.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the error code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status used by the HTTP API.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNoOwnedNumbers, CodeAgentPhoneMissing:
		return http.StatusConflict
	case CodeProviderRejected:
		return http.StatusBadGateway
	case CodeNetworkAmbiguous:
		return http.StatusGatewayTimeout
	case CodeLookupMiss:
		return http.StatusNotFound
	case CodeNotConfigured:
		return http.StatusServiceUnavailable
	case CodeBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
