package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Common domain errors
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownModule  = errors.New("unknown module")
	ErrNotFound       = errors.New("record not found")
	ErrUpstream       = errors.New("upstream call failed")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// Envelope error codes. These are part of the wire contract and must stay stable.
const (
	CodeBadSignature     = "bad_signature"
	CodeNotAllowed       = "not_allowed"
	CodeUnknownCommand   = "unknown_command"
	CodeUnknownModule    = "unknown_module"
	CodeMissingFields    = "missing_fields"
	CodeMissingID        = "missing_identifier"
	CodeRateLimited      = "rate_limited"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal_error"
	CodeUpstream         = "whm_error"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInvalidJSON      = "invalid_json"
	CodeBodyTooLarge     = "body_too_large"
	CodeUnauthorized     = "unauthorized"
)

// MissingField returns the per-field validation code, e.g. "missing_email".
func MissingField(field string) string {
	return "missing_" + field
}

// StatusForCode maps an envelope error code to its HTTP status.
// Codes not listed are local validation failures and map to 400.
func StatusForCode(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case CodeBadSignature, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotAllowed:
		return http.StatusForbidden
	case CodeNotFound, CodeUnknownModule:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInternal, CodeUpstream:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// UpstreamError describes a failed call to the control-panel API.
type UpstreamError struct {
	Action     string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("WHM %s: %s", e.Action, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("WHM %s %d", e.Action, e.StatusCode)
	}
	return fmt.Sprintf("WHM %s %d: %s", e.Action, e.StatusCode, e.Message)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
