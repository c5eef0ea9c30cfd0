package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Only rate_limited and
// quota_exceeded are expected to reach the end user as actionable messages;
// everything else surfaces as a generic failure.
type ErrorKind string

const (
	ErrUnauthorized    ErrorKind = "unauthorized"
	ErrBadRequest      ErrorKind = "bad_request"
	ErrPayloadTooLarge ErrorKind = "payload_too_large"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrQuotaExceeded   ErrorKind = "quota_exceeded"
	ErrParse           ErrorKind = "parse_error"
	ErrServer          ErrorKind = "server_error"
	ErrUnknown         ErrorKind = "unknown"
)

// PipelineError is the structured failure returned by the analysis pipeline.
// Scope narrows rate_limited (burst, hourly, global, provider) and
// quota_exceeded (monthly, other) errors for user-facing messaging.
type PipelineError struct {
	Kind              ErrorKind `json:"error"`
	Scope             string    `json:"scope,omitempty"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
	Message           string    `json:"message,omitempty"`
	Err               error     `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// KindOf extracts the error kind from err, or ErrUnknown if err is not a
// PipelineError.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrUnknown
}
