// Package apperrors defines the error taxonomy shared across the pipeline,
// and the propagation rules each kind implies (see errors_test.go for the
// classification behavior these sentinels are built to support).
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of HTTP status mapping, stage
// propagation, and job-manager fallback handling.
type Kind string

const (
	// AuthMissing: credential resolution failed for a ConnectionSpec.
	// Fatal to the request.
	AuthMissing Kind = "auth_missing"

	// ConnectionFailed: the engine rejected the connection. Fatal to the
	// request.
	ConnectionFailed Kind = "connection_failed"

	// InvalidIdentifier: a supplied identifier failed the safe-identifier
	// check. Caller bug; rejected at the boundary.
	InvalidIdentifier Kind = "invalid_identifier"

	// NotFound: a connection, table, or stored document is absent.
	NotFound Kind = "not_found"

	// CostExceeded: the cost ceiling or a per-query byte limit was hit.
	// Fatal to the call; the ledger is left unchanged.
	CostExceeded Kind = "cost_exceeded"

	// LLMUnavailable: provider retries were exhausted. Caught at the
	// stage 3/4/5 boundary and degraded to a deterministic fallback.
	LLMUnavailable Kind = "llm_unavailable"

	// StageFailed: stage 1 (acquire) could not produce its artifacts.
	// The pipeline aborts; no document is produced.
	StageFailed Kind = "stage_failed"

	// FacetFailed: a stage-2 profiling facet failed. Absorbed; the
	// facet's zero value is used in the output.
	FacetFailed Kind = "facet_failed"

	// Cancelled: job cancellation was observed. The job terminates as
	// failed with this cause.
	Cancelled Kind = "cancelled"
)

// Error is a structured, classified error carrying an optional stage name
// and underlying cause.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s [%s] in stage %s: %v", e.Kind, e.Message, e.Stage, e.Cause)
		}
		return fmt.Sprintf("%s [%s] in stage %s", e.Kind, e.Message, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a structured error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithStage creates a structured error carrying the stage name that
// produced it, for StageFailed and FacetFailed propagation.
func WithStage(kind Kind, stage, message string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not a classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
