// Package errs defines the error taxonomy shared by the scheduling engine.
//
// Every failure the engine can produce is one of these types, so the
// dispatcher can always turn it into a typed result without guessing.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category of an engine error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindAmbiguity         Kind = "ambiguity"
	KindNotFound          Kind = "not_found"
	KindUpstream          Kind = "upstream"
	KindUnsupportedIntent Kind = "unknown_intent"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

// Option is one choice offered to the user when a value is ambiguous.
// Value is what the caller sends back to pick it.
type Option struct {
	Label string  `json:"label"`
	Value string  `json:"value"`
	Email string  `json:"email,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// ValidationError reports a missing or malformed parameter. Field is always set.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

// Missing is shorthand for a required field that was not supplied.
func Missing(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "required field is missing"}
}

// Malformed is shorthand for a field whose value could not be interpreted.
func Malformed(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// AmbiguityError carries the ranked options the user must choose from.
type AmbiguityError struct {
	Field   string
	Message string
	Options []Option
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous %s: %s (%d options)", e.Field, e.Message, len(e.Options))
}

// NotFoundError reports an attendee, participant or event that cannot be resolved.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// UpstreamError wraps a provider failure. Partial is true when only some of
// the calls behind a request failed.
type UpstreamError struct {
	Op      string
	Partial bool
	Err     error
}

func (e *UpstreamError) Error() string {
	scope := "total"
	if e.Partial {
		scope = "partial"
	}
	return fmt.Sprintf("upstream %s failure (%s): %v", e.Op, scope, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UnsupportedIntentError is returned for intent values the engine does not know.
type UnsupportedIntentError struct {
	Intent string
}

func (e *UnsupportedIntentError) Error() string {
	return fmt.Sprintf("unsupported intent %q", e.Intent)
}

// KindOf classifies err. Context cancellation is reported separately from
// upstream failures; anything unrecognised is internal.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ae *AmbiguityError
		ne *NotFoundError
		ue *UpstreamError
		ie *UnsupportedIntentError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ae):
		return KindAmbiguity
	case errors.As(err, &ne):
		return KindNotFound
	case errors.As(err, &ie):
		return KindUnsupportedIntent
	case errors.As(err, &ue):
		return KindUpstream
	case isCanceled(err):
		return KindCanceled
	default:
		return KindInternal
	}
}
