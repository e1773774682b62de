package dispatch

import (
	"errors"

	"calendar-assistant/internal/errs"
)

// Status is the outcome class of a dispatch.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusNeedsClarification Status = "needs_clarification"
	StatusFailed             Status = "failed"
)

// State is a step of the dispatch lifecycle. Results carry the final one.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateExecuted   State = "executed"
	StateResponded  State = "responded"
	StateClarifying State = "clarifying"
	StateFailed     State = "failed"
)

// Result is the only thing Dispatch returns. Exactly one of Payload (on
// success), Options (on clarification) or Reason (on failure) is meaningful.
type Result struct {
	Status  Status        `json:"status"`
	Intent  Kind          `json:"intent,omitempty"`
	Message string        `json:"message,omitempty"`
	Payload any           `json:"payload,omitempty"`
	Field   string        `json:"field,omitempty"`
	Options []errs.Option `json:"options,omitempty"`
	Reason  errs.Kind     `json:"reason,omitempty"`
	Partial bool          `json:"partial,omitempty"`
	State   State         `json:"state"`
}

func success(kind Kind, msg string, payload any, partial bool) Result {
	return Result{
		Status:  StatusSuccess,
		Intent:  kind,
		Message: msg,
		Payload: payload,
		Partial: partial,
		State:   StateResponded,
	}
}

// fromError maps any error onto a clarification or a typed failure.
func fromError(kind Kind, err error) Result {
	var ae *errs.AmbiguityError
	if errors.As(err, &ae) {
		return Result{
			Status:  StatusNeedsClarification,
			Intent:  kind,
			Message: ae.Message,
			Field:   ae.Field,
			Options: ae.Options,
			Reason:  errs.KindAmbiguity,
			State:   StateClarifying,
		}
	}

	res := Result{
		Status:  StatusFailed,
		Intent:  kind,
		Message: err.Error(),
		Reason:  errs.KindOf(err),
		State:   StateFailed,
	}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		res.Field = ve.Field
	}
	var ue *errs.UpstreamError
	if errors.As(err, &ue) {
		res.Partial = ue.Partial
	}
	return res
}

// relabel points validation and ambiguity errors from a shared resolver at
// the parameter they came from.
func relabel(err error, field string) error {
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		return &errs.ValidationError{Field: field, Reason: ve.Reason}
	}
	var ae *errs.AmbiguityError
	if errors.As(err, &ae) {
		return &errs.AmbiguityError{Field: field, Message: ae.Message, Options: ae.Options}
	}
	return err
}
