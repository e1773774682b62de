package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", Missing("end"), KindValidation},
		{"wrapped validation", fmt.Errorf("create: %w", Missing("title")), KindValidation},
		{"ambiguity", &AmbiguityError{Field: "attendees"}, KindAmbiguity},
		{"not found", &NotFoundError{Kind: "attendee", Name: "Zed"}, KindNotFound},
		{"upstream", &UpstreamError{Op: "list_events", Err: errors.New("boom")}, KindUpstream},
		{"unsupported", &UnsupportedIntentError{Intent: "dance"}, KindUnsupportedIntent},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), KindCanceled},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := &UpstreamError{Op: "list_events", Partial: true, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "partial")
}

func TestValidationError_NamesField(t *testing.T) {
	assert.Contains(t, Missing("end").Error(), `"end"`)
}
