package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-assistant/internal/errs"
)

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"create_event":       KindCreateEvent,
		"CreateEvent":        KindCreateEvent,
		" find overlap ":     KindFindOverlap,
		"CHECK-AVAILABILITY": KindCheckAvailability,
		"noaction":           KindNoAction,
	} {
		got, ok := ParseKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseKind("book_flight")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		params map[string]any
		want   Intent
	}{
		{
			name: "create with synonyms",
			kind: "create_event",
			params: map[string]any{
				"Subject": "Lunch", "from": "noon", "until": "1pm",
				"with": "Bob and Carol", "where": "Cafe",
			},
			want: CreateEvent{
				Title: "Lunch", Start: "noon", End: "1pm",
				Attendees: []string{"Bob", "Carol"}, Location: "Cafe",
			},
		},
		{
			name:   "canonical key wins over synonym",
			kind:   "show_schedule",
			params: map[string]any{"date": "today", "day": "tomorrow"},
			want:   ShowSchedule{Date: "today"},
		},
		{
			name:   "update with top-level changes",
			kind:   "update_event",
			params: map[string]any{"event_id": "e1", "new_title": "Renamed"},
			want:   UpdateEvent{EventID: "e1", Changes: EventChanges{Title: ptr("Renamed")}},
		},
		{
			name:   "availability with minutes as string",
			kind:   "check_availability",
			params: map[string]any{"date": "this week", "length": "45"},
			want:   CheckAvailability{Date: "this week", MinDuration: 45 * time.Minute},
		},
		{
			name:   "overlap include self defaults to true",
			kind:   "find_overlap",
			params: map[string]any{"people": []any{"Bob"}, "range": "next week", "duration": 1.5},
			want: FindOverlap{
				Attendees: []string{"Bob"}, Date: "next week",
				MinDuration: 90 * time.Second, IncludeSelf: true,
			},
		},
		{
			name:   "overlap excluding self",
			kind:   "find_overlap",
			params: map[string]any{"attendees": "Bob", "date": "today", "include_me": "false"},
			want:   FindOverlap{Attendees: []string{"Bob"}, Date: "today"},
		},
		{
			name:   "search by attendee only",
			kind:   "search_events",
			params: map[string]any{"guests": []any{"Dana"}},
			want:   SearchEvents{Attendees: []string{"Dana"}},
		},
		{
			name: "no action",
			kind: "no_action",
			want: NoAction{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.kind, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestParse_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		params map[string]any
		field  string
	}{
		{"create without end", "create_event", map[string]any{"title": "x", "start": "noon"}, "end"},
		{"create with blank title", "create_event", map[string]any{"title": "  ", "start": "noon", "end": "1pm"}, "title"},
		{"show event without id", "show_event", nil, "event_id"},
		{"update without changes", "update_event", map[string]any{"event_id": "e1"}, "changes"},
		{"delete without id", "delete_event", map[string]any{"calendar_id": "c"}, "event_id"},
		{"search with nothing", "search_events", map[string]any{}, "query"},
		{"availability start only", "check_availability", map[string]any{"start": "3pm"}, "end"},
		{"availability nothing", "check_availability", map[string]any{}, "date"},
		{"overlap without attendees", "find_overlap", map[string]any{"date": "today"}, "attendees"},
		{"bad duration", "find_overlap", map[string]any{"attendees": "Bob", "date": "today", "duration": "soon"}, "min_duration"},
		{"wrong type", "show_schedule", map[string]any{"date": true}, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.kind, tt.params)
			var ve *errs.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParse_UnknownIntent(t *testing.T) {
	_, err := Parse("reserve_table", nil)
	assert.Equal(t, errs.KindUnsupportedIntent, errs.KindOf(err))
}

func ptr[T any](v T) *T { return &v }
