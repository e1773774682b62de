package dispatch

import (
	"strings"
	"time"

	"calendar-assistant/internal/errs"
)

// Kind names an intent on the wire.
type Kind string

const (
	KindShowEvent         Kind = "show_event"
	KindShowSchedule      Kind = "show_schedule"
	KindCreateEvent       Kind = "create_event"
	KindUpdateEvent       Kind = "update_event"
	KindDeleteEvent       Kind = "delete_event"
	KindSearchEvents      Kind = "search_events"
	KindCheckAvailability Kind = "check_availability"
	KindFindOverlap       Kind = "find_overlap"
	KindNoAction          Kind = "no_action"
)

// Kinds lists every intent the dispatcher handles.
var Kinds = []Kind{
	KindShowEvent, KindShowSchedule, KindCreateEvent, KindUpdateEvent, KindDeleteEvent,
	KindSearchEvents, KindCheckAvailability, KindFindOverlap, KindNoAction,
}

// ParseKind accepts snake_case, CamelCase or spaced spellings.
func ParseKind(s string) (Kind, bool) {
	squashed := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Kinds {
		if strings.ReplaceAll(string(k), "_", "") == squashed {
			return k, true
		}
	}
	return "", false
}

// Intent is one of the concrete intent structs below. Each carries exactly
// the parameters its operation takes, still in the user's words; times and
// attendees are resolved at dispatch.
type Intent interface {
	Kind() Kind
	isIntent()
}

type ShowEvent struct {
	EventID    string
	CalendarID string
}

type ShowSchedule struct {
	Date string
}

type CreateEvent struct {
	Title       string
	Start       string
	End         string
	Description string
	Location    string
	CalendarID  string
	Attendees   []string
}

// EventChanges holds the fields an update sets. Nil means unchanged.
type EventChanges struct {
	Title       *string
	Start       *string
	End         *string
	Description *string
	Location    *string
	Attendees   []string
}

func (c EventChanges) empty() bool {
	return c.Title == nil && c.Start == nil && c.End == nil &&
		c.Description == nil && c.Location == nil && c.Attendees == nil
}

type UpdateEvent struct {
	EventID    string
	CalendarID string
	Changes    EventChanges
}

type DeleteEvent struct {
	EventID    string
	CalendarID string
}

type SearchEvents struct {
	Query     string
	Date      string
	Attendees []string
}

// CheckAvailability asks about a whole day or period (Date) or one span
// (Start and End).
type CheckAvailability struct {
	Date        string
	Start       string
	End         string
	MinDuration time.Duration
}

type FindOverlap struct {
	Attendees   []string
	Date        string
	MinDuration time.Duration
	IncludeSelf bool
}

type NoAction struct {
	Reply string
}

func (ShowEvent) Kind() Kind         { return KindShowEvent }
func (ShowSchedule) Kind() Kind      { return KindShowSchedule }
func (CreateEvent) Kind() Kind       { return KindCreateEvent }
func (UpdateEvent) Kind() Kind       { return KindUpdateEvent }
func (DeleteEvent) Kind() Kind       { return KindDeleteEvent }
func (SearchEvents) Kind() Kind      { return KindSearchEvents }
func (CheckAvailability) Kind() Kind { return KindCheckAvailability }
func (FindOverlap) Kind() Kind       { return KindFindOverlap }
func (NoAction) Kind() Kind          { return KindNoAction }

func (ShowEvent) isIntent()         {}
func (ShowSchedule) isIntent()      {}
func (CreateEvent) isIntent()       {}
func (UpdateEvent) isIntent()       {}
func (DeleteEvent) isIntent()       {}
func (SearchEvents) isIntent()      {}
func (CheckAvailability) isIntent() {}
func (FindOverlap) isIntent()       {}
func (NoAction) isIntent()          {}

// Parse builds the intent named kind from untrusted classifier parameters.
// Synonym keys are accepted; a missing required parameter is reported as an
// errs.ValidationError naming it.
func Parse(kind string, raw map[string]any) (Intent, error) {
	k, ok := ParseKind(kind)
	if !ok {
		return nil, &errs.UnsupportedIntentError{Intent: kind}
	}
	p := newParams(raw)

	switch k {
	case KindShowEvent:
		id, err := p.required("event_id")
		if err != nil {
			return nil, err
		}
		cal, err := p.str("calendar_id")
		if err != nil {
			return nil, err
		}
		return ShowEvent{EventID: id, CalendarID: cal}, nil

	case KindShowSchedule:
		date, err := p.required("date")
		if err != nil {
			return nil, err
		}
		return ShowSchedule{Date: date}, nil

	case KindCreateEvent:
		return parseCreate(p)

	case KindUpdateEvent:
		return parseUpdate(p)

	case KindDeleteEvent:
		id, err := p.required("event_id")
		if err != nil {
			return nil, err
		}
		cal, err := p.str("calendar_id")
		if err != nil {
			return nil, err
		}
		return DeleteEvent{EventID: id, CalendarID: cal}, nil

	case KindSearchEvents:
		var it SearchEvents
		var err error
		if it.Query, err = p.str("query"); err != nil {
			return nil, err
		}
		if it.Date, err = p.str("date"); err != nil {
			return nil, err
		}
		if it.Attendees, err = p.list("attendees"); err != nil {
			return nil, err
		}
		if it.Query == "" && it.Date == "" && len(it.Attendees) == 0 {
			return nil, errs.Missing("query")
		}
		return it, nil

	case KindCheckAvailability:
		var it CheckAvailability
		var err error
		if it.Date, err = p.str("date"); err != nil {
			return nil, err
		}
		if it.Start, err = p.str("start"); err != nil {
			return nil, err
		}
		if it.End, err = p.str("end"); err != nil {
			return nil, err
		}
		if it.MinDuration, err = p.duration("min_duration"); err != nil {
			return nil, err
		}
		switch {
		case it.Start != "" && it.End == "":
			return nil, errs.Missing("end")
		case it.End != "" && it.Start == "":
			return nil, errs.Missing("start")
		case it.Date == "" && it.Start == "":
			return nil, errs.Missing("date")
		}
		return it, nil

	case KindFindOverlap:
		var it FindOverlap
		var err error
		if it.Attendees, err = p.list("attendees"); err != nil {
			return nil, err
		}
		if len(it.Attendees) == 0 {
			return nil, errs.Missing("attendees")
		}
		if it.Date, err = p.required("date"); err != nil {
			return nil, err
		}
		if it.MinDuration, err = p.duration("min_duration"); err != nil {
			return nil, err
		}
		if it.IncludeSelf, err = p.boolean("include_self", true); err != nil {
			return nil, err
		}
		return it, nil

	case KindNoAction:
		reply, err := p.str("reply")
		if err != nil {
			return nil, err
		}
		if reply == "" {
			if reply, err = p.str("query"); err != nil {
				return nil, err
			}
		}
		return NoAction{Reply: reply}, nil
	}
	return nil, &errs.UnsupportedIntentError{Intent: kind}
}

func parseCreate(p params) (Intent, error) {
	var it CreateEvent
	var err error
	if it.Title, err = p.required("title"); err != nil {
		return nil, err
	}
	if it.Start, err = p.required("start"); err != nil {
		return nil, err
	}
	if it.End, err = p.required("end"); err != nil {
		return nil, err
	}
	if it.Description, err = p.str("description"); err != nil {
		return nil, err
	}
	if it.Location, err = p.str("location"); err != nil {
		return nil, err
	}
	if it.CalendarID, err = p.str("calendar_id"); err != nil {
		return nil, err
	}
	if it.Attendees, err = p.list("attendees"); err != nil {
		return nil, err
	}
	return it, nil
}

// parseUpdate reads changes from a nested "changes" object, falling back to
// top-level keys.
func parseUpdate(p params) (Intent, error) {
	var it UpdateEvent
	var err error
	if it.EventID, err = p.required("event_id"); err != nil {
		return nil, err
	}
	if it.CalendarID, err = p.str("calendar_id"); err != nil {
		return nil, err
	}

	src, err := p.nested("changes")
	if err != nil {
		return nil, err
	}
	if src == nil {
		src = p
	}
	c := &it.Changes
	if c.Title, err = src.optional("title"); err != nil {
		return nil, err
	}
	if c.Start, err = src.optional("start"); err != nil {
		return nil, err
	}
	if c.End, err = src.optional("end"); err != nil {
		return nil, err
	}
	if c.Description, err = src.optional("description"); err != nil {
		return nil, err
	}
	if c.Location, err = src.optional("location"); err != nil {
		return nil, err
	}
	if c.Attendees, err = src.list("attendees"); err != nil {
		return nil, err
	}
	if c.empty() {
		return nil, errs.Missing("changes")
	}
	return it, nil
}
