// Package provider is the boundary to the calendar provider API. Every call
// addresses one calendar and is independently fallible; retries, if any,
// belong here and not in the scheduling engine.
package provider

import (
	"context"
	"errors"
	"time"

	"calendar-assistant/internal/interval"
)

var (
	// ErrEventNotFound is returned when the provider has no such event.
	ErrEventNotFound = errors.New("provider: event not found")

	// ErrNotLinked is returned when the user has not authorized calendar access.
	ErrNotLinked = errors.New("provider: calendar account not linked")
)

// Event status values reported by the provider.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// Event is an event as the provider reports it. Timed events carry Start and
// End; all-day events carry civil StartDate/EndDate ("2006-01-02", end
// exclusive) and leave Start/End zero.
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status,omitempty"`
	Start       time.Time `json:"start,omitempty"`
	End         time.Time `json:"end,omitempty"`
	AllDay      bool      `json:"all_day"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	Transparent bool      `json:"transparent,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// EventDraft describes an event to create.
type EventDraft struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"time_zone,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// EventChanges is a partial update; nil fields are left untouched.
type EventChanges struct {
	Summary     *string    `json:"summary,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Attendees   []string   `json:"attendees,omitempty"`
}

// Empty reports whether the change set would not modify anything.
func (c EventChanges) Empty() bool {
	return c.Summary == nil && c.Description == nil && c.Location == nil &&
		c.Start == nil && c.End == nil && c.Attendees == nil
}

// SearchQuery filters events on one calendar.
type SearchQuery struct {
	Text  string
	Range interval.Interval
}

// CalendarInfo is a calendar visible to the user at the provider.
type CalendarInfo struct {
	ID         string `json:"id"`
	Summary    string `json:"summary"`
	AccessRole string `json:"access_role"`
	Primary    bool   `json:"primary"`
	Hidden     bool   `json:"hidden"`
}

// Client is the provider API. userID selects whose credentials are used.
type Client interface {
	ListEvents(ctx context.Context, userID, calendarID string, rng interval.Interval) ([]Event, error)
	SearchEvents(ctx context.Context, userID, calendarID string, q SearchQuery) ([]Event, error)
	GetEvent(ctx context.Context, userID, calendarID, eventID string) (*Event, error)
	CreateEvent(ctx context.Context, userID, calendarID string, draft EventDraft) (*Event, error)
	UpdateEvent(ctx context.Context, userID, calendarID, eventID string, changes EventChanges) (*Event, error)
	DeleteEvent(ctx context.Context, userID, calendarID, eventID string) error
	ListCalendars(ctx context.Context, userID string) ([]CalendarInfo, error)
}
