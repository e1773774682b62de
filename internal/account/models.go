package account

import "time"

// AccessRole is the permission the user holds on a linked calendar.
type AccessRole string

const (
	RoleReader AccessRole = "reader"
	RoleWriter AccessRole = "writer"
	RoleOwner  AccessRole = "owner"
)

// Valid reports whether r is one of the known roles.
func (r AccessRole) Valid() bool {
	switch r {
	case RoleReader, RoleWriter, RoleOwner:
		return true
	}
	return false
}

// CanWrite reports whether events may be created on a calendar with this role.
func (r AccessRole) CanWrite() bool {
	return r == RoleWriter || r == RoleOwner
}

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// CalendarSource is one calendar linked to a user's account.
type CalendarSource struct {
	CalendarID  string     `json:"calendar_id"`
	OwnerUserID string     `json:"owner_user_id"`
	Summary     string     `json:"summary,omitempty"`
	IsHidden    bool       `json:"is_hidden"`
	AccessRole  AccessRole `json:"access_role"`
	IsPrimary   bool       `json:"is_primary"`
}

// Writable reports whether mutations may target this calendar.
func (s CalendarSource) Writable() bool {
	return !s.IsHidden && s.AccessRole.CanWrite()
}

// Contact is an entry in a user's address book. CalendarID is set when the
// contact shares a calendar the user can read.
type Contact struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	CalendarID  string `json:"calendar_id,omitempty"`
}

// AvailabilityTemplate is the weekly window a user is willing to be booked in.
// DayStart and DayEnd are wall-clock offsets from local midnight; DayEnd may
// be 24h.
type AvailabilityTemplate struct {
	Weekdays  []time.Weekday `json:"weekdays"`
	DayStart  time.Duration  `json:"day_start"`
	DayEnd    time.Duration  `json:"day_end"`
	Timezone  string         `json:"timezone"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
}

var allWeekdays = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}

// DefaultTemplate is "free except where busy": every day, midnight to midnight.
func DefaultTemplate(timezone string) AvailabilityTemplate {
	return AvailabilityTemplate{
		Weekdays: append([]time.Weekday(nil), allWeekdays...),
		DayStart: 0,
		DayEnd:   24 * time.Hour,
		Timezone: timezone,
	}
}
