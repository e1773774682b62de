package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/errs"
)

// TemplateDTO is the availability template on the wire, with wall-clock
// "HH:MM" bounds and weekday names.
type TemplateDTO struct {
	Weekdays  []string   `json:"weekdays" binding:"required,min=1"`
	DayStart  string     `json:"day_start" binding:"required"`
	DayEnd    string     `json:"day_end" binding:"required"`
	Timezone  string     `json:"timezone"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func toTemplateDTO(tpl account.AvailabilityTemplate) TemplateDTO {
	days := availability.SortedWeekdays(tpl.Weekdays)
	out := TemplateDTO{
		Weekdays: make([]string, len(days)),
		DayStart: availability.FormatOffset(tpl.DayStart),
		DayEnd:   availability.FormatOffset(tpl.DayEnd),
		Timezone: tpl.Timezone,
	}
	for i, d := range days {
		out.Weekdays[i] = strings.ToLower(d.String())
	}
	if !tpl.UpdatedAt.IsZero() {
		out.UpdatedAt = &tpl.UpdatedAt
	}
	return out
}

func (d TemplateDTO) template() (account.AvailabilityTemplate, error) {
	var tpl account.AvailabilityTemplate
	for _, s := range d.Weekdays {
		wd, err := parseWeekday(s)
		if err != nil {
			return tpl, err
		}
		tpl.Weekdays = append(tpl.Weekdays, wd)
	}
	var err error
	if tpl.DayStart, err = availability.ParseOffset(d.DayStart); err != nil {
		return tpl, errs.Malformed("day_start", err.Error())
	}
	if tpl.DayEnd, err = availability.ParseOffset(d.DayEnd); err != nil {
		return tpl, errs.Malformed("day_end", err.Error())
	}
	tpl.Timezone = d.Timezone
	return tpl, availability.ValidateTemplate(tpl)
}

// parseWeekday accepts "monday", "mon" or 0-6 with Sunday as 0.
func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, errs.Malformed("weekdays", fmt.Sprintf("unknown weekday %q", s))
}

// RangeQuery selects the period a read covers: From and To as RFC3339, or
// Date as a relative expression such as "tomorrow".
type RangeQuery struct {
	From     string `form:"from" json:"from"`
	To       string `form:"to" json:"to"`
	Date     string `form:"date" json:"date"`
	Timezone string `form:"tz" json:"timezone"`
	// MinDuration is in minutes.
	MinDuration int `form:"min_duration" json:"min_duration" binding:"gte=0"`
}

type SlotsQuery struct {
	RangeQuery
	// Length is the slot length in minutes; 30 when absent.
	Length *int `form:"length" binding:"omitempty,gt=0"`
}

type OverlapRequest struct {
	RangeQuery
	// Participants are emails or contact names.
	Participants []string `json:"participants" binding:"required,min=1,dive,required"`
	IncludeSelf  *bool    `json:"include_self"`
}

type DispatchRequest struct {
	Intent     string         `json:"intent" binding:"required"`
	Parameters map[string]any `json:"parameters"`
	Timezone   string         `json:"timezone"`
}

type AssistantRequest struct {
	Text     string `json:"text" binding:"required"`
	Timezone string `json:"timezone"`
}

type ContactRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	// CalendarID is a calendar of the contact's that the user can read.
	CalendarID string `json:"calendar_id"`
}
