package availability

import (
	"fmt"
	"slices"
	"time"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
)

// Template is a validated availability template bound to its location.
type Template struct {
	weekdays [7]bool
	dayStart time.Duration
	dayEnd   time.Duration
	loc      *time.Location
}

// Compile validates tpl and loads its zone. An empty Timezone means UTC.
func Compile(tpl account.AvailabilityTemplate) (Template, error) {
	if err := ValidateTemplate(tpl); err != nil {
		return Template{}, err
	}
	loc, err := LoadLocation(tpl.Timezone)
	if err != nil {
		return Template{}, err
	}
	t := Template{dayStart: tpl.DayStart, dayEnd: tpl.DayEnd, loc: loc}
	for _, d := range tpl.Weekdays {
		t.weekdays[d] = true
	}
	return t, nil
}

// ValidateTemplate checks the bounds a template must satisfy before it is
// stored or used.
func ValidateTemplate(tpl account.AvailabilityTemplate) error {
	if len(tpl.Weekdays) == 0 {
		return errs.Malformed("weekdays", "at least one weekday is required")
	}
	for _, d := range tpl.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return errs.Malformed("weekdays", fmt.Sprintf("unknown weekday %d", d))
		}
	}
	if tpl.DayStart < 0 || tpl.DayStart >= 24*time.Hour || tpl.DayStart%time.Minute != 0 {
		return errs.Malformed("day_start", "must be a minute between 00:00 and 23:59")
	}
	if tpl.DayEnd <= 0 || tpl.DayEnd > 24*time.Hour || tpl.DayEnd%time.Minute != 0 {
		return errs.Malformed("day_end", "must be a minute between 00:01 and 24:00")
	}
	if tpl.DayEnd <= tpl.DayStart {
		return errs.Malformed("day_end", "must be after day_start")
	}
	if _, err := LoadLocation(tpl.Timezone); err != nil {
		return err
	}
	return nil
}

// LoadLocation resolves an IANA zone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errs.Malformed("timezone", fmt.Sprintf("unknown time zone %q", name))
	}
	return loc, nil
}

func (t Template) Location() *time.Location { return t.loc }

// Weekdays lists the enabled days, Sunday first.
func (t Template) Weekdays() []time.Weekday {
	var out []time.Weekday
	for d, on := range t.weekdays {
		if on {
			out = append(out, time.Weekday(d))
		}
	}
	return out
}

// Universe returns the template's window on every enabled day that touches
// rng, clipped to rng. Windows are computed on the local wall clock, so a
// 09:00-17:00 day stays 09:00-17:00 across DST changes. Windows of adjacent
// days are kept separate even when they touch at midnight.
func (t Template) Universe(rng interval.Interval) ([]interval.Interval, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	first := rng.Start.In(t.loc)
	y, m, d := first.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.loc)

	var out []interval.Interval
	for day.Before(rng.End) {
		y, m, d = day.Date()
		if t.weekdays[day.Weekday()] {
			w := interval.Interval{
				Start: wallClock(y, m, d, t.dayStart, t.loc),
				End:   wallClock(y, m, d, t.dayEnd, t.loc),
			}
			if clipped, ok := w.Clip(rng); ok {
				out = append(out, clipped)
			}
		}
		day = time.Date(y, m, d+1, 0, 0, 0, 0, t.loc)
	}
	return out, nil
}

// wallClock is local midnight plus off on the wall clock. time.Date
// normalizes 24:00 to the next midnight.
func wallClock(y int, m time.Month, d int, off time.Duration, loc *time.Location) time.Time {
	h := int(off / time.Hour)
	mins := int(off % time.Hour / time.Minute)
	return time.Date(y, m, d, h, mins, 0, 0, loc)
}

// ParseOffset reads "HH:MM" (seconds suffix ignored) as an offset from
// midnight. "24:00" is accepted as end of day.
func ParseOffset(s string) (time.Duration, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("invalid time string: %s", s)
	}
	s = s[:5] // "09:00:00" -> "09:00"
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	tt, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time string: %s", s)
	}
	return time.Duration(tt.Hour())*time.Hour + time.Duration(tt.Minute())*time.Minute, nil
}

// FormatOffset is the inverse of ParseOffset.
func FormatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// SortedWeekdays returns ds deduplicated, Sunday first.
func SortedWeekdays(ds []time.Weekday) []time.Weekday {
	out := slices.Clone(ds)
	slices.Sort(out)
	return slices.Compact(out)
}
