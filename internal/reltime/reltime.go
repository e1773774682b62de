// Package reltime turns day, week and clock expressions into absolute
// instants in a user's time zone.
//
// All arithmetic is done on the local calendar with time.Date, never by
// adding multiples of 24h, so day boundaries stay at local midnight across
// DST transitions.
package reltime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
)

// Options carries the user-facing policy choices.
type Options struct {
	// WeekdayIncludesToday makes a bare weekday name that matches today
	// resolve to today instead of the same day next week.
	WeekdayIncludesToday bool
}

var (
	spacePattern   = regexp.MustCompile(`\s+`)
	clockPattern   = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)
	weekdayPattern = regexp.MustCompile(`^(?:(this|next|last|coming)\s+)?([a-z]+)$`)
	periodPattern  = regexp.MustCompile(`^(this|next|last)\s+(week|month)$`)
)

// dayOffsets maps single-day keywords to offsets from today.
var dayOffsets = map[string]int{
	"today":                0,
	"tonight":              0,
	"tomorrow":             1,
	"day after tomorrow":   2,
	"yesterday":            -1,
	"day before yesterday": -2,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var periodOffsets = map[string]int{"this": 0, "next": 1, "last": -1}

// namedClocks are clock words with a fixed meaning.
var namedClocks = map[string]int{
	"noon":     12,
	"midday":   12,
	"midnight": 0,
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.TrimPrefix(s, "on ")
	return strings.TrimPrefix(s, "the ")
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// addDays moves a local midnight by n calendar days.
func addDays(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, day.Location())
}

func oneDay(day time.Time) interval.Interval {
	return interval.Interval{Start: day, End: addDays(day, 1)}
}

// mondayOf returns local midnight on the Monday of the week containing day.
func mondayOf(day time.Time) time.Time {
	back := (int(day.Weekday()) + 6) % 7
	return addDays(day, -back)
}

// ResolveRange resolves a day or period token to [start, end) in loc.
// Supported: today, tomorrow, yesterday, day after tomorrow, this/next/last
// week (Monday to Sunday), this/next/last month, weekday names optionally
// prefixed with this/next/last, and YYYY-MM-DD.
func ResolveRange(token string, loc *time.Location, now time.Time, opts Options) (interval.Interval, error) {
	if loc == nil {
		loc = time.UTC
	}
	tok := normalize(token)
	if tok == "" {
		return interval.Interval{}, errs.Missing("date")
	}
	today := startOfDay(now, loc)

	if off, ok := dayOffsets[tok]; ok {
		return oneDay(addDays(today, off)), nil
	}

	if m := periodPattern.FindStringSubmatch(tok); m != nil {
		k := periodOffsets[m[1]]
		if m[2] == "week" {
			start := addDays(mondayOf(today), 7*k)
			return interval.Interval{Start: start, End: addDays(start, 7)}, nil
		}
		y, mo, _ := today.Date()
		start := time.Date(y, mo+time.Month(k), 1, 0, 0, 0, 0, loc)
		return interval.Interval{Start: start, End: time.Date(y, mo+time.Month(k)+1, 1, 0, 0, 0, 0, loc)}, nil
	}

	if m := weekdayPattern.FindStringSubmatch(tok); m != nil {
		if wd, ok := weekdayNames[m[2]]; ok {
			return oneDay(weekdayDate(today, wd, m[1], opts)), nil
		}
	}

	if d, err := time.ParseInLocation("2006-01-02", tok, loc); err == nil {
		return oneDay(d), nil
	}

	return interval.Interval{}, errs.Malformed("date", fmt.Sprintf("unrecognized date %q", token))
}

// weekdayDate picks the day named wd relative to today. A bare name means
// the next occurrence; "this" also allows today; "next" and "last" select
// that weekday in the following or previous Monday-Sunday week.
func weekdayDate(today time.Time, wd time.Weekday, qualifier string, opts Options) time.Time {
	switch qualifier {
	case "next":
		return addDays(mondayOf(today), 7+(int(wd)+6)%7)
	case "last":
		return addDays(mondayOf(today), -7+(int(wd)+6)%7)
	}
	includeToday := opts.WeekdayIncludesToday || qualifier == "this"
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	if delta == 0 && !includeToday {
		delta = 7
	}
	return addDays(today, delta)
}

// instantLayouts are accepted as-is, in loc unless they carry an offset.
var instantLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ResolveInstant resolves a date-time expression to an instant in loc.
// Accepted: RFC 3339, local "YYYY-MM-DDTHH:MM", "<day> [at] <clock>",
// "<clock> <day>" and a bare clock meaning today. Clocks are "15:00",
// "3pm", "3:30 pm", "noon" or "midnight". An hour from 1 to 11 without
// am/pm is ambiguous and yields errs.AmbiguityError with both readings.
func ResolveInstant(expr string, loc *time.Location, now time.Time, opts Options) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return time.Time{}, errs.Missing("time")
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}

	s := strings.TrimPrefix(normalize(raw), "at ")
	today := startOfDay(now, loc)

	if c, ok, err := parseClock(s); ok {
		return atClock(today, c, err)
	}

	if day, clk, found := strings.Cut(s, " at "); found {
		return dayAndClock(strings.TrimSpace(day), strings.TrimSpace(clk), raw, loc, now, opts)
	}

	// "tomorrow 3pm" / "3 pm tomorrow": try every split point.
	words := strings.Split(s, " ")
	for i := 1; i < len(words); i++ {
		head, tail := strings.Join(words[:i], " "), strings.Join(words[i:], " ")
		if _, ok, _ := parseClock(tail); ok {
			if _, err := ResolveRange(head, loc, now, opts); err == nil {
				return dayAndClock(head, tail, raw, loc, now, opts)
			}
		}
		if _, ok, _ := parseClock(head); ok {
			if _, err := ResolveRange(tail, loc, now, opts); err == nil {
				return dayAndClock(tail, head, raw, loc, now, opts)
			}
		}
	}

	if _, err := ResolveRange(s, loc, now, opts); err == nil {
		return time.Time{}, errs.Malformed("time", fmt.Sprintf("%q names a day but no time of day", raw))
	}
	return time.Time{}, errs.Malformed("time", fmt.Sprintf("unrecognized time %q", raw))
}

func dayAndClock(day, clk, raw string, loc *time.Location, now time.Time, opts Options) (time.Time, error) {
	rng, err := ResolveRange(day, loc, now, opts)
	if err != nil {
		return time.Time{}, errs.Malformed("time", fmt.Sprintf("unrecognized day in %q", raw))
	}
	if !addDays(rng.Start, 1).Equal(rng.End) {
		return time.Time{}, errs.Malformed("time", fmt.Sprintf("%q spans more than one day", day))
	}
	c, ok, err := parseClock(clk)
	if !ok {
		return time.Time{}, errs.Malformed("time", fmt.Sprintf("unrecognized clock time %q", clk))
	}
	return atClock(rng.Start, c, err)
}

// clock is a parsed time of day. When ambiguous is set, hour holds the
// morning reading and the afternoon reading is hour+12.
type clock struct {
	hour, minute int
	ambiguous    bool
}

// parseClock reports ok=false when s is not shaped like a clock, and a
// non-nil error when it is shaped like one but out of range.
func parseClock(s string) (clock, bool, error) {
	if h, ok := namedClocks[s]; ok {
		return clock{hour: h}, true, nil
	}
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return clock{}, false, nil
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return clock{}, true, errs.Malformed("time", fmt.Sprintf("invalid minute in %q", s))
	}

	switch meridiem := strings.ReplaceAll(m[3], ".", ""); meridiem {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return clock{}, true, errs.Malformed("time", fmt.Sprintf("invalid hour in %q", s))
		}
		hour %= 12
		if meridiem == "pm" {
			hour += 12
		}
		return clock{hour: hour, minute: minute}, true, nil
	}

	if hour > 23 {
		return clock{}, true, errs.Malformed("time", fmt.Sprintf("invalid hour in %q", s))
	}
	// "09:00" is unambiguous 24-hour notation; "9" and "9:00" are not.
	zeroPadded := len(m[1]) == 2 && m[1][0] == '0'
	if hour >= 1 && hour <= 11 && !zeroPadded {
		return clock{hour: hour, minute: minute, ambiguous: true}, true, nil
	}
	return clock{hour: hour, minute: minute}, true, nil
}

func atClock(day time.Time, c clock, parseErr error) (time.Time, error) {
	if parseErr != nil {
		return time.Time{}, parseErr
	}
	y, m, d := day.Date()
	at := func(h int) time.Time {
		return time.Date(y, m, d, h, c.minute, 0, 0, day.Location())
	}
	if !c.ambiguous {
		return at(c.hour), nil
	}

	am, pm := at(c.hour), at(c.hour+12)
	readings := []time.Time{pm, am}
	if c.hour >= 8 {
		readings = []time.Time{am, pm}
	}
	opts := make([]errs.Option, len(readings))
	for i, t := range readings {
		opts[i] = errs.Option{Label: t.Format("Mon Jan 2 3:04 PM"), Value: t.Format(time.RFC3339)}
	}
	return time.Time{}, &errs.AmbiguityError{
		Field:   "time",
		Message: fmt.Sprintf("did you mean %d:%02d am or pm?", c.hour, c.minute),
		Options: opts,
	}
}
