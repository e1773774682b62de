package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"calendar-assistant/internal/errs"
)

// synonyms maps the keys classifiers actually emit to canonical parameter
// names.
var synonyms = map[string]string{
	"summary":     "title",
	"subject":     "title",
	"event_title": "title",
	"name":        "title",
	"new_title":   "title",

	"start_time": "start",
	"starttime":  "start",
	"start_at":   "start",
	"from":       "start",
	"begin":      "start",
	"new_start":  "start",

	"end_time": "end",
	"endtime":  "end",
	"end_at":   "end",
	"to":       "end",
	"until":    "end",
	"new_end":  "end",

	"participants": "attendees",
	"attendee":     "attendees",
	"people":       "attendees",
	"invitees":     "attendees",
	"guests":       "attendees",
	"with":         "attendees",

	"day":        "date",
	"when":       "date",
	"range":      "date",
	"date_range": "date",

	"id":      "event_id",
	"eventid": "event_id",

	"calendar":   "calendar_id",
	"calendarid": "calendar_id",

	"q":        "query",
	"search":   "query",
	"keyword":  "query",
	"keywords": "query",
	"text":     "query",

	"notes":   "description",
	"details": "description",

	"place": "location",
	"where": "location",

	"duration":             "min_duration",
	"duration_minutes":     "min_duration",
	"min_duration_minutes": "min_duration",
	"length":               "min_duration",

	"message":  "reply",
	"response": "reply",

	"include_me": "include_self",
	"self":       "include_self",
}

// params is the classifier's parameter map with canonical keys.
type params map[string]any

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

func canonicalKey(k string) string {
	k = normalizeKey(k)
	if c, ok := synonyms[k]; ok {
		return c
	}
	return k
}

// newParams canonicalizes keys. When a canonical key and a synonym are both
// present the canonical spelling wins.
func newParams(raw map[string]any) params {
	p := make(params, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		_, isSynonym := synonyms[normalizeKey(k)]
		ck := canonicalKey(k)
		if _, exists := p[ck]; exists && isSynonym {
			continue
		}
		p[ck] = v
	}
	return p
}

func (p params) has(key string) bool {
	_, ok := p[key]
	return ok
}

// str returns the value for key as a trimmed string. Numbers are formatted;
// any other type is malformed.
func (p params) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case fmt.Stringer:
		return strings.TrimSpace(t.String()), nil
	}
	return "", errs.Malformed(key, fmt.Sprintf("expected text, got %T", v))
}

func (p params) required(key string) (string, error) {
	s, err := p.str(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errs.Missing(key)
	}
	return s, nil
}

// optional returns nil when key is absent so callers can tell "not given"
// from "set to empty".
func (p params) optional(key string) (*string, error) {
	if !p.has(key) {
		return nil, nil
	}
	s, err := p.str(key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// list accepts a JSON array of strings or a single string separated by
// commas or "and".
func (p params) list(key string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	var items []string
	switch t := v.(type) {
	case []string:
		items = t
	case []any:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, errs.Malformed(key, fmt.Sprintf("expected a list of names, got %T element", e))
			}
			items = append(items, s)
		}
	case string:
		items = strings.FieldsFunc(strings.ReplaceAll(t, " and ", ","), func(r rune) bool {
			return r == ',' || r == ';'
		})
	default:
		return nil, errs.Malformed(key, fmt.Sprintf("expected a list of names, got %T", v))
	}

	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// duration reads minutes from a number, or a Go duration ("45m", "1h30m"),
// or a bare number in a string.
func (p params) duration(key string) (time.Duration, error) {
	v, ok := p[key]
	if !ok {
		return 0, nil
	}
	var d time.Duration
	switch t := v.(type) {
	case float64:
		d = time.Duration(t * float64(time.Minute))
	case int:
		d = time.Duration(t) * time.Minute
	case string:
		t = strings.TrimSpace(t)
		if n, err := strconv.Atoi(t); err == nil {
			d = time.Duration(n) * time.Minute
		} else if parsed, err := time.ParseDuration(t); err == nil {
			d = parsed
		} else {
			return 0, errs.Malformed(key, fmt.Sprintf("invalid duration %q", t))
		}
	default:
		return 0, errs.Malformed(key, fmt.Sprintf("expected minutes, got %T", v))
	}
	if d < 0 {
		return 0, errs.Malformed(key, "duration must not be negative")
	}
	return d, nil
}

func (p params) boolean(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, errs.Malformed(key, fmt.Sprintf("expected true or false, got %q", t))
		}
		return b, nil
	}
	return false, errs.Malformed(key, fmt.Sprintf("expected true or false, got %T", v))
}

// nested returns the canonicalized map under key, if any.
func (p params) nested(key string) (params, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errs.Malformed(key, fmt.Sprintf("expected an object, got %T", v))
	}
	return newParams(m), nil
}
