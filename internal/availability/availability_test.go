package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/overlay"
	"calendar-assistant/internal/provider"
)

var workWeek = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func utc(d, h, m int) time.Time {
	return time.Date(2025, 11, d, h, m, 0, 0, time.UTC)
}

func newResolver(t *testing.T) (*Resolver, *account.MemoryStore, *provider.MockClient) {
	t.Helper()
	store := account.NewMemoryStore()
	client := provider.NewMockClient()
	ov := overlay.New(store, client, overlay.Policy{}, nil)
	return NewResolver(store, ov, nil), store, client
}

func TestResolve_TwoCalendars(t *testing.T) {
	ctx := context.Background()
	r, store, client := newResolver(t)

	require.NoError(t, store.ReplaceCalendarSources(ctx, "u1", []account.CalendarSource{
		{CalendarID: "work", AccessRole: account.RoleOwner, IsPrimary: true},
		{CalendarID: "personal", AccessRole: account.RoleWriter},
	}))
	require.NoError(t, store.SetAvailabilityTemplate(ctx, "u1", account.AvailabilityTemplate{
		Weekdays: workWeek,
		DayStart: 9 * time.Hour,
		DayEnd:   17 * time.Hour,
		Timezone: "UTC",
	}))
	client.AddEvent("work", provider.Event{Start: utc(10, 9, 0), End: utc(10, 10, 0)})
	client.AddEvent("personal", provider.Event{Start: utc(10, 9, 30), End: utc(10, 11, 0)})

	res, err := r.Resolve(ctx, Request{
		UserID: "u1",
		Range:  interval.Interval{Start: utc(10, 0, 0), End: utc(11, 0, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: utc(10, 11, 0), End: utc(10, 17, 0)}}, res.Free)
	assert.Len(t, res.Busy, 2)
	assert.False(t, res.Partial)
	assert.Equal(t, "UTC", res.Timezone)
}

func TestResolve_WeekdaysOnly(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newResolver(t)
	tpl := account.AvailabilityTemplate{Weekdays: workWeek, DayStart: 9 * time.Hour, DayEnd: 17 * time.Hour}

	// Saturday 8th through Monday 10th.
	res, err := r.Resolve(ctx, Request{
		UserID:   "u1",
		Range:    interval.Interval{Start: utc(8, 0, 0), End: utc(11, 0, 0)},
		Template: &tpl,
	})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: utc(10, 9, 0), End: utc(10, 17, 0)}}, res.Free)
}

func TestResolve_DefaultTemplateKeepsDaysSeparate(t *testing.T) {
	r, _, _ := newResolver(t)
	res, err := r.Resolve(context.Background(), Request{
		UserID: "nobody",
		Range:  interval.Interval{Start: utc(10, 0, 0), End: utc(12, 0, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{
		{Start: utc(10, 0, 0), End: utc(11, 0, 0)},
		{Start: utc(11, 0, 0), End: utc(12, 0, 0)},
	}, res.Free)
}

func TestResolve_MinDuration(t *testing.T) {
	ctx := context.Background()
	r, store, client := newResolver(t)
	require.NoError(t, store.ReplaceCalendarSources(ctx, "u1", []account.CalendarSource{
		{CalendarID: "c", AccessRole: account.RoleOwner},
	}))
	tpl := account.AvailabilityTemplate{Weekdays: workWeek, DayStart: 9 * time.Hour, DayEnd: 12 * time.Hour}
	client.AddEvent("c", provider.Event{Start: utc(10, 9, 15), End: utc(10, 11, 0)})

	res, err := r.Resolve(ctx, Request{
		UserID:      "u1",
		Range:       interval.Interval{Start: utc(10, 0, 0), End: utc(11, 0, 0)},
		MinDuration: 30 * time.Minute,
		Template:    &tpl,
	})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: utc(10, 11, 0), End: utc(10, 12, 0)}}, res.Free)
}

func TestResolve_InvalidTemplate(t *testing.T) {
	r, _, _ := newResolver(t)
	tpl := account.AvailabilityTemplate{Weekdays: workWeek, DayStart: 17 * time.Hour, DayEnd: 9 * time.Hour}
	_, err := r.Resolve(context.Background(), Request{
		UserID:   "u1",
		Range:    interval.Interval{Start: utc(10, 0, 0), End: utc(11, 0, 0)},
		Template: &tpl,
	})
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "day_end", ve.Field)
}

func TestUniverse_DST(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	tpl, err := Compile(account.AvailabilityTemplate{
		Weekdays: []time.Weekday{time.Sunday, time.Monday},
		DayStart: 9 * time.Hour,
		DayEnd:   24 * time.Hour,
		Timezone: "America/Los_Angeles",
	})
	require.NoError(t, err)

	// Clocks go forward on Sunday 2025-03-09.
	rng := interval.Interval{
		Start: time.Date(2025, 3, 9, 0, 0, 0, 0, la),
		End:   time.Date(2025, 3, 11, 0, 0, 0, 0, la),
	}
	got, err := tpl.Universe(rng)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 9, got[0].Start.In(la).Hour())
	assert.True(t, got[0].End.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, la)))
	assert.Equal(t, 15*time.Hour, got[0].Duration())
	assert.Equal(t, 9, got[1].Start.In(la).Hour())
	assert.Equal(t, -7*time.Hour, offset(got[1].Start))
}

func offset(t time.Time) time.Duration {
	_, off := t.Zone()
	return time.Duration(off) * time.Second
}

func TestUniverse_ClipsToRange(t *testing.T) {
	tpl, err := Compile(account.AvailabilityTemplate{Weekdays: workWeek, DayStart: 9 * time.Hour, DayEnd: 17 * time.Hour})
	require.NoError(t, err)

	got, err := tpl.Universe(interval.Interval{Start: utc(10, 12, 0), End: utc(10, 14, 0)})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: utc(10, 12, 0), End: utc(10, 14, 0)}}, got)
}

func TestValidateTemplate(t *testing.T) {
	base := account.AvailabilityTemplate{Weekdays: workWeek, DayStart: 9 * time.Hour, DayEnd: 17 * time.Hour}

	tests := []struct {
		name  string
		edit  func(*account.AvailabilityTemplate)
		field string
	}{
		{"valid", func(*account.AvailabilityTemplate) {}, ""},
		{"end of day", func(tpl *account.AvailabilityTemplate) { tpl.DayEnd = 24 * time.Hour }, ""},
		{"no weekdays", func(tpl *account.AvailabilityTemplate) { tpl.Weekdays = nil }, "weekdays"},
		{"bad weekday", func(tpl *account.AvailabilityTemplate) { tpl.Weekdays = []time.Weekday{9} }, "weekdays"},
		{"start past midnight", func(tpl *account.AvailabilityTemplate) { tpl.DayStart = 24 * time.Hour }, "day_start"},
		{"end before start", func(tpl *account.AvailabilityTemplate) { tpl.DayEnd = 8 * time.Hour }, "day_end"},
		{"seconds", func(tpl *account.AvailabilityTemplate) { tpl.DayEnd = 17*time.Hour + time.Second }, "day_end"},
		{"unknown zone", func(tpl *account.AvailabilityTemplate) { tpl.Timezone = "Mars/Olympus" }, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := base
			tt.edit(&tpl)
			err := ValidateTemplate(tpl)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseOffset(t *testing.T) {
	d, err := ParseOffset("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+30*time.Minute, d)

	d, err = ParseOffset("17:00:00")
	require.NoError(t, err)
	assert.Equal(t, 17*time.Hour, d)

	d, err = ParseOffset("24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)
	assert.Equal(t, "24:00", FormatOffset(d))

	_, err = ParseOffset("9am")
	assert.Error(t, err)
}

func TestSlots(t *testing.T) {
	free := []interval.Interval{
		{Start: utc(10, 9, 0), End: utc(10, 10, 45)},
		{Start: utc(10, 13, 0), End: utc(10, 13, 20)},
	}
	slots, err := Slots(free, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []Slot{
		{Start: utc(10, 9, 0), End: utc(10, 9, 30)},
		{Start: utc(10, 9, 30), End: utc(10, 10, 0)},
		{Start: utc(10, 10, 0), End: utc(10, 10, 30)},
	}, slots)

	_, err = Slots(free, 0)
	assert.Error(t, err)
}
