package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/overlap"
	"calendar-assistant/internal/overlay"
	"calendar-assistant/internal/provider"
)

// Op is the kind of calendar mutation an Instruction performs.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Instruction is a validated mutation. It is executed against the provider
// when one is configured; otherwise Executed stays false and the caller
// applies it.
type Instruction struct {
	Op         Op                     `json:"op"`
	CalendarID string                 `json:"calendar_id"`
	EventID    string                 `json:"event_id,omitempty"`
	Draft      *provider.EventDraft   `json:"draft,omitempty"`
	Changes    *provider.EventChanges `json:"changes,omitempty"`
	Conflicts  []overlay.BusyEvent    `json:"conflicts,omitempty"`
	Executed   bool                   `json:"executed"`
	Event      *provider.Event        `json:"event,omitempty"`
}

type ScheduleView struct {
	Range    interval.Interval   `json:"range"`
	Events   []overlay.BusyEvent `json:"events"`
	Failures []overlay.Failure   `json:"failures,omitempty"`
}

type AvailabilityView struct {
	Range    interval.Interval   `json:"range"`
	Free     []interval.Interval `json:"free"`
	Timezone string              `json:"timezone"`
	// Available is set for span questions: the whole span is free.
	Available *bool `json:"available,omitempty"`
}

type SearchView struct {
	Range  interval.Interval `json:"range"`
	Events []provider.Event  `json:"events"`
}

func (d *Dispatcher) showEvent(ctx context.Context, c call, it ShowEvent) (Result, error) {
	if err := d.needProvider(); err != nil {
		return Result{}, err
	}

	candidates := []string{it.CalendarID}
	if it.CalendarID == "" {
		sources, err := d.visibleSources(ctx, c.user.UserID)
		if err != nil {
			return Result{}, err
		}
		candidates = candidates[:0]
		for _, s := range sources {
			candidates = append(candidates, s.CalendarID)
		}
	}

	for _, calID := range candidates {
		callCtx, cancel := d.providerCtx(ctx)
		ev, err := d.provider.GetEvent(callCtx, c.user.UserID, calID, it.EventID)
		cancel()
		if errors.Is(err, provider.ErrEventNotFound) {
			continue
		}
		if err != nil {
			return Result{}, upstream("get event", err, it.EventID)
		}
		return success(KindShowEvent, ev.Summary, ev, false), nil
	}
	return Result{}, &errs.NotFoundError{Kind: "event", Name: it.EventID}
}

func (d *Dispatcher) showSchedule(ctx context.Context, c call, it ShowSchedule) (Result, error) {
	rng, err := d.resolveRange(c, it.Date)
	if err != nil {
		return Result{}, err
	}
	res, err := d.overlay.Busy(ctx, overlay.Request{
		UserID:   c.user.UserID,
		Range:    rng,
		Location: c.loc,
		Purpose:  overlay.PurposeAvailability,
	})
	if err != nil {
		return Result{}, err
	}
	view := ScheduleView{Range: rng, Events: res.Busy, Failures: res.Failures}
	if view.Events == nil {
		view.Events = []overlay.BusyEvent{}
	}
	return success(KindShowSchedule, plural(len(res.Busy), "event"), view, res.Partial), nil
}

func (d *Dispatcher) createEvent(ctx context.Context, c call, it CreateEvent) (Result, error) {
	start, err := d.resolveInstant(c, it.Start, "start")
	if err != nil {
		return Result{}, err
	}
	end, err := d.resolveInstant(c, it.End, "end")
	if err != nil {
		return Result{}, err
	}
	span, err := interval.New(start, end)
	if err != nil {
		return Result{}, errs.Malformed("end", "must be after start")
	}
	emails, err := d.resolveAttendees(ctx, c, it.Attendees)
	if err != nil {
		return Result{}, err
	}
	target, err := d.targetCalendar(ctx, c.user.UserID, it.CalendarID)
	if err != nil {
		return Result{}, err
	}
	conflicts, partial, err := d.conflicts(ctx, c, span, "")
	if err != nil {
		return Result{}, err
	}

	ins := Instruction{
		Op:         OpCreate,
		CalendarID: target.CalendarID,
		Draft: &provider.EventDraft{
			Summary:     it.Title,
			Description: it.Description,
			Location:    it.Location,
			Start:       start,
			End:         end,
			TimeZone:    c.loc.String(),
			Attendees:   emails,
		},
		Conflicts: conflicts,
	}
	if d.provider != nil {
		callCtx, cancel := d.providerCtx(ctx)
		defer cancel()
		ev, err := d.provider.CreateEvent(callCtx, c.user.UserID, target.CalendarID, *ins.Draft)
		if err != nil {
			return Result{}, upstream("create event", err, "")
		}
		ins.Executed, ins.Event, ins.EventID = true, ev, ev.ID
	}

	msg := fmt.Sprintf("%q on %s with %s", it.Title, start.Format("Mon Jan 2 3:04 PM"), joinEmails(emails))
	if len(conflicts) > 0 {
		msg += fmt.Sprintf(" (conflicts with %s)", plural(len(conflicts), "event"))
	}
	return success(KindCreateEvent, msg, ins, partial), nil
}

func (d *Dispatcher) updateEvent(ctx context.Context, c call, it UpdateEvent) (Result, error) {
	target, err := d.targetCalendar(ctx, c.user.UserID, it.CalendarID)
	if err != nil {
		return Result{}, err
	}

	changes := provider.EventChanges{
		Summary:     it.Changes.Title,
		Description: it.Changes.Description,
		Location:    it.Changes.Location,
	}
	if it.Changes.Start != nil {
		t, err := d.resolveInstant(c, *it.Changes.Start, "start")
		if err != nil {
			return Result{}, err
		}
		changes.Start = &t
	}
	if it.Changes.End != nil {
		t, err := d.resolveInstant(c, *it.Changes.End, "end")
		if err != nil {
			return Result{}, err
		}
		changes.End = &t
	}
	if it.Changes.Attendees != nil {
		emails, err := d.resolveAttendees(ctx, c, it.Changes.Attendees)
		if err != nil {
			return Result{}, err
		}
		if emails == nil {
			emails = []string{}
		}
		changes.Attendees = emails
	}

	var current *provider.Event
	if d.provider != nil {
		callCtx, cancel := d.providerCtx(ctx)
		current, err = d.provider.GetEvent(callCtx, c.user.UserID, target.CalendarID, it.EventID)
		cancel()
		if err != nil {
			return Result{}, upstream("get event", err, it.EventID)
		}
	}

	ins := Instruction{Op: OpUpdate, CalendarID: target.CalendarID, EventID: it.EventID, Changes: &changes}
	partial := false
	if span, ok, err := moveSpan(changes, current); err != nil {
		return Result{}, err
	} else if ok {
		// Keep the duration when only the start moves.
		if current != nil && changes.Start != nil && changes.End == nil {
			changes.End = &span.End
		}
		if ins.Conflicts, partial, err = d.conflicts(ctx, c, span, it.EventID); err != nil {
			return Result{}, err
		}
	}

	if d.provider != nil {
		callCtx, cancel := d.providerCtx(ctx)
		defer cancel()
		ev, err := d.provider.UpdateEvent(callCtx, c.user.UserID, target.CalendarID, it.EventID, changes)
		if err != nil {
			return Result{}, upstream("update event", err, it.EventID)
		}
		ins.Executed, ins.Event = true, ev
	}

	msg := "event updated"
	if !ins.Executed {
		msg = "event update planned"
	}
	if len(ins.Conflicts) > 0 {
		msg += fmt.Sprintf(" (conflicts with %s)", plural(len(ins.Conflicts), "event"))
	}
	return success(KindUpdateEvent, msg, ins, partial), nil
}

// moveSpan returns the event's new time span when the update moves it. A
// start-only move keeps the current duration; without the current event
// both ends are needed to know the span.
func moveSpan(ch provider.EventChanges, current *provider.Event) (interval.Interval, bool, error) {
	if ch.Start == nil && ch.End == nil {
		return interval.Interval{}, false, nil
	}
	switch {
	case ch.Start != nil && ch.End != nil:
		span, err := interval.New(*ch.Start, *ch.End)
		if err != nil {
			return interval.Interval{}, false, errs.Malformed("end", "must be after start")
		}
		return span, true, nil
	case current == nil || current.AllDay:
		return interval.Interval{}, false, nil
	case ch.Start != nil:
		return interval.Interval{Start: *ch.Start, End: ch.Start.Add(current.End.Sub(current.Start))}, true, nil
	default:
		span, err := interval.New(current.Start, *ch.End)
		if err != nil {
			return interval.Interval{}, false, errs.Malformed("end", "must be after the event's start")
		}
		return span, true, nil
	}
}

func (d *Dispatcher) deleteEvent(ctx context.Context, c call, it DeleteEvent) (Result, error) {
	target, err := d.targetCalendar(ctx, c.user.UserID, it.CalendarID)
	if err != nil {
		return Result{}, err
	}
	ins := Instruction{Op: OpDelete, CalendarID: target.CalendarID, EventID: it.EventID}
	if d.provider != nil {
		callCtx, cancel := d.providerCtx(ctx)
		defer cancel()
		if err := d.provider.DeleteEvent(callCtx, c.user.UserID, target.CalendarID, it.EventID); err != nil {
			return Result{}, upstream("delete event", err, it.EventID)
		}
		ins.Executed = true
	}
	return success(KindDeleteEvent, "event deleted", ins, false), nil
}

func (d *Dispatcher) searchEvents(ctx context.Context, c call, it SearchEvents) (Result, error) {
	if err := d.needProvider(); err != nil {
		return Result{}, err
	}

	var rng interval.Interval
	if it.Date != "" {
		var err error
		if rng, err = d.resolveRange(c, it.Date); err != nil {
			return Result{}, err
		}
	} else {
		y, m, day := c.now.In(c.loc).Date()
		rng.Start = time.Date(y, m, day, 0, 0, 0, 0, c.loc)
		rng.End = rng.Start.Add(d.opts.SearchHorizon)
	}
	emails, err := d.resolveAttendees(ctx, c, it.Attendees)
	if err != nil {
		return Result{}, err
	}
	sources, err := d.visibleSources(ctx, c.user.UserID)
	if err != nil {
		return Result{}, err
	}

	found, partial, err := d.searchAll(ctx, c.user.UserID, sources, provider.SearchQuery{Text: it.Query, Range: rng})
	if err != nil {
		return Result{}, err
	}

	events := make([]provider.Event, 0, len(found))
	for _, ev := range found {
		if ev.Status == provider.StatusCancelled || !hasAll(ev.Attendees, emails) {
			continue
		}
		events = append(events, ev)
	}
	slices.SortFunc(events, func(a, b provider.Event) int {
		if n := a.Start.Compare(b.Start); n != 0 {
			return n
		}
		return strings.Compare(a.StartDate, b.StartDate)
	})

	view := SearchView{Range: rng, Events: events}
	return success(KindSearchEvents, plural(len(events), "event"), view, partial), nil
}

func hasAll(have, want []string) bool {
	for _, w := range want {
		if !slices.ContainsFunc(have, func(h string) bool { return strings.EqualFold(h, w) }) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) checkAvailability(ctx context.Context, c call, it CheckAvailability) (Result, error) {
	var (
		rng  interval.Interval
		span bool
		err  error
	)
	if it.Start != "" {
		start, err := d.resolveInstant(c, it.Start, "start")
		if err != nil {
			return Result{}, err
		}
		end, err := d.resolveInstant(c, it.End, "end")
		if err != nil {
			return Result{}, err
		}
		if rng, err = interval.New(start, end); err != nil {
			return Result{}, errs.Malformed("end", "must be after start")
		}
		span = true
	} else if rng, err = d.resolveRange(c, it.Date); err != nil {
		return Result{}, err
	}

	// A span is answered by coverage, so its per-day pieces are never
	// filtered by length.
	minDur := it.MinDuration
	switch {
	case span:
		minDur = 0
	case minDur == 0:
		minDur = d.opts.DefaultMinDuration
	}
	res, err := d.avail.Resolve(ctx, availability.Request{
		UserID:      c.user.UserID,
		Range:       rng,
		MinDuration: minDur,
		Timezone:    c.user.Timezone,
		Purpose:     overlay.PurposeAvailability,
	})
	if err != nil {
		return Result{}, err
	}

	view := AvailabilityView{Range: rng, Free: res.Free, Timezone: res.Timezone}
	if view.Free == nil {
		view.Free = []interval.Interval{}
	}
	msg := plural(len(res.Free), "free window")
	if span {
		// Free windows never cross midnight, so a free span may arrive as
		// several touching windows.
		free := interval.TotalDuration(res.Free) == rng.Duration()
		view.Available = &free
		msg = "busy"
		if free {
			msg = "free"
		}
	}
	return success(KindCheckAvailability, msg, view, res.Partial), nil
}

func (d *Dispatcher) findOverlap(ctx context.Context, c call, it FindOverlap) (Result, error) {
	rng, err := d.resolveRange(c, it.Date)
	if err != nil {
		return Result{}, err
	}
	emails, err := d.resolveAttendees(ctx, c, it.Attendees)
	if err != nil {
		return Result{}, err
	}
	minDur := it.MinDuration
	if minDur == 0 {
		minDur = d.opts.DefaultMinDuration
	}
	res, err := d.overlap.Resolve(ctx, overlap.Request{
		RequesterID:      c.user.UserID,
		Timezone:         c.user.Timezone,
		IncludeRequester: it.IncludeSelf,
		Participants:     emails,
		Range:            rng,
		MinDuration:      minDur,
	})
	if err != nil {
		return Result{}, err
	}
	if res.Free == nil {
		res.Free = []interval.Interval{}
	}
	return success(KindFindOverlap, plural(len(res.Free), "shared window"), res, res.Partial), nil
}
