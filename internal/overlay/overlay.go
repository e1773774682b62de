// Package overlay flattens every calendar a user has linked into one busy
// timeline.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/provider"
)

// Purpose selects which calendars take part in the overlay.
type Purpose int

const (
	// PurposeAvailability answers "when am I free": every visible calendar counts.
	PurposeAvailability Purpose = iota
	// PurposeMutation checks conflicts for a create or move.
	PurposeMutation
)

func (p Purpose) String() string {
	if p == PurposeMutation {
		return "mutation"
	}
	return "availability"
}

const (
	defaultConcurrency = 4
	defaultCallTimeout = 10 * time.Second
)

// Policy tunes source selection and fan-out.
type Policy struct {
	// ReaderCalendarsBlockMutations makes read-only calendars count as
	// conflicts when creating or moving events.
	ReaderCalendarsBlockMutations bool
	// Concurrency bounds simultaneous provider calls per overlay.
	Concurrency int
	// CallTimeout bounds each provider call.
	CallTimeout time.Duration
}

// BusyEvent is one event occupying time, clipped to the query range.
type BusyEvent struct {
	SourceCalendarID string            `json:"source_calendar_id"`
	EventID          string            `json:"event_id"`
	Summary          string            `json:"summary,omitempty"`
	Interval         interval.Interval `json:"interval"`
}

// Failure records a calendar that could not be read, or one event on it
// whose times could not be interpreted.
type Failure struct {
	CalendarID string `json:"calendar_id"`
	EventID    string `json:"event_id,omitempty"`
	Reason     string `json:"reason"`
}

type Request struct {
	// UserID is the account whose credentials read the calendars.
	UserID   string
	Range    interval.Interval
	Location *time.Location
	Purpose  Purpose
	// Sources, when non-nil, replaces the user's linked calendars.
	Sources []account.CalendarSource
}

type Result struct {
	Busy     []BusyEvent         `json:"busy"`
	Merged   []interval.Interval `json:"merged"`
	Partial  bool                `json:"partial"`
	Failures []Failure           `json:"failures,omitempty"`
}

type Overlay struct {
	accounts account.Reader
	client   provider.Client
	policy   Policy
	logger   *slog.Logger
}

func New(accounts account.Reader, client provider.Client, policy Policy, logger *slog.Logger) *Overlay {
	if policy.Concurrency <= 0 {
		policy.Concurrency = defaultConcurrency
	}
	if policy.CallTimeout <= 0 {
		policy.CallTimeout = defaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{accounts: accounts, client: client, policy: policy, logger: logger}
}

// Sources returns the user's calendars that take part for purpose.
func (o *Overlay) Sources(ctx context.Context, userID string, purpose Purpose) ([]account.CalendarSource, error) {
	all, err := o.accounts.ListCalendarSources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list calendar sources: %w", err)
	}
	return o.filter(all, purpose), nil
}

func (o *Overlay) filter(all []account.CalendarSource, purpose Purpose) []account.CalendarSource {
	out := make([]account.CalendarSource, 0, len(all))
	for _, s := range all {
		if s.IsHidden {
			continue
		}
		if purpose == PurposeMutation && !s.AccessRole.CanWrite() && !o.policy.ReaderCalendarsBlockMutations {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Busy reads every participating calendar over req.Range and returns the
// busy events plus their merged union. A calendar that fails is reported in
// Failures and the result is marked partial; if every calendar fails the
// call fails.
func (o *Overlay) Busy(ctx context.Context, req Request) (*Result, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, errs.Malformed("range", err.Error())
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	sources := req.Sources
	if sources == nil {
		var err error
		if sources, err = o.Sources(ctx, req.UserID, req.Purpose); err != nil {
			return nil, err
		}
	} else {
		sources = o.filter(sources, req.Purpose)
	}
	if len(sources) == 0 {
		return &Result{}, nil
	}

	type fetched struct {
		events []provider.Event
		err    error
	}
	results := make([]fetched, len(sources))

	var g errgroup.Group
	g.SetLimit(o.policy.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, o.policy.CallTimeout)
			defer cancel()
			events, err := o.client.ListEvents(callCtx, req.UserID, src.CalendarID, req.Range)
			results[i] = fetched{events: events, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	var failed []error
	for i, r := range results {
		calID := sources[i].CalendarID
		if r.err != nil {
			o.logger.Warn("calendar fetch failed",
				"user_id", req.UserID, "calendar_id", calID, "purpose", req.Purpose.String(), "error", r.err)
			failed = append(failed, fmt.Errorf("%s: %w", calID, r.err))
			res.Failures = append(res.Failures, Failure{CalendarID: calID, Reason: r.err.Error()})
			continue
		}
		for _, ev := range r.events {
			iv, ok, err := busyInterval(ev, loc, req.Range)
			if err != nil {
				o.logger.Warn("malformed event",
					"user_id", req.UserID, "calendar_id", calID, "event_id", ev.ID, "error", err)
				res.Failures = append(res.Failures, Failure{CalendarID: calID, EventID: ev.ID, Reason: err.Error()})
				res.Partial = true
				continue
			}
			if !ok {
				continue
			}
			res.Busy = append(res.Busy, BusyEvent{
				SourceCalendarID: calID,
				EventID:          ev.ID,
				Summary:          ev.Summary,
				Interval:         iv,
			})
		}
	}

	if len(failed) == len(sources) {
		return nil, &errs.UpstreamError{Op: "list events", Err: errors.Join(failed...)}
	}
	res.Partial = res.Partial || len(failed) > 0

	slices.SortFunc(res.Busy, func(a, b BusyEvent) int {
		if c := a.Interval.Start.Compare(b.Interval.Start); c != 0 {
			return c
		}
		if c := a.Interval.End.Compare(b.Interval.End); c != 0 {
			return c
		}
		return strings.Compare(a.SourceCalendarID, b.SourceCalendarID)
	})

	blocks := make([]interval.Interval, len(res.Busy))
	for i, b := range res.Busy {
		blocks[i] = b.Interval
	}
	merged, err := interval.Merge(blocks)
	if err != nil {
		return nil, err
	}
	res.Merged = merged

	o.logger.Debug("overlay built",
		"user_id", req.UserID, "calendars", len(sources), "busy", len(res.Busy), "partial", res.Partial)
	return res, nil
}

// busyInterval turns a provider event into the time it occupies inside rng.
// Cancelled, transparent and zero-length events occupy nothing. All-day
// events span midnight to midnight in loc. Times that cannot be read, or an
// end before the start, are an error.
func busyInterval(ev provider.Event, loc *time.Location, rng interval.Interval) (interval.Interval, bool, error) {
	if ev.Status == provider.StatusCancelled || ev.Transparent {
		return interval.Interval{}, false, nil
	}

	iv := interval.Interval{Start: ev.Start, End: ev.End}
	if ev.AllDay {
		start, err := provider.ParseDate(ev.StartDate, loc)
		if err != nil {
			return interval.Interval{}, false, fmt.Errorf("all-day start %q: %w", ev.StartDate, err)
		}
		y, m, d := start.Date()
		end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		if ev.EndDate != "" {
			if end, err = provider.ParseDate(ev.EndDate, loc); err != nil {
				return interval.Interval{}, false, fmt.Errorf("all-day end %q: %w", ev.EndDate, err)
			}
		}
		if end.Equal(start) {
			end = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		}
		iv = interval.Interval{Start: start, End: end}
	} else if iv.Start.IsZero() || iv.End.IsZero() {
		return interval.Interval{}, false, errors.New("event has no start or end time")
	}

	if iv.Start.Equal(iv.End) {
		return interval.Interval{}, false, nil
	}
	if err := iv.Validate(); err != nil {
		return interval.Interval{}, false, err
	}
	iv, ok := iv.Clip(rng)
	return iv, ok, nil
}
