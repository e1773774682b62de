// Package dispatch routes a classified intent to the scheduling engine and
// wraps every outcome, including every failure, in a Result.
package dispatch

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
	"calendar-assistant/internal/attendee"
	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/overlap"
	"calendar-assistant/internal/overlay"
	"calendar-assistant/internal/provider"
	"calendar-assistant/internal/reltime"
)

// Request is what the classifier produced.
type Request struct {
	Intent     string         `json:"intent"`
	Parameters map[string]any `json:"parameters"`
}

// UserContext identifies the caller and their clock.
type UserContext struct {
	UserID   string
	Timezone string
	// Now is the reference instant for relative times. Zero means the
	// dispatcher's clock.
	Now time.Time
}

type (
	AvailabilityResolver interface {
		Resolve(ctx context.Context, req availability.Request) (*availability.Result, error)
	}
	OverlapResolver interface {
		Resolve(ctx context.Context, req overlap.Request) (*overlap.Result, error)
	}
	Busier interface {
		Busy(ctx context.Context, req overlay.Request) (*overlay.Result, error)
	}
)

const (
	defaultSearchHorizon     = 30 * 24 * time.Hour
	defaultSearchConcurrency = 4
	defaultProviderTimeout   = 10 * time.Second
)

type Options struct {
	// DefaultMinDuration applies when an availability intent names none.
	DefaultMinDuration time.Duration
	// SearchHorizon bounds a search that names no date, starting today.
	SearchHorizon     time.Duration
	SearchConcurrency int
	ProviderTimeout   time.Duration
	Time              reltime.Options
}

type Config struct {
	Accounts     account.Reader
	Overlay      Busier
	Availability AvailabilityResolver
	Overlap      OverlapResolver
	// Provider executes mutations and serves show/search. When nil,
	// mutations are planned and returned without being executed.
	Provider provider.Client
	Options  Options
	Logger   *slog.Logger
	Clock    func() time.Time
}

type Dispatcher struct {
	accounts account.Reader
	overlay  Busier
	avail    AvailabilityResolver
	overlap  OverlapResolver
	provider provider.Client
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) *Dispatcher {
	opts := cfg.Options
	if opts.SearchHorizon <= 0 {
		opts.SearchHorizon = defaultSearchHorizon
	}
	if opts.SearchConcurrency <= 0 {
		opts.SearchConcurrency = defaultSearchConcurrency
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		accounts: cfg.Accounts,
		overlay:  cfg.Overlay,
		avail:    cfg.Availability,
		overlap:  cfg.Overlap,
		provider: cfg.Provider,
		opts:     opts,
		logger:   logger,
		now:      now,
	}
}

// call carries what every handler needs about the caller.
type call struct {
	user UserContext
	loc  *time.Location
	now  time.Time
}

// Dispatch validates req, runs it and reports the outcome. It never returns
// an error: failures are Results with StatusFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, uc UserContext) Result {
	log := d.logger.With("intent", req.Intent, "user_id", uc.UserID)
	log.Debug("dispatch", "state", StateReceived)

	kind, _ := ParseKind(req.Intent)
	intent, err := Parse(req.Intent, req.Parameters)
	if err != nil {
		return d.finish(log, fromError(kind, err))
	}
	if uc.UserID == "" {
		return d.finish(log, fromError(kind, errs.Missing("user_id")))
	}
	loc, err := availability.LoadLocation(uc.Timezone)
	if err != nil {
		return d.finish(log, fromError(kind, err))
	}
	c := call{user: uc, loc: loc, now: uc.Now}
	if c.now.IsZero() {
		c.now = d.now()
	}
	log.Debug("dispatch", "state", StateValidated)

	var res Result
	switch it := intent.(type) {
	case ShowEvent:
		res, err = d.showEvent(ctx, c, it)
	case ShowSchedule:
		res, err = d.showSchedule(ctx, c, it)
	case CreateEvent:
		res, err = d.createEvent(ctx, c, it)
	case UpdateEvent:
		res, err = d.updateEvent(ctx, c, it)
	case DeleteEvent:
		res, err = d.deleteEvent(ctx, c, it)
	case SearchEvents:
		res, err = d.searchEvents(ctx, c, it)
	case CheckAvailability:
		res, err = d.checkAvailability(ctx, c, it)
	case FindOverlap:
		res, err = d.findOverlap(ctx, c, it)
	case NoAction:
		res = success(KindNoAction, it.Reply, nil, false)
	default:
		err = &errs.UnsupportedIntentError{Intent: string(intent.Kind())}
	}
	if err != nil {
		return d.finish(log, fromError(intent.Kind(), err))
	}
	log.Debug("dispatch", "state", StateExecuted)
	return d.finish(log, res)
}

func (d *Dispatcher) finish(log *slog.Logger, res Result) Result {
	switch res.Status {
	case StatusFailed:
		level := slog.LevelInfo
		if res.Reason == errs.KindInternal || res.Reason == errs.KindUpstream {
			level = slog.LevelWarn
		}
		log.Log(context.Background(), level, "dispatch failed",
			"state", res.State, "reason", res.Reason, "field", res.Field, "error", res.Message)
	default:
		log.Debug("dispatch", "state", res.State, "status", res.Status, "partial", res.Partial)
	}
	return res
}

func (d *Dispatcher) resolveRange(c call, token string) (interval.Interval, error) {
	rng, err := reltime.ResolveRange(token, c.loc, c.now, d.opts.Time)
	if err != nil {
		return interval.Interval{}, relabel(err, "date")
	}
	return rng, nil
}

func (d *Dispatcher) resolveInstant(c call, expr, field string) (time.Time, error) {
	t, err := reltime.ResolveInstant(expr, c.loc, c.now, d.opts.Time)
	if err != nil {
		return time.Time{}, relabel(err, field)
	}
	return t, nil
}

func (d *Dispatcher) resolveAttendees(ctx context.Context, c call, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	contacts, err := d.accounts.ListContacts(ctx, c.user.UserID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	matches, err := attendee.ResolveAll(names, contacts)
	if err != nil {
		return nil, relabel(err, "attendees")
	}
	emails := make([]string, len(matches))
	for i, m := range matches {
		emails[i] = m.Contact.Email
	}
	return emails, nil
}

func (d *Dispatcher) needProvider() error {
	if d.provider == nil {
		return errors.New("calendar provider is not configured")
	}
	return nil
}

func (d *Dispatcher) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.opts.ProviderTimeout)
}

// upstream wraps a provider error, keeping cancellation and not-found
// distinguishable.
func upstream(op string, err error, eventID string) error {
	switch {
	case errors.Is(err, provider.ErrEventNotFound):
		return &errs.NotFoundError{Kind: "event", Name: eventID}
	case errors.Is(err, context.Canceled):
		return err
	}
	return &errs.UpstreamError{Op: op, Err: err}
}

// visibleSources lists calendars the user sees, primary first.
func (d *Dispatcher) visibleSources(ctx context.Context, userID string) ([]account.CalendarSource, error) {
	all, err := d.accounts.ListCalendarSources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list calendar sources: %w", err)
	}
	out := make([]account.CalendarSource, 0, len(all))
	for _, s := range all {
		if !s.IsHidden {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b account.CalendarSource) int {
		switch {
		case a.IsPrimary == b.IsPrimary:
			return 0
		case a.IsPrimary:
			return -1
		}
		return 1
	})
	return out, nil
}

// targetCalendar picks the calendar a mutation writes to: the named one,
// which must be writable, or the first writable calendar, primary first.
func (d *Dispatcher) targetCalendar(ctx context.Context, userID, calendarID string) (account.CalendarSource, error) {
	sources, err := d.visibleSources(ctx, userID)
	if err != nil {
		return account.CalendarSource{}, err
	}
	if calendarID != "" {
		for _, s := range sources {
			if s.CalendarID != calendarID {
				continue
			}
			if !s.Writable() {
				return account.CalendarSource{}, errs.Malformed("calendar_id",
					fmt.Sprintf("calendar %q is read-only", calendarID))
			}
			return s, nil
		}
		return account.CalendarSource{}, &errs.NotFoundError{Kind: "calendar", Name: calendarID}
	}
	for _, s := range sources {
		if s.Writable() {
			return s, nil
		}
	}
	return account.CalendarSource{}, errs.Malformed("calendar_id", "no writable calendar is linked")
}

// conflicts lists busy events overlapping span on calendars that count for
// mutations, ignoring the event being moved.
func (d *Dispatcher) conflicts(ctx context.Context, c call, span interval.Interval, skipEventID string) ([]overlay.BusyEvent, bool, error) {
	res, err := d.overlay.Busy(ctx, overlay.Request{
		UserID:   c.user.UserID,
		Range:    span,
		Location: c.loc,
		Purpose:  overlay.PurposeMutation,
	})
	if err != nil {
		return nil, false, err
	}
	out := make([]overlay.BusyEvent, 0, len(res.Busy))
	for _, b := range res.Busy {
		if skipEventID != "" && b.EventID == skipEventID {
			continue
		}
		out = append(out, b)
	}
	return out, res.Partial, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func joinEmails(emails []string) string {
	if len(emails) == 0 {
		return "nobody"
	}
	return strings.Join(emails, ", ")
}

// searchAll runs SearchEvents on every visible calendar. Failed calendars
// mark the result partial; if all fail the search fails.
func (d *Dispatcher) searchAll(ctx context.Context, userID string, sources []account.CalendarSource, q provider.SearchQuery) ([]provider.Event, bool, error) {
	results := make([][]provider.Event, len(sources))
	failures := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(d.opts.SearchConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			callCtx, cancel := d.providerCtx(ctx)
			defer cancel()
			results[i], failures[i] = d.provider.SearchEvents(callCtx, userID, src.CalendarID, q)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var events []provider.Event
	var failed []error
	for i, err := range failures {
		if err != nil {
			d.logger.Warn("calendar search failed", "user_id", userID, "calendar_id", sources[i].CalendarID, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", sources[i].CalendarID, err))
			continue
		}
		events = append(events, results[i]...)
	}
	if len(sources) > 0 && len(failed) == len(sources) {
		return nil, false, &errs.UpstreamError{Op: "search events", Err: errors.Join(failed...)}
	}
	return events, len(failed) > 0, nil
}
