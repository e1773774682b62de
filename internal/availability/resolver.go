// Package availability turns a user's busy overlay and weekly template into
// free windows.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/overlay"
)

// Busier produces the merged busy overlay. *overlay.Overlay implements it.
type Busier interface {
	Busy(ctx context.Context, req overlay.Request) (*overlay.Result, error)
}

type Request struct {
	UserID      string
	Range       interval.Interval
	MinDuration time.Duration
	Purpose     overlay.Purpose
	// Timezone is used for the default template when the user has none stored.
	Timezone string
	// Template, when set, replaces the stored template.
	Template *account.AvailabilityTemplate
	// Sources, when non-nil, replaces the user's linked calendars.
	Sources []account.CalendarSource
}

type Result struct {
	Free     []interval.Interval `json:"free"`
	Busy     []overlay.BusyEvent `json:"busy"`
	Partial  bool                `json:"partial"`
	Failures []overlay.Failure   `json:"failures,omitempty"`
	Timezone string              `json:"timezone"`
}

type Resolver struct {
	accounts account.Reader
	busy     Busier
	logger   *slog.Logger
}

func NewResolver(accounts account.Reader, busy Busier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{accounts: accounts, busy: busy, logger: logger}
}

// Template returns the template that applies to userID: the stored one, or
// the all-day default in fallbackTZ.
func (r *Resolver) Template(ctx context.Context, userID, fallbackTZ string) (account.AvailabilityTemplate, error) {
	tpl, err := r.accounts.GetAvailabilityTemplate(ctx, userID)
	if errors.Is(err, account.ErrNotFound) {
		return account.DefaultTemplate(fallbackTZ), nil
	}
	if err != nil {
		return account.AvailabilityTemplate{}, fmt.Errorf("load availability template: %w", err)
	}
	return *tpl, nil
}

// Resolve returns the free windows of req.UserID inside req.Range: template
// windows minus busy time, without windows shorter than MinDuration. Windows
// are ascending and disjoint; per-day windows are never joined across
// midnight.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, errs.Malformed("range", err.Error())
	}

	var tpl account.AvailabilityTemplate
	if req.Template != nil {
		tpl = *req.Template
	} else {
		var err error
		if tpl, err = r.Template(ctx, req.UserID, req.Timezone); err != nil {
			return nil, err
		}
	}
	compiled, err := Compile(tpl)
	if err != nil {
		return nil, err
	}

	universe, err := compiled.Universe(req.Range)
	if err != nil {
		return nil, err
	}

	busy, err := r.busy.Busy(ctx, overlay.Request{
		UserID:   req.UserID,
		Range:    req.Range,
		Location: compiled.Location(),
		Purpose:  req.Purpose,
		Sources:  req.Sources,
	})
	if err != nil {
		return nil, err
	}

	free, err := interval.Subtract(universe, busy.Merged)
	if err != nil {
		return nil, err
	}
	free = interval.FilterMinDuration(free, req.MinDuration)

	r.logger.Debug("availability resolved",
		"user_id", req.UserID, "range", req.Range.String(), "windows", len(free), "partial", busy.Partial)

	return &Result{
		Free:     free,
		Busy:     busy.Busy,
		Partial:  busy.Partial,
		Failures: busy.Failures,
		Timezone: compiled.Location().String(),
	}, nil
}

// Slot is one bookable chunk of a free window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Slots chunks free windows into back-to-back slots of length. The tail of a
// window shorter than length is dropped.
func Slots(free []interval.Interval, length time.Duration) ([]Slot, error) {
	if length <= 0 {
		return nil, fmt.Errorf("slot length must be positive, got %s", length)
	}
	var out []Slot
	for _, w := range free {
		for s := w.Start; !s.Add(length).After(w.End); s = s.Add(length) {
			out = append(out, Slot{Start: s, End: s.Add(length)})
		}
	}
	return out, nil
}
