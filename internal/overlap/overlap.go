// Package overlap finds time when several people are free at once.
package overlap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
)

const defaultConcurrency = 4

// Availability resolves one person's free windows. *availability.Resolver
// implements it.
type Availability interface {
	Resolve(ctx context.Context, req availability.Request) (*availability.Result, error)
}

// ParticipantError names the participant whose availability could not be
// computed. It unwraps to the cause.
type ParticipantError struct {
	Participant string
	Err         error
}

func (e *ParticipantError) Error() string {
	return fmt.Sprintf("participant %s: %v", e.Participant, e.Err)
}

func (e *ParticipantError) Unwrap() error { return e.Err }

type Request struct {
	RequesterID string
	// Timezone is the requester's zone. External contacts are read in it.
	Timezone string
	// IncludeRequester adds the requester's own availability to the fold.
	IncludeRequester bool
	// Participants are attendee emails.
	Participants []string
	Range        interval.Interval
	MinDuration  time.Duration
}

// ParticipantFree is one participant's contribution to the fold.
type ParticipantFree struct {
	Participant string              `json:"participant"`
	Free        []interval.Interval `json:"free"`
	Partial     bool                `json:"partial"`
}

type Result struct {
	Free         []interval.Interval `json:"free"`
	Participants []ParticipantFree   `json:"participants"`
	Partial      bool                `json:"partial"`
}

type Resolver struct {
	accounts    account.Reader
	avail       Availability
	concurrency int
	logger      *slog.Logger
}

func NewResolver(accounts account.Reader, avail Availability, concurrency int, logger *slog.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{accounts: accounts, avail: avail, concurrency: concurrency, logger: logger}
}

// Resolve intersects the free windows of every participant. Availability is
// computed concurrently; the first failure cancels the rest and fails the
// request. MinDuration is applied once, after the last intersection.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, errs.Malformed("range", err.Error())
	}

	labels := dedupe(req.Participants)
	if req.IncludeRequester {
		labels = append([]string{req.RequesterID}, labels...)
	}
	if len(labels) == 0 {
		return nil, errs.Missing("attendees")
	}

	results := make([]*availability.Result, len(labels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, label := range labels {
		g.Go(func() error {
			preq, err := r.participant(gctx, req, label, req.IncludeRequester && i == 0)
			if err != nil {
				return &ParticipantError{Participant: label, Err: err}
			}
			res, err := r.avail.Resolve(gctx, preq)
			if err != nil {
				return &ParticipantError{Participant: label, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("overlap failed", "requester_id", req.RequesterID, "error", err)
		return nil, err
	}

	out := &Result{Participants: make([]ParticipantFree, len(labels))}
	acc := results[0].Free
	for i, res := range results {
		out.Participants[i] = ParticipantFree{Participant: labels[i], Free: res.Free, Partial: res.Partial}
		out.Partial = out.Partial || res.Partial
		if i == 0 {
			continue
		}
		next, err := interval.Intersect(acc, res.Free)
		if err != nil {
			return nil, fmt.Errorf("intersect %s: %w", labels[i], err)
		}
		acc = next
	}
	out.Free = interval.FilterMinDuration(acc, req.MinDuration)

	r.logger.Debug("overlap resolved",
		"requester_id", req.RequesterID, "participants", len(labels), "windows", len(out.Free))
	return out, nil
}

// participant decides whose calendars and template stand for label: the
// requester, a registered user, or an external contact whose shared calendar
// the requester can read.
func (r *Resolver) participant(ctx context.Context, req Request, label string, self bool) (availability.Request, error) {
	base := availability.Request{Range: req.Range, Timezone: req.Timezone}
	if self {
		base.UserID = req.RequesterID
		return base, nil
	}

	u, err := r.accounts.FindUserByEmail(ctx, label)
	switch {
	case err == nil:
		base.UserID = u.ID
		return base, nil
	case !errors.Is(err, account.ErrNotFound):
		return availability.Request{}, fmt.Errorf("find user: %w", err)
	}

	contacts, err := r.accounts.ListContacts(ctx, req.RequesterID)
	if err != nil {
		return availability.Request{}, fmt.Errorf("list contacts: %w", err)
	}
	for _, c := range contacts {
		if c.CalendarID == "" || !strings.EqualFold(c.Email, label) {
			continue
		}
		tpl := account.DefaultTemplate(req.Timezone)
		base.UserID = req.RequesterID
		base.Template = &tpl
		base.Sources = []account.CalendarSource{{
			CalendarID:  c.CalendarID,
			OwnerUserID: req.RequesterID,
			Summary:     c.DisplayName,
			AccessRole:  account.RoleReader,
		}}
		return base, nil
	}
	return availability.Request{}, &errs.NotFoundError{Kind: "participant", Name: label}
}

func dedupe(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
