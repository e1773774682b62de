package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/interval"
)

const (
	dateLayout        = "2006-01-02"
	transparencyFree  = "transparent"
	maxResultsPerPage = 250
)

// Google is the Client backed by the Google Calendar v3 API, authorizing each
// call with the user's stored OAuth token.
type Google struct {
	oauth  *oauth2.Config
	tokens TokenStore
	opts   []option.ClientOption
}

// NewGoogle builds the client. Extra options are appended to every service,
// which lets tests point the client at a local endpoint.
func NewGoogle(cfg *oauth2.Config, tokens TokenStore, opts ...option.ClientOption) *Google {
	return &Google{oauth: cfg, tokens: tokens, opts: opts}
}

func (g *Google) service(ctx context.Context, userID string) (*calendar.Service, error) {
	tok, err := g.tokens.GetToken(ctx, userID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	var client *http.Client
	if g.oauth != nil {
		src := oauth2.ReuseTokenSource(tok, &savingTokenSource{
			ctx:    context.WithoutCancel(ctx),
			userID: userID,
			base:   g.oauth.TokenSource(context.WithoutCancel(ctx), tok),
			store:  g.tokens,
			last:   tok.AccessToken,
		})
		client = oauth2.NewClient(ctx, src)
	} else {
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, g.opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return srv, nil
}

func (g *Google) ListEvents(ctx context.Context, userID, calendarID string, rng interval.Interval) ([]Event, error) {
	return g.list(ctx, userID, calendarID, SearchQuery{Range: rng})
}

func (g *Google) SearchEvents(ctx context.Context, userID, calendarID string, q SearchQuery) ([]Event, error) {
	return g.list(ctx, userID, calendarID, q)
}

func (g *Google) list(ctx context.Context, userID, calendarID string, q SearchQuery) ([]Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	call := srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResultsPerPage).
		TimeMin(q.Range.Start.Format(time.RFC3339)).
		TimeMax(q.Range.End.Format(time.RFC3339))
	if q.Text != "" {
		call = call.Q(q.Text)
	}

	var out []Event
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			ev, err := convertEvent(calendarID, item)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to retrieve events: %w", err))
	}
	return out, nil
}

func (g *Google) GetEvent(ctx context.Context, userID, calendarID, eventID string) (*Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, err := srv.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get event: %w", err))
	}
	ev, err := convertEvent(calendarID, item)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (g *Google) CreateEvent(ctx context.Context, userID, calendarID string, draft EventDraft) (*Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	item := &calendar.Event{
		Summary:     draft.Summary,
		Description: draft.Description,
		Location:    draft.Location,
		Start:       &calendar.EventDateTime{DateTime: draft.Start.Format(time.RFC3339), TimeZone: draft.TimeZone},
		End:         &calendar.EventDateTime{DateTime: draft.End.Format(time.RFC3339), TimeZone: draft.TimeZone},
		Attendees:   toAttendees(draft.Attendees),
	}
	created, err := srv.Events.Insert(calendarID, item).Context(ctx).Do()
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to create event: %w", err))
	}
	ev, err := convertEvent(calendarID, created)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (g *Google) UpdateEvent(ctx context.Context, userID, calendarID, eventID string, changes EventChanges) (*Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	patch := &calendar.Event{}
	if changes.Summary != nil {
		patch.Summary = *changes.Summary
		patch.ForceSendFields = append(patch.ForceSendFields, "Summary")
	}
	if changes.Description != nil {
		patch.Description = *changes.Description
		patch.ForceSendFields = append(patch.ForceSendFields, "Description")
	}
	if changes.Location != nil {
		patch.Location = *changes.Location
		patch.ForceSendFields = append(patch.ForceSendFields, "Location")
	}
	if changes.Start != nil {
		patch.Start = &calendar.EventDateTime{DateTime: changes.Start.Format(time.RFC3339)}
	}
	if changes.End != nil {
		patch.End = &calendar.EventDateTime{DateTime: changes.End.Format(time.RFC3339)}
	}
	if changes.Attendees != nil {
		patch.Attendees = toAttendees(changes.Attendees)
	}

	updated, err := srv.Events.Patch(calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to update event: %w", err))
	}
	ev, err := convertEvent(calendarID, updated)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (g *Google) DeleteEvent(ctx context.Context, userID, calendarID, eventID string) error {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return mapError(fmt.Errorf("failed to delete event: %w", err))
	}
	return nil
}

func (g *Google) ListCalendars(ctx context.Context, userID string) ([]CalendarInfo, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []CalendarInfo
	err = srv.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			out = append(out, CalendarInfo{
				ID:         item.Id,
				Summary:    item.Summary,
				AccessRole: item.AccessRole,
				Primary:    item.Primary,
				Hidden:     item.Hidden,
			})
		}
		return nil
	})
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to retrieve calendars: %w", err))
	}
	return out, nil
}

// convertEvent keeps the provider's view intact: cancelled and transparent
// events are reported, and the caller decides whether they occupy time.
// A timestamp that does not parse is an error.
func convertEvent(calendarID string, item *calendar.Event) (Event, error) {
	ev := Event{
		ID:          item.Id,
		CalendarID:  calendarID,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
		Transparent: item.Transparency == transparencyFree,
	}

	if item.Start != nil {
		if item.Start.DateTime != "" {
			t, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("event %s: start: %w", item.Id, err)
			}
			ev.Start = t
		} else if item.Start.Date != "" {
			ev.AllDay = true
			ev.StartDate = item.Start.Date
		}
	}
	if item.End != nil {
		if item.End.DateTime != "" {
			t, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("event %s: end: %w", item.Id, err)
			}
			ev.End = t
		} else if item.End.Date != "" {
			ev.EndDate = item.End.Date
		}
	}

	for _, a := range item.Attendees {
		if a.Email != "" && !a.Self {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	return ev, nil
}

func toAttendees(emails []string) []*calendar.EventAttendee {
	if len(emails) == 0 {
		return nil
	}
	out := make([]*calendar.EventAttendee, len(emails))
	for i, e := range emails {
		out[i] = &calendar.EventAttendee{Email: e}
	}
	return out
}

func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: %v", ErrEventNotFound, err)
		}
	}
	return err
}

// RoleFromGoogle maps a Google access role onto the account model.
// freeBusyReader only exposes busy blocks, which is still enough for overlay.
func RoleFromGoogle(role string) account.AccessRole {
	switch role {
	case "owner":
		return account.RoleOwner
	case "writer":
		return account.RoleWriter
	default:
		return account.RoleReader
	}
}

var _ Client = (*Google)(nil)

// ParseDate reads an all-day event's civil date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, loc)
}
