package app

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/provider"
)

const (
	stateTTL            = 10 * time.Minute
	defaultEventsWindow = 7 * 24 * time.Hour
)

// oauthStates remembers which user started each OAuth flow. States are
// single use.
type oauthStates struct {
	mu      sync.Mutex
	pending map[string]pendingState
}

type pendingState struct {
	userID  string
	expires time.Time
}

func (s *oauthStates) issue(userID string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[string]pendingState)
	}
	for k, p := range s.pending {
		if now.After(p.expires) {
			delete(s.pending, k)
		}
	}
	state := uuid.NewString()
	s.pending[state] = pendingState{userID: userID, expires: now.Add(stateTTL)}
	return state
}

func (s *oauthStates) take(state string, now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[state]
	if !ok {
		return "", false
	}
	delete(s.pending, state)
	if now.After(p.expires) {
		return "", false
	}
	return p.userID, true
}

// GoogleAuthHandler initiates OAuth2 flow
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}
	state := a.states.issue(UserID(c), a.now())
	url := a.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// GoogleOAuth2CallbackHandler stores the user's token and links their
// calendars.
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	userID, ok := a.states.take(c.Query("state"), a.now())
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or expired state"})
		return
	}

	ctx := c.Request.Context()
	token, err := a.OAuth.Exchange(ctx, code)
	if err != nil {
		a.logger().Warn("oauth exchange failed", "user_id", userID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}
	if err := a.Store.SaveToken(ctx, userID, token); err != nil {
		a.fail(c, err)
		return
	}

	resp := gin.H{"message": "Authorization successful"}
	sources, err := a.syncCalendars(ctx, userID)
	if err != nil {
		// The token is saved; the client can retry the sync on its own.
		a.logger().Warn("calendar sync after link failed", "user_id", userID, "error", err)
		resp["sync_error"] = err.Error()
	} else {
		resp["calendars"] = len(sources)
	}
	c.JSON(http.StatusOK, resp)
}

// syncCalendars replaces the user's linked calendars with the provider's
// current calendar list.
func (a *App) syncCalendars(ctx context.Context, userID string) ([]account.CalendarSource, error) {
	calendars, err := a.Provider.ListCalendars(ctx, userID)
	if err != nil {
		return nil, &errs.UpstreamError{Op: "list calendars", Err: err}
	}
	sources := make([]account.CalendarSource, 0, len(calendars))
	for _, cal := range calendars {
		// Google names the primary calendar after the account's address,
		// which is how other users find this one for overlap.
		if cal.Primary && strings.Contains(cal.ID, "@") {
			if err := a.Store.UpsertUser(ctx, account.User{ID: userID, Email: cal.ID}); err != nil {
				return nil, err
			}
		}
		sources = append(sources, account.CalendarSource{
			CalendarID:  cal.ID,
			OwnerUserID: userID,
			Summary:     cal.Summary,
			IsHidden:    cal.Hidden,
			AccessRole:  provider.RoleFromGoogle(cal.AccessRole),
			IsPrimary:   cal.Primary,
		})
	}
	if err := a.Store.ReplaceCalendarSources(ctx, userID, sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// POST /calendar/sync
func (a *App) SyncCalendarsHandler(c *gin.Context) {
	sources, err := a.syncCalendars(c.Request.Context(), UserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calendars": sources,
		"count":     len(sources),
	})
}

// GET /calendar/events?calendar_id=&time_min=RFC3339&time_max=RFC3339
// Defaults to the primary calendar over the next week.
func (a *App) GetCalendarEventsHandler(c *gin.Context) {
	calendarID := c.DefaultQuery("calendar_id", "primary")

	rng := interval.Interval{Start: a.now(), End: a.now().Add(defaultEventsWindow)}
	if s := c.Query("time_min"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			a.fail(c, errs.Malformed("time_min", "invalid time_min"))
			return
		}
		rng.Start = t
		rng.End = t.Add(defaultEventsWindow)
	}
	if s := c.Query("time_max"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			a.fail(c, errs.Malformed("time_max", "invalid time_max"))
			return
		}
		rng.End = t
	}
	if err := rng.Validate(); err != nil {
		a.fail(c, errs.Malformed("time_max", "time_max must be after time_min"))
		return
	}

	events, err := a.Provider.ListEvents(c.Request.Context(), UserID(c), calendarID, rng)
	if err != nil {
		a.fail(c, &errs.UpstreamError{Op: "list events", Err: err})
		return
	}
	if events == nil {
		events = []provider.Event{}
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GET /calendar/calendars
func (a *App) GetCalendarListHandler(c *gin.Context) {
	calendars, err := a.Provider.ListCalendars(c.Request.Context(), UserID(c))
	if err != nil {
		a.fail(c, &errs.UpstreamError{Op: "list calendars", Err: err})
		return
	}
	if calendars == nil {
		calendars = []provider.CalendarInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"calendars": calendars,
		"count":     len(calendars),
	})
}
