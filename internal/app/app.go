// Package app is the HTTP API: calendar linking, availability preferences,
// free-time queries and the assistant endpoints.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/classifier"
	"calendar-assistant/internal/dispatch"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/overlap"
	"calendar-assistant/internal/provider"
	"calendar-assistant/internal/reltime"
)

type App struct {
	Store        account.Store
	Provider     provider.Client
	Availability *availability.Resolver
	Overlap      *overlap.Resolver
	Dispatcher   *dispatch.Dispatcher
	// Classifier is optional; without it /api/assistant answers 503.
	Classifier classifier.Classifier
	// OAuth is nil when Google linking is not configured.
	OAuth  *oauth2.Config
	Time   reltime.Options
	Logger *slog.Logger
	Clock  func() time.Time

	states oauthStates
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *App) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock()
}

// NewRouter mounts every route. auth guards everything under /api.
func NewRouter(a *App, auth gin.HandlerFunc) *gin.Engine {
	useWireNames()
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(a.logger()))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := router.Group("/api", auth)
	{
		users := api.Group("/users/:id", RequireSelf())
		{
			users.GET("/availability/template", a.GetTemplateHandler)
			users.PUT("/availability/template", a.SetTemplateHandler)
			users.GET("/availability", a.GetAvailabilityHandler)
			users.GET("/slots", a.GetSlotsHandler)
			users.GET("/contacts", a.ListContactsHandler)
			users.POST("/contacts", a.AddContactHandler)
		}
		api.POST("/overlap", a.OverlapHandler)
		api.POST("/dispatch", a.DispatchHandler)
		api.POST("/assistant", a.AssistantHandler)

		calendar := api.Group("/calendar")
		{
			calendar.GET("/auth", a.GoogleAuthHandler)
			calendar.POST("/sync", a.SyncCalendarsHandler)
			calendar.GET("/events", a.GetCalendarEventsHandler)
			calendar.GET("/calendars", a.GetCalendarListHandler)
		}
	}
	return router
}

// statusFor maps an engine error kind onto an HTTP status.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindUnsupportedIntent:
		return http.StatusBadRequest
	case errs.KindAmbiguity:
		return http.StatusConflict
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindUpstream:
		return http.StatusBadGateway
	case errs.KindCanceled:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *App) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, provider.ErrNotLinked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	kind := errs.KindOf(err)
	body := gin.H{"error": err.Error(), "reason": kind}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	var ae *errs.AmbiguityError
	if errors.As(err, &ae) {
		body["field"] = ae.Field
		body["options"] = ae.Options
	}
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		a.logger().Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

// timezone picks the zone for a request: the explicit one, else the zone of
// the stored template, else UTC.
func (a *App) timezone(ctx context.Context, userID, explicit string) (string, error) {
	if explicit != "" {
		if _, err := availability.LoadLocation(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	tpl, err := a.Store.GetAvailabilityTemplate(ctx, userID)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return "UTC", nil
	case err != nil:
		return "", err
	case tpl.Timezone == "":
		return "UTC", nil
	}
	return tpl.Timezone, nil
}
