package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/attendee"
	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/dispatch"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/overlap"
	"calendar-assistant/internal/overlay"
	"calendar-assistant/internal/reltime"
)

const defaultSlotLength = 30 * time.Minute

// GET /users/:id/availability/template?tz=Zone
// Without a stored template the all-day default in tz is returned.
func (a *App) GetTemplateHandler(c *gin.Context) {
	userID := c.Param("id")
	tz, err := a.timezone(c.Request.Context(), userID, c.Query("tz"))
	if err != nil {
		a.fail(c, err)
		return
	}
	tpl, err := a.Availability.Template(c.Request.Context(), userID, tz)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTemplateDTO(tpl))
}

// PUT /users/:id/availability/template
func (a *App) SetTemplateHandler(c *gin.Context) {
	userID := c.Param("id")
	var payload TemplateDTO
	if !a.bindJSON(c, &payload) {
		return
	}
	tpl, err := payload.template()
	if err != nil {
		a.fail(c, err)
		return
	}
	tpl.UpdatedAt = a.now().UTC()
	if err := a.Store.SetAvailabilityTemplate(c.Request.Context(), userID, tpl); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTemplateDTO(tpl))
}

// resolveRange turns a RangeQuery into an interval in the caller's zone.
func (a *App) resolveRange(c *gin.Context, userID string, q RangeQuery) (interval.Interval, string, error) {
	tz, err := a.timezone(c.Request.Context(), userID, q.Timezone)
	if err != nil {
		return interval.Interval{}, "", err
	}
	loc, err := availability.LoadLocation(tz)
	if err != nil {
		return interval.Interval{}, "", err
	}

	if q.Date != "" {
		rng, err := reltime.ResolveRange(q.Date, loc, a.now(), a.Time)
		return rng, tz, err
	}
	if q.From == "" || q.To == "" {
		return interval.Interval{}, "", errs.Malformed("range", "from and to (RFC3339) or date required")
	}
	from, err := time.Parse(time.RFC3339, q.From)
	if err != nil {
		return interval.Interval{}, "", errs.Malformed("from", "invalid from")
	}
	to, err := time.Parse(time.RFC3339, q.To)
	if err != nil {
		return interval.Interval{}, "", errs.Malformed("to", "invalid to")
	}
	rng, err := interval.New(from, to)
	if err != nil {
		return interval.Interval{}, "", errs.Malformed("to", "from must be before to")
	}
	return rng, tz, nil
}

// GET /users/:id/availability?from=ISO&to=ISO or ?date=tomorrow
func (a *App) GetAvailabilityHandler(c *gin.Context) {
	userID := c.Param("id")
	var q RangeQuery
	if !a.bindQuery(c, &q) {
		return
	}
	rng, tz, err := a.resolveRange(c, userID, q)
	if err != nil {
		a.fail(c, err)
		return
	}
	res, err := a.Availability.Resolve(c.Request.Context(), availability.Request{
		UserID:      userID,
		Range:       rng,
		MinDuration: time.Duration(q.MinDuration) * time.Minute,
		Purpose:     overlay.PurposeAvailability,
		Timezone:    tz,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	if res.Free == nil {
		res.Free = []interval.Interval{}
	}
	c.JSON(http.StatusOK, gin.H{"range": rng, "availability": res})
}

// GET /users/:id/slots?from=ISO&to=ISO&length=30
func (a *App) GetSlotsHandler(c *gin.Context) {
	userID := c.Param("id")
	var q SlotsQuery
	if !a.bindQuery(c, &q) {
		return
	}
	length := defaultSlotLength
	if q.Length != nil {
		length = time.Duration(*q.Length) * time.Minute
	}
	rng, tz, err := a.resolveRange(c, userID, q.RangeQuery)
	if err != nil {
		a.fail(c, err)
		return
	}
	res, err := a.Availability.Resolve(c.Request.Context(), availability.Request{
		UserID:   userID,
		Range:    rng,
		Purpose:  overlay.PurposeAvailability,
		Timezone: tz,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	slots, err := availability.Slots(res.Free, length)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots, "partial": res.Partial})
}

// POST /overlap
func (a *App) OverlapHandler(c *gin.Context) {
	userID := UserID(c)
	var req OverlapRequest
	if !a.bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	rng, tz, err := a.resolveRange(c, userID, req.RangeQuery)
	if err != nil {
		a.fail(c, err)
		return
	}
	contacts, err := a.Store.ListContacts(ctx, userID)
	if err != nil {
		a.fail(c, err)
		return
	}
	matches, err := attendee.ResolveAll(req.Participants, contacts)
	if err != nil {
		a.fail(c, err)
		return
	}
	emails := make([]string, len(matches))
	for i, m := range matches {
		emails[i] = m.Contact.Email
	}

	includeSelf := true
	if req.IncludeSelf != nil {
		includeSelf = *req.IncludeSelf
	}
	res, err := a.Overlap.Resolve(ctx, overlap.Request{
		RequesterID:      userID,
		Timezone:         tz,
		IncludeRequester: includeSelf,
		Participants:     emails,
		Range:            rng,
		MinDuration:      time.Duration(req.MinDuration) * time.Minute,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	if res.Free == nil {
		res.Free = []interval.Interval{}
	}
	c.JSON(http.StatusOK, res)
}

// respond writes a dispatch result. Failures carry the status of their
// reason; successes and clarifications are 200.
func respond(c *gin.Context, res dispatch.Result, extra gin.H) {
	status := http.StatusOK
	if res.Status == dispatch.StatusFailed {
		status = statusFor(res.Reason)
	}
	if extra == nil {
		c.JSON(status, res)
		return
	}
	extra["result"] = res
	c.JSON(status, extra)
}

// POST /dispatch
func (a *App) DispatchHandler(c *gin.Context) {
	userID := UserID(c)
	var req DispatchRequest
	if !a.bindJSON(c, &req) {
		return
	}
	tz, err := a.timezone(c.Request.Context(), userID, req.Timezone)
	if err != nil {
		a.fail(c, err)
		return
	}
	res := a.Dispatcher.Dispatch(c.Request.Context(),
		dispatch.Request{Intent: req.Intent, Parameters: req.Parameters},
		dispatch.UserContext{UserID: userID, Timezone: tz, Now: a.now()})
	respond(c, res, nil)
}

// POST /assistant
func (a *App) AssistantHandler(c *gin.Context) {
	if a.Classifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant not configured"})
		return
	}
	userID := UserID(c)
	var req AssistantRequest
	if !a.bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	tz, err := a.timezone(ctx, userID, req.Timezone)
	if err != nil {
		a.fail(c, err)
		return
	}

	uc := dispatch.UserContext{UserID: userID, Timezone: tz, Now: a.now()}
	cls, err := a.Classifier.Classify(ctx, req.Text, uc.Now, uc)
	if err != nil {
		a.fail(c, err)
		return
	}
	res := a.Dispatcher.Dispatch(ctx, cls.Request(), uc)
	respond(c, res, gin.H{"classification": cls})
}

// GET /users/:id/contacts
func (a *App) ListContactsHandler(c *gin.Context) {
	contacts, err := a.Store.ListContacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if contacts == nil {
		contacts = []account.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

// POST /users/:id/contacts
func (a *App) AddContactHandler(c *gin.Context) {
	var req ContactRequest
	if !a.bindJSON(c, &req) {
		return
	}
	contact := account.Contact{
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       req.Email,
		CalendarID:  strings.TrimSpace(req.CalendarID),
	}
	if err := a.Store.AddContact(c.Request.Context(), c.Param("id"), contact); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}
