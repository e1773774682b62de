package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"calendar-assistant/internal/interval"
)

// MockClient is an in-memory provider. It serves PROVIDER_DRIVER=memory and
// the tests; per-calendar failures and hangs can be injected.
type MockClient struct {
	mu        sync.Mutex
	events    map[string][]Event
	calendars map[string][]CalendarInfo
	failures  map[string]error
	blocking  map[string]bool
	nextID    int
	listCalls atomic.Int64
}

func NewMockClient() *MockClient {
	return &MockClient{
		events:    make(map[string][]Event),
		calendars: make(map[string][]CalendarInfo),
		failures:  make(map[string]error),
		blocking:  make(map[string]bool),
	}
}

// AddEvent stores ev on calendarID and returns it with its ID filled in.
func (m *MockClient) AddEvent(calendarID string, ev Event) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		m.nextID++
		ev.ID = fmt.Sprintf("evt-%d", m.nextID)
	}
	ev.CalendarID = calendarID
	m.events[calendarID] = append(m.events[calendarID], ev)
	return ev
}

// AddCalendar makes info visible to userID through ListCalendars.
func (m *MockClient) AddCalendar(userID string, info CalendarInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars[userID] = append(m.calendars[userID], info)
}

// FailCalendar makes every call touching calendarID return err.
func (m *MockClient) FailCalendar(calendarID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[calendarID] = err
}

// BlockCalendar makes list calls on calendarID wait until their context ends.
func (m *MockClient) BlockCalendar(calendarID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocking[calendarID] = true
}

// ListCalls reports how many list/search calls were served.
func (m *MockClient) ListCalls() int64 {
	return m.listCalls.Load()
}

func (m *MockClient) check(ctx context.Context, calendarID string) error {
	m.mu.Lock()
	err := m.failures[calendarID]
	block := m.blocking[calendarID]
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

func (m *MockClient) ListEvents(ctx context.Context, _ string, calendarID string, rng interval.Interval) ([]Event, error) {
	return m.SearchEvents(ctx, "", calendarID, SearchQuery{Range: rng})
}

func (m *MockClient) SearchEvents(ctx context.Context, _ string, calendarID string, q SearchQuery) ([]Event, error) {
	m.listCalls.Add(1)
	if err := m.check(ctx, calendarID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	text := strings.ToLower(q.Text)
	var out []Event
	for _, ev := range m.events[calendarID] {
		if !eventInRange(ev, q.Range) {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(ev.Summary+" "+ev.Description), text) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func eventInRange(ev Event, rng interval.Interval) bool {
	if rng.Start.IsZero() && rng.End.IsZero() {
		return true
	}
	if ev.AllDay {
		start, err := ParseDate(ev.StartDate, time.UTC)
		if err != nil {
			// Unreadable dates are the consumer's to report.
			return true
		}
		end, err := ParseDate(ev.EndDate, time.UTC)
		if err != nil {
			end = start.AddDate(0, 0, 1)
		}
		// Widen by a day on each side; the overlay clips in the user's zone.
		return start.AddDate(0, 0, -1).Before(rng.End) && rng.Start.Before(end.AddDate(0, 0, 1))
	}
	return ev.Start.Before(rng.End) && rng.Start.Before(ev.End)
}

func (m *MockClient) GetEvent(ctx context.Context, _ string, calendarID, eventID string) (*Event, error) {
	if err := m.check(ctx, calendarID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events[calendarID] {
		if ev.ID == eventID {
			return &ev, nil
		}
	}
	return nil, ErrEventNotFound
}

func (m *MockClient) CreateEvent(ctx context.Context, _ string, calendarID string, draft EventDraft) (*Event, error) {
	if err := m.check(ctx, calendarID); err != nil {
		return nil, err
	}
	ev := m.AddEvent(calendarID, Event{
		Summary:     draft.Summary,
		Description: draft.Description,
		Location:    draft.Location,
		Status:      StatusConfirmed,
		Start:       draft.Start,
		End:         draft.End,
		Attendees:   slices.Clone(draft.Attendees),
	})
	return &ev, nil
}

func (m *MockClient) UpdateEvent(ctx context.Context, _ string, calendarID, eventID string, changes EventChanges) (*Event, error) {
	if err := m.check(ctx, calendarID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.events[calendarID]
	for i := range list {
		if list[i].ID != eventID {
			continue
		}
		ev := &list[i]
		if changes.Summary != nil {
			ev.Summary = *changes.Summary
		}
		if changes.Description != nil {
			ev.Description = *changes.Description
		}
		if changes.Location != nil {
			ev.Location = *changes.Location
		}
		if changes.Start != nil {
			ev.Start = *changes.Start
		}
		if changes.End != nil {
			ev.End = *changes.End
		}
		if changes.Attendees != nil {
			ev.Attendees = slices.Clone(changes.Attendees)
		}
		out := *ev
		return &out, nil
	}
	return nil, ErrEventNotFound
}

func (m *MockClient) DeleteEvent(ctx context.Context, _ string, calendarID, eventID string) error {
	if err := m.check(ctx, calendarID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.events[calendarID]
	for i := range list {
		if list[i].ID == eventID {
			m.events[calendarID] = slices.Delete(list, i, i+1)
			return nil
		}
	}
	return ErrEventNotFound
}

func (m *MockClient) ListCalendars(ctx context.Context, userID string) ([]CalendarInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calendars[userID]), nil
}

var _ Client = (*MockClient)(nil)
