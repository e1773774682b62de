package overlap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/errs"
	"calendar-assistant/internal/interval"
	"calendar-assistant/internal/overlay"
	"calendar-assistant/internal/provider"
)

func utc(h, m int) time.Time {
	return time.Date(2025, 11, 10, h, m, 0, 0, time.UTC)
}

var monday = interval.Interval{Start: utc(0, 0), End: utc(0, 0).AddDate(0, 0, 1)}

type fixture struct {
	store    *account.MemoryStore
	client   *provider.MockClient
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := account.NewMemoryStore()
	client := provider.NewMockClient()
	avail := availability.NewResolver(store, overlay.New(store, client, overlay.Policy{}, nil), nil)

	users := []struct {
		id, email  string
		start, end time.Duration
	}{
		{"alice", "alice@example.com", 9 * time.Hour, 12 * time.Hour},
		{"bob", "bob@example.com", 10 * time.Hour, 15 * time.Hour},
	}
	for _, u := range users {
		require.NoError(t, store.UpsertUser(ctx, account.User{ID: u.id, Email: u.email}))
		require.NoError(t, store.ReplaceCalendarSources(ctx, u.id, []account.CalendarSource{
			{CalendarID: u.id + "-cal", AccessRole: account.RoleOwner},
		}))
		require.NoError(t, store.SetAvailabilityTemplate(ctx, u.id, account.AvailabilityTemplate{
			Weekdays: []time.Weekday{time.Monday},
			DayStart: u.start,
			DayEnd:   u.end,
		}))
	}
	return &fixture{store: store, client: client, resolver: NewResolver(store, avail, 2, nil)}
}

func TestResolve_TwoUsers(t *testing.T) {
	f := newFixture(t)
	res, err := f.resolver.Resolve(context.Background(), Request{
		RequesterID:      "alice",
		IncludeRequester: true,
		Participants:     []string{"bob@example.com"},
		Range:            monday,
		MinDuration:      time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: utc(10, 0), End: utc(12, 0)}}, res.Free)
	require.Len(t, res.Participants, 2)
	assert.Equal(t, "alice", res.Participants[0].Participant)
	assert.Equal(t, "bob@example.com", res.Participants[1].Participant)
}

func TestResolve_NeverExceedsSmallestParticipant(t *testing.T) {
	f := newFixture(t)
	f.client.AddEvent("bob-cal", provider.Event{Start: utc(10, 30), End: utc(11, 0)})

	res, err := f.resolver.Resolve(context.Background(), Request{
		RequesterID:      "alice",
		IncludeRequester: true,
		Participants:     []string{"BOB@example.com", "bob@example.com"},
		Range:            monday,
	})
	require.NoError(t, err)
	require.Len(t, res.Participants, 2, "duplicate participants are folded once")

	smallest := interval.TotalDuration(res.Participants[0].Free)
	for _, p := range res.Participants[1:] {
		smallest = min(smallest, interval.TotalDuration(p.Free))
	}
	assert.LessOrEqual(t, interval.TotalDuration(res.Free), smallest)
	assert.Equal(t, []interval.Interval{
		{Start: utc(10, 0), End: utc(10, 30)},
		{Start: utc(11, 0), End: utc(12, 0)},
	}, res.Free)
}

func TestResolve_MinDurationAfterFold(t *testing.T) {
	f := newFixture(t)
	f.client.AddEvent("bob-cal", provider.Event{Start: utc(10, 30), End: utc(11, 30)})

	res, err := f.resolver.Resolve(context.Background(), Request{
		RequesterID:      "alice",
		IncludeRequester: true,
		Participants:     []string{"bob@example.com"},
		Range:            monday,
		MinDuration:      time.Hour,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Free)
}

func TestResolve_ExternalContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddContact(ctx, "alice", account.Contact{
		DisplayName: "Carol Client",
		Email:       "carol@partner.org",
		CalendarID:  "carol@partner.org",
	}))
	f.client.AddEvent("carol@partner.org", provider.Event{Start: utc(9, 0), End: utc(11, 0)})

	res, err := f.resolver.Resolve(ctx, Request{
		RequesterID:      "alice",
		IncludeRequester: true,
		Participants:     []string{"carol@partner.org"},
		Range:            monday,
	})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: utc(11, 0), End: utc(12, 0)}}, res.Free)
}

func TestResolve_UnknownParticipant(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), Request{
		RequesterID:  "alice",
		Participants: []string{"nobody@example.com"},
		Range:        monday,
	})
	var pe *ParticipantError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "nobody@example.com", pe.Participant)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestResolve_ParticipantFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.client.FailCalendar("bob-cal", errors.New("quota exceeded"))

	_, err := f.resolver.Resolve(context.Background(), Request{
		RequesterID:      "alice",
		IncludeRequester: true,
		Participants:     []string{"bob@example.com"},
		Range:            monday,
	})
	var pe *ParticipantError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bob@example.com", pe.Participant)
	assert.Equal(t, errs.KindUpstream, errs.KindOf(err))
}

func TestResolve_Canceled(t *testing.T) {
	f := newFixture(t)
	f.client.BlockCalendar("bob-cal")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.resolver.Resolve(ctx, Request{
		RequesterID:      "alice",
		IncludeRequester: true,
		Participants:     []string{"bob@example.com"},
		Range:            monday,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve_NoParticipants(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), Request{RequesterID: "alice", Range: monday})
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "attendees", ve.Field)
}

// slowAvailability holds each call briefly and records the peak number of
// calls in flight.
type slowAvailability struct {
	inFlight, peak, calls atomic.Int32
}

func (s *slowAvailability) Resolve(ctx context.Context, req availability.Request) (*availability.Result, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &availability.Result{Free: []interval.Interval{req.Range}}, nil
}

func TestResolve_BoundsConcurrentParticipants(t *testing.T) {
	const limit = 2
	ctx := context.Background()
	store := account.NewMemoryStore()
	var emails []string
	for i := range 6 {
		email := fmt.Sprintf("p%d@example.com", i)
		require.NoError(t, store.UpsertUser(ctx, account.User{ID: fmt.Sprintf("p%d", i), Email: email}))
		emails = append(emails, email)
	}
	avail := &slowAvailability{}

	res, err := NewResolver(store, avail, limit, nil).Resolve(ctx, Request{
		RequesterID:  "p0",
		Participants: emails,
		Range:        monday,
	})
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{monday}, res.Free)

	assert.EqualValues(t, 6, avail.calls.Load())
	assert.LessOrEqual(t, avail.peak.Load(), int32(limit))
	assert.Positive(t, avail.peak.Load())
}
