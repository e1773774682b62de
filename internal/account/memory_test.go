package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestMemoryStore_Template(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetAvailabilityTemplate(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	tpl := AvailabilityTemplate{
		Weekdays: []time.Weekday{time.Monday, time.Tuesday},
		DayStart: 9 * time.Hour,
		DayEnd:   17 * time.Hour,
		Timezone: "Europe/Berlin",
	}
	require.NoError(t, s.SetAvailabilityTemplate(ctx, "u1", tpl))

	got, err := s.GetAvailabilityTemplate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tpl.Weekdays, got.Weekdays)
	assert.Equal(t, 9*time.Hour, got.DayStart)
	assert.False(t, got.UpdatedAt.IsZero())

	got.Weekdays[0] = time.Sunday
	again, err := s.GetAvailabilityTemplate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, again.Weekdays[0], "callers must not alias stored slices")
}

func TestMemoryStore_ContactsReplaceByEmail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AddContact(ctx, "u1", Contact{DisplayName: "Bob", Email: "bob@example.com"}))
	require.NoError(t, s.AddContact(ctx, "u1", Contact{DisplayName: "Bob Smith", Email: "BOB@example.com"}))
	require.NoError(t, s.AddContact(ctx, "u1", Contact{DisplayName: "Carol", Email: "carol@example.com"}))

	got, err := s.ListContacts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bob Smith", got[0].DisplayName)
}

func TestMemoryStore_SourcesAndUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ReplaceCalendarSources(ctx, "u1", []CalendarSource{
		{CalendarID: "primary", AccessRole: RoleOwner, IsPrimary: true},
		{CalendarID: "team", AccessRole: RoleReader},
	}))
	srcs, err := s.ListCalendarSources(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "u1", srcs[1].OwnerUserID)
	assert.True(t, srcs[0].Writable())
	assert.False(t, srcs[1].Writable())

	require.NoError(t, s.UpsertUser(ctx, User{ID: "u2", Email: "Dana@Example.com"}))
	u, err := s.FindUserByEmail(ctx, "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.ID)

	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Token(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetToken(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveToken(ctx, "u1", &oauth2.Token{AccessToken: "abc", TokenType: "Bearer"}))
	tok, err := s.GetToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
}

func TestDefaultTemplate(t *testing.T) {
	tpl := DefaultTemplate("UTC")
	assert.Len(t, tpl.Weekdays, 7)
	assert.Equal(t, time.Duration(0), tpl.DayStart)
	assert.Equal(t, 24*time.Hour, tpl.DayEnd)
}
