package account

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// testDatabaseEnv names a Postgres database the store tests may write to.
const testDatabaseEnv = "TEST_DATABASE_URL"

// exerciseStore runs the behaviour every Store must share. Ids are prefixed
// so runs against a shared database do not collide.
func exerciseStore(t *testing.T, s Store, prefix string) {
	ctx := context.Background()
	user := prefix + "-u1"
	email := prefix + "-dana@example.com"

	t.Run("users", func(t *testing.T) {
		require.NoError(t, s.UpsertUser(ctx, User{ID: user, Email: email, DisplayName: "Dana"}))
		// An empty display name leaves the stored one alone.
		require.NoError(t, s.UpsertUser(ctx, User{ID: user, Email: email}))

		u, err := s.FindUserByEmail(ctx, prefix+"-DANA@example.com")
		require.NoError(t, err)
		assert.Equal(t, user, u.ID)
		assert.Equal(t, "Dana", u.DisplayName)

		_, err = s.FindUserByEmail(ctx, prefix+"-nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("calendar sources", func(t *testing.T) {
		require.NoError(t, s.ReplaceCalendarSources(ctx, user, []CalendarSource{
			{CalendarID: "old", AccessRole: RoleWriter},
		}))
		require.NoError(t, s.ReplaceCalendarSources(ctx, user, []CalendarSource{
			{CalendarID: "a-primary", Summary: "Me", AccessRole: RoleOwner, IsPrimary: true},
			{CalendarID: "b-team", AccessRole: RoleReader, IsHidden: true},
		}))

		got, err := s.ListCalendarSources(ctx, user)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, CalendarSource{
			CalendarID: "a-primary", OwnerUserID: user, Summary: "Me", AccessRole: RoleOwner, IsPrimary: true,
		}, got[0])
		assert.Equal(t, "b-team", got[1].CalendarID)
		assert.True(t, got[1].IsHidden)
		assert.Equal(t, RoleReader, got[1].AccessRole)
	})

	t.Run("contacts", func(t *testing.T) {
		require.NoError(t, s.AddContact(ctx, user, Contact{DisplayName: "Bob", Email: "bob@example.com"}))
		require.NoError(t, s.AddContact(ctx, user, Contact{DisplayName: "Carol", Email: "carol@example.com"}))
		require.NoError(t, s.AddContact(ctx, user, Contact{DisplayName: "Bob Smith", Email: "BOB@example.com", CalendarID: "bob-cal"}))

		got, err := s.ListContacts(ctx, user)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Bob Smith", got[0].DisplayName)
		assert.Equal(t, "bob-cal", got[0].CalendarID)
		assert.Equal(t, "Carol", got[1].DisplayName)
	})

	t.Run("availability template", func(t *testing.T) {
		_, err := s.GetAvailabilityTemplate(ctx, prefix+"-nobody")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SetAvailabilityTemplate(ctx, user, AvailabilityTemplate{
			Weekdays: []time.Weekday{time.Monday, time.Friday},
			DayStart: 9*time.Hour + 30*time.Minute,
			DayEnd:   24 * time.Hour,
			Timezone: "Europe/Berlin",
		}))
		tpl, err := s.GetAvailabilityTemplate(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, tpl.Weekdays)
		assert.Equal(t, 9*time.Hour+30*time.Minute, tpl.DayStart)
		assert.Equal(t, 24*time.Hour, tpl.DayEnd)
		assert.Equal(t, "Europe/Berlin", tpl.Timezone)
		assert.False(t, tpl.UpdatedAt.IsZero())
	})

	t.Run("tokens", func(t *testing.T) {
		_, err := s.GetToken(ctx, user)
		require.ErrorIs(t, err, ErrNotFound)

		expiry := time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveToken(ctx, user, &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: expiry}))
		require.NoError(t, s.SaveToken(ctx, user, &oauth2.Token{AccessToken: "at2", RefreshToken: "rt", Expiry: expiry}))

		tok, err := s.GetToken(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, "at2", tok.AccessToken)
		assert.Equal(t, "rt", tok.RefreshToken)
		assert.True(t, tok.Expiry.Equal(expiry))
	})
}

func TestMemoryStore_Behaviour(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), "mem")
}

func TestPostgresStore_Behaviour(t *testing.T) {
	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))
	// Migrate is idempotent.
	require.NoError(t, s.Migrate(ctx))

	prefix := "test-" + uuid.NewString()
	t.Cleanup(func() {
		for _, table := range []string{"users", "calendar_sources", "contacts", "availability_templates", "oauth_tokens"} {
			col := "user_id"
			if table == "users" {
				col = "id"
			}
			_, err := pool.Exec(context.Background(), "DELETE FROM "+table+" WHERE "+col+" LIKE $1", prefix+"%")
			assert.NoError(t, err)
		}
	})

	exerciseStore(t, s, prefix)
}
