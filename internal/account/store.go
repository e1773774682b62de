// Package account holds the per-user records the scheduling engine reads:
// linked calendars, contacts, availability templates and OAuth tokens.
package account

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("account: not found")

// Reader is the read-only view the engine consumes.
type Reader interface {
	ListCalendarSources(ctx context.Context, userID string) ([]CalendarSource, error)
	ListContacts(ctx context.Context, userID string) ([]Contact, error)
	// GetAvailabilityTemplate returns ErrNotFound when the user never set one.
	GetAvailabilityTemplate(ctx context.Context, userID string) (*AvailabilityTemplate, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// Store adds the writes performed by the HTTP layer when calendars are
// linked, preferences change or contacts are imported.
type Store interface {
	Reader

	// UpsertUser keeps the stored display name when u has none.
	UpsertUser(ctx context.Context, u User) error
	ReplaceCalendarSources(ctx context.Context, userID string, sources []CalendarSource) error
	SetAvailabilityTemplate(ctx context.Context, userID string, tpl AvailabilityTemplate) error
	AddContact(ctx context.Context, userID string, c Contact) error

	SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
}
