package provider

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// OAuthSettings holds the Google OAuth client registration.
type OAuthSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewOAuthConfig builds the OAuth2 config for Google Calendar. It returns nil
// when the client registration is incomplete.
func NewOAuthConfig(s OAuthSettings) *oauth2.Config {
	if s.ClientID == "" || s.ClientSecret == "" || s.RedirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Scopes: []string{
			calendar.CalendarScope,
		},
		Endpoint: google.Endpoint,
	}
}

// TokenStore persists per-user OAuth tokens.
type TokenStore interface {
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error
}

// savingTokenSource writes refreshed tokens back so the next request does not
// refresh again.
type savingTokenSource struct {
	ctx    context.Context
	userID string
	base   oauth2.TokenSource
	store  TokenStore
	last   string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.SaveToken(s.ctx, s.userID, tok); err != nil {
			slog.Warn("failed to persist refreshed token", "user_id", s.userID, "error", err)
		}
	}
	return tok, nil
}
