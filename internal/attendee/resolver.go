// Package attendee resolves spoken references like "Alice" or "Bob from
// Eng" to contacts in the user's address book.
package attendee

import (
	"cmp"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/errs"
)

// Scoring thresholds.
const (
	// TokenThreshold is the minimum per-token similarity that counts at all.
	TokenThreshold = 0.85
	// AcceptanceFloor discards candidates scoring below it.
	AcceptanceFloor = 0.5
	// HighConfidence marks a match as confident. It never blocks resolution.
	HighConfidence = 0.9
	// AmbiguityBand is how close to the top score a runner-up must be for the
	// user to be asked.
	AmbiguityBand = 0.15
)

// Match is a resolved attendee.
type Match struct {
	Contact        account.Contact `json:"contact"`
	Score          float64         `json:"score"`
	HighConfidence bool            `json:"high_confidence"`
}

type candidate struct {
	contact account.Contact
	score   float64
}

// Resolve picks the contact query refers to. It fails with
// errs.NotFoundError when nothing scores above AcceptanceFloor and with
// errs.AmbiguityError when more than one contact is within AmbiguityBand of
// the best score. A well-formed email address that is not in contacts is
// accepted as is.
func Resolve(query string, contacts []account.Contact) (Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Match{}, errs.Missing("attendees")
	}

	if strings.Contains(query, "@") {
		for _, c := range contacts {
			if strings.EqualFold(c.Email, query) {
				return Match{Contact: c, Score: 1, HighConfidence: true}, nil
			}
		}
		if addr, err := mail.ParseAddress(query); err == nil {
			return Match{Contact: account.Contact{DisplayName: addr.Name, Email: addr.Address}, Score: 1, HighConfidence: true}, nil
		}
	}

	qTokens := Tokens(query)
	if len(qTokens) == 0 {
		return Match{}, errs.Malformed("attendees", fmt.Sprintf("%q contains no name", query))
	}
	qFull := strings.Join(qTokens, " ")

	var exact, scored []candidate
	for _, c := range contacts {
		nTokens := nameTokens(c)
		if len(nTokens) == 0 {
			continue
		}
		if strings.Join(nTokens, " ") == qFull {
			exact = append(exact, candidate{contact: c, score: 1})
			continue
		}
		if s := score(qTokens, nTokens); s >= AcceptanceFloor {
			scored = append(scored, candidate{contact: c, score: s})
		}
	}

	pool := scored
	if len(exact) > 0 {
		pool = exact
	}
	if len(pool) == 0 {
		return Match{}, &errs.NotFoundError{Kind: "attendee", Name: query}
	}

	slices.SortFunc(pool, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := strings.Compare(displayName(a.contact), displayName(b.contact)); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(a.contact.Email), strings.ToLower(b.contact.Email))
	})

	top := pool[0]
	near := 0
	for _, c := range pool {
		if top.score-c.score <= AmbiguityBand {
			near++
		}
	}
	if near > 1 {
		opts := make([]errs.Option, 0, near)
		for _, c := range pool[:near] {
			opts = append(opts, errs.Option{
				Label: fmt.Sprintf("%s <%s>", displayName(c.contact), c.contact.Email),
				Value: c.contact.Email,
				Email: c.contact.Email,
				Score: c.score,
			})
		}
		return Match{}, &errs.AmbiguityError{
			Field:   "attendees",
			Message: fmt.Sprintf("which %q did you mean?", query),
			Options: opts,
		}
	}

	return Match{Contact: top.contact, Score: top.score, HighConfidence: top.score >= HighConfidence}, nil
}

// ResolveAll resolves every query, stopping at the first that needs the
// user's input.
func ResolveAll(queries []string, contacts []account.Contact) ([]Match, error) {
	out := make([]Match, 0, len(queries))
	for _, q := range queries {
		m, err := Resolve(q, contacts)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// score averages the best per-token similarity with the single best one, so
// one strong token carries a query padded with filler words.
func score(query, name []string) float64 {
	var best, sum float64
	for _, q := range query {
		var tokenBest float64
		for _, n := range name {
			tokenBest = max(tokenBest, JaroWinkler(q, n))
		}
		if tokenBest < TokenThreshold {
			continue
		}
		best = max(best, tokenBest)
		sum += tokenBest
	}
	return 0.5*best + 0.5*sum/float64(len(query))
}

func nameTokens(c account.Contact) []string {
	if t := Tokens(c.DisplayName); len(t) > 0 {
		return t
	}
	local, _, _ := strings.Cut(c.Email, "@")
	return Tokens(local)
}

func displayName(c account.Contact) string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Email
}
