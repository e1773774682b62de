package attendee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/errs"
)

var contacts = []account.Contact{
	{DisplayName: "Alice Johnson", Email: "alice@example.com"},
	{DisplayName: "Alicia Jones", Email: "alicia@example.com"},
	{DisplayName: "Bob Smith", Email: "bob@example.com"},
	{DisplayName: "José García", Email: "jose@example.com"},
	{Email: "dana.white@example.com"},
}

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"martha", "marhta", 0.961},
		{"dwayne", "duane", 0.840},
		{"dixon", "dicksonx", 0.813},
		{"alice", "alicia", 0.893},
		{"same", "same", 1},
		{"abc", "xyz", 0},
		{"", "", 1},
		{"a", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, JaroWinkler(tt.a, tt.b), 0.001)
			assert.InDelta(t, JaroWinkler(tt.a, tt.b), JaroWinkler(tt.b, tt.a), 1e-9)
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"jose", "garcia"}, Tokens("  José   García "))
	assert.Equal(t, []string{"bob", "from", "eng"}, Tokens("Bob-from ENG!"))
	assert.Equal(t, []string{"zoe", "2"}, Tokens("Zoë #2"))
	assert.Empty(t, Tokens("--"))
}

func TestResolve_AliceIsAmbiguous(t *testing.T) {
	_, err := Resolve("Alice", contacts)

	var ae *errs.AmbiguityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "attendees", ae.Field)
	require.Len(t, ae.Options, 2)
	assert.Equal(t, "alice@example.com", ae.Options[0].Email)
	assert.InDelta(t, 1.0, ae.Options[0].Score, 1e-9)
	assert.Equal(t, "alicia@example.com", ae.Options[1].Email)
	assert.InDelta(t, 0.893, ae.Options[1].Score, 0.001)
}

func TestResolve_FullNameIsExact(t *testing.T) {
	m, err := Resolve("alice johnson", contacts)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", m.Contact.Email)
	assert.True(t, m.HighConfidence)
}

func TestResolve_FillerWords(t *testing.T) {
	m, err := Resolve("Bob from Eng", contacts)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", m.Contact.Email)
	assert.GreaterOrEqual(t, m.Score, AcceptanceFloor)
	assert.False(t, m.HighConfidence, "low scores still resolve when unambiguous")
}

func TestResolve_Diacritics(t *testing.T) {
	m, err := Resolve("Jose Garcia", contacts)
	require.NoError(t, err)
	assert.Equal(t, "jose@example.com", m.Contact.Email)
	assert.Equal(t, 1.0, m.Score)
}

func TestResolve_Email(t *testing.T) {
	m, err := Resolve("BOB@example.com", contacts)
	require.NoError(t, err)
	assert.Equal(t, "Bob Smith", m.Contact.DisplayName)

	m, err = Resolve("stranger@elsewhere.org", contacts)
	require.NoError(t, err)
	assert.Equal(t, "stranger@elsewhere.org", m.Contact.Email)
}

func TestResolve_EmailLocalPart(t *testing.T) {
	m, err := Resolve("Dana", contacts)
	require.NoError(t, err)
	assert.Equal(t, "dana.white@example.com", m.Contact.Email)
}

func TestResolve_NotFound(t *testing.T) {
	_, err := Resolve("Zed", contacts)
	var ne *errs.NotFoundError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "Zed", ne.Name)

	_, err = Resolve("   ", contacts)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestResolve_DuplicateNames(t *testing.T) {
	a := account.Contact{DisplayName: "Sam Lee", Email: "sam.lee@a.com"}
	z := account.Contact{DisplayName: "Sam Lee", Email: "sam.lee@z.com"}

	// Same options in the same order whatever the address book order.
	for _, book := range [][]account.Contact{{a, z}, {z, a}} {
		_, err := Resolve("sam lee", book)
		var ae *errs.AmbiguityError
		require.ErrorAs(t, err, &ae)
		require.Len(t, ae.Options, 2)
		assert.Equal(t, "sam.lee@a.com", ae.Options[0].Email)
		assert.Equal(t, "sam.lee@z.com", ae.Options[1].Email)
	}
}

func TestResolveAll(t *testing.T) {
	got, err := ResolveAll([]string{"Bob Smith", "jose@example.com"}, contacts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob@example.com", got[0].Contact.Email)

	_, err = ResolveAll([]string{"Bob Smith", "Alice"}, contacts)
	assert.Equal(t, errs.KindAmbiguity, errs.KindOf(err))
}
