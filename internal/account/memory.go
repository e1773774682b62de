package account

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// MemoryStore keeps everything in process memory. It backs STORE_DRIVER=memory
// and the tests.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]User
	sources   map[string][]CalendarSource
	contacts  map[string][]Contact
	templates map[string]AvailabilityTemplate
	tokens    map[string]oauth2.Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]User),
		sources:   make(map[string][]CalendarSource),
		contacts:  make(map[string][]Contact),
		templates: make(map[string]AvailabilityTemplate),
		tokens:    make(map[string]oauth2.Token),
	}
}

func (m *MemoryStore) ListCalendarSources(_ context.Context, userID string) ([]CalendarSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sources[userID]), nil
}

func (m *MemoryStore) ListContacts(_ context.Context, userID string) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.contacts[userID]), nil
}

func (m *MemoryStore) GetAvailabilityTemplate(_ context.Context, userID string) (*AvailabilityTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[userID]
	if !ok {
		return nil, ErrNotFound
	}
	tpl.Weekdays = slices.Clone(tpl.Weekdays)
	return &tpl, nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && u.DisplayName == "" {
		u.DisplayName = prev.DisplayName
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) ReplaceCalendarSources(_ context.Context, userID string, sources []CalendarSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CalendarSource, len(sources))
	for i, s := range sources {
		s.OwnerUserID = userID
		out[i] = s
	}
	m.sources[userID] = out
	return nil
}

func (m *MemoryStore) SetAvailabilityTemplate(_ context.Context, userID string, tpl AvailabilityTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl.Weekdays = slices.Clone(tpl.Weekdays)
	tpl.UpdatedAt = time.Now().UTC()
	m.templates[userID] = tpl
	return nil
}

// AddContact inserts c, replacing an existing contact with the same email.
func (m *MemoryStore) AddContact(_ context.Context, userID string, c Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.contacts[userID]
	for i := range list {
		if c.Email != "" && strings.EqualFold(list[i].Email, c.Email) {
			list[i] = c
			return nil
		}
	}
	m.contacts[userID] = append(list, c)
	return nil
}

func (m *MemoryStore) SaveToken(_ context.Context, userID string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = *tok
	return nil
}

func (m *MemoryStore) GetToken(_ context.Context, userID string) (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &tok, nil
}

var _ Store = (*MemoryStore)(nil)
