// Package store holds the marketplace state in memory behind a single
// RWMutex and can snapshot it to disk.
package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory marketplace database
type Store struct {
	mu sync.RWMutex

	users  map[string]*User
	emails map[string]string // lower-cased email -> user id

	listings map[string]*Listing

	// userID -> listingID -> time favorited
	favorites map[string]map[string]time.Time

	conversations map[string]*Conversation
	// conversation id -> messages in send order
	messages map[string][]*Message

	// userID -> notifications in creation order
	notifications map[string][]*Notification

	now   func() time.Time
	newID func() string
}

// Option customizes a Store
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		users:         make(map[string]*User),
		emails:        make(map[string]string),
		listings:      make(map[string]*Listing),
		favorites:     make(map[string]map[string]time.Time),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		notifications: make(map[string][]*Notification),
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a new account
func (s *Store) CreateUser(email, name, passwordHash string, role Role) (*User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("valid email is required: %w", ErrInvalid)
	}
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalid)
	}
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("unknown role %q: %w", role, ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[email]; exists {
		return nil, fmt.Errorf("email %s: %w", email, ErrConflict)
	}

	u := &User{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.users[u.ID] = u
	s.emails[email] = u.ID
	copied := *u
	return &copied, nil
}

// User returns a copy of the user with id
func (s *Store) User(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

// UserByEmail looks an account up by email, case-insensitively
func (s *Store) UserByEmail(email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	copied := *s.users[id]
	return &copied, nil
}

// Users returns every account ordered by creation time
func (s *Store) Users() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		copied := *u
		users = append(users, &copied)
	}
	sortByTime(users, func(u *User) time.Time { return u.CreatedAt }, false)
	return users
}

// UpdateProfile applies the non-nil fields of p
func (s *Store) UpdateProfile(id string, p ProfileUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, fmt.Errorf("name must not be empty: %w", ErrInvalid)
		}
		u.Name = name
	}
	if p.Phone != nil {
		u.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.City != nil {
		u.City = strings.TrimSpace(*p.City)
	}
	copied := *u
	return &copied, nil
}

// SetPasswordHash replaces the stored password hash
func (s *Store) SetPasswordHash(id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u.PasswordHash = hash
	return nil
}

// SetBanned bans or unbans an account
func (s *Store) SetBanned(id string, banned bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u.Banned = banned
	copied := *u
	return &copied, nil
}

// SetRole changes an account's role
func (s *Store) SetRole(id string, role Role) (*User, error) {
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("unknown role %q: %w", role, ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u.Role = role
	copied := *u
	return &copied, nil
}

// Stats aggregates the admin dashboard counters
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{ListingsByCategory: make(map[Category]int, len(Categories))}
	for _, c := range Categories {
		st.ListingsByCategory[c] = 0
	}
	for _, u := range s.users {
		st.Users++
		if u.Role == RoleAdmin {
			st.Admins++
		}
		if u.Banned {
			st.BannedUsers++
		}
	}
	for _, l := range s.listings {
		st.Listings++
		st.ListingsByCategory[l.Category]++
		if l.Status == StatusActive {
			st.ActiveListings++
		}
	}
	for _, favs := range s.favorites {
		st.Favorites += len(favs)
	}
	st.Conversations = len(s.conversations)
	for _, msgs := range s.messages {
		st.Messages += len(msgs)
	}
	for _, ns := range s.notifications {
		for _, n := range ns {
			st.Notifications++
			if !n.Read {
				st.UnreadNotifications++
			}
		}
	}
	return st
}
