// Package session holds per-user conversation state.
//
// All mutation of a user's state runs inside Store.Do, which serializes
// turns for that user while leaving other users independent.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/buyerd/internal/artifact"
)

// ErrInvalidPreference rejects a preference outside the known set.
var ErrInvalidPreference = errors.New("invalid preference")

// Preference is a shopping priority the user declares up front.
type Preference string

const (
	PrefRatingConscious Preference = "rating_conscious"
	PrefPriceConscious  Preference = "price_conscious"
	PrefReviewConscious Preference = "review_conscious"
)

// ParsePreference validates a raw preference value.
func ParsePreference(raw string) (Preference, error) {
	switch Preference(raw) {
	case PrefRatingConscious, PrefPriceConscious, PrefReviewConscious:
		return Preference(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPreference, raw)
}

// Session is one user's conversational state. It is only safe to touch
// inside Store.Do for the owning user.
type Session struct {
	UserID      string
	Role        string
	Preferences []Preference

	// Chain is the active result chain; nil before the first search.
	Chain *artifact.Chain

	// PendingQuery buffers at most one utterance that arrived before
	// preferences were set.
	PendingQuery string
}

// HasPreferences reports whether onboarding has completed.
func (s *Session) HasPreferences() bool {
	return len(s.Preferences) > 0
}

// PreferenceStrings returns the ordered preferences as plain strings.
func (s *Session) PreferenceStrings() []string {
	out := make([]string, len(s.Preferences))
	for i, p := range s.Preferences {
		out[i] = string(p)
	}
	return out
}

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Store keeps sessions keyed by user id.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (st *Store) entryFor(userID string) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[userID]
	if !ok {
		e = &entry{session: &Session{UserID: userID}}
		st.entries[userID] = e
	}
	return e
}

// Do runs fn with exclusive access to the user's session. Calls for the
// same user serialize in arrival order; calls for different users do
// not block each other.
func (st *Store) Do(userID string, fn func(s *Session) error) error {
	e := st.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Get returns a snapshot of the user's session.
func (st *Store) Get(userID string) Session {
	var snap Session
	_ = st.Do(userID, func(s *Session) error {
		snap = *s
		snap.Preferences = append([]Preference(nil), s.Preferences...)
		return nil
	})
	return snap
}

// SetPreferences replaces the user's preference set, preserving order
// and dropping duplicates.
func (st *Store) SetPreferences(userID string, raw []string) error {
	prefs := make([]Preference, 0, len(raw))
	seen := make(map[Preference]bool, len(raw))
	for _, r := range raw {
		p, err := ParsePreference(r)
		if err != nil {
			return err
		}
		if !seen[p] {
			seen[p] = true
			prefs = append(prefs, p)
		}
	}
	if len(prefs) == 0 {
		return fmt.Errorf("%w: at least one preference is required", ErrInvalidPreference)
	}
	return st.Do(userID, func(s *Session) error {
		s.Preferences = prefs
		return nil
	})
}

// BufferPendingQuery stores the utterance to replay after onboarding.
// Only the most recent one is kept.
func (st *Store) BufferPendingQuery(userID, query string) {
	_ = st.Do(userID, func(s *Session) error {
		s.PendingQuery = query
		return nil
	})
}

// TakePendingQuery returns and clears the buffered utterance, if any.
func (st *Store) TakePendingQuery(userID string) (string, bool) {
	var query string
	_ = st.Do(userID, func(s *Session) error {
		query = s.PendingQuery
		s.PendingQuery = ""
		return nil
	})
	return query, query != ""
}

// Clear drops the user's result chain and pending query. Preferences
// and role survive.
func (st *Store) Clear(userID string) {
	_ = st.Do(userID, func(s *Session) error {
		s.Chain = nil
		s.PendingQuery = ""
		return nil
	})
}
