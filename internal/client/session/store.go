// Package session holds the client's current access token and user identity.
// The Store is the only component that mutates session state; everything else
// reads it through accessors.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/common/logtrace"
)

// RefreshWindow is how close to expiry a token must be before it is refreshed.
const RefreshWindow = 300 * time.Second

// Identity is the user the session belongs to.
type Identity struct {
	Email    string `json:"email"`
	UserName string `json:"userName,omitempty"`
}

// Session is an access token together with its owner.
type Session struct {
	AccessToken string
	Identity    Identity
}

// Store is the single source of truth for the current session. It is safe
// for concurrent use.
type Store struct {
	mu        sync.RWMutex
	current   *Session
	persister Persister
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store. A nil persister keeps the session in
// memory only.
func NewStore(p Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a previously persisted session. Both the token and the user
// info must be present; unreadable user info clears the store.
func (s *Store) Restore() {
	if s.persister == nil {
		return
	}
	p, err := s.persister.Load()
	if err != nil {
		log.Error().Err(err).Msg("unable to restore session")
		s.Clear()
		return
	}
	if p == nil || p.AccessToken == "" || p.UserInfo == "" {
		return
	}
	var id Identity
	if err := json.Unmarshal([]byte(p.UserInfo), &id); err != nil {
		log.Error().Err(err).Msg("stored user info is corrupt, clearing session")
		s.Clear()
		return
	}

	s.mu.Lock()
	s.current = &Session{AccessToken: p.AccessToken, Identity: id}
	s.mu.Unlock()
	log.Debug().Str("email", id.Email).Msg("session restored")
}

// SetSession replaces the current session and persists it. A persistence
// failure is logged and leaves the in-memory session in place.
func (s *Store) SetSession(token string, id Identity) {
	s.mu.Lock()
	s.current = &Session{AccessToken: token, Identity: id}
	s.mu.Unlock()

	log.Debug().
		Str("token", logtrace.TokenPrefix(token)).
		Str("email", id.Email).
		Msg("session stored")

	if s.persister == nil {
		return
	}
	info, err := json.Marshal(id)
	if err != nil {
		log.Error().Err(err).Msg("unable to encode user info")
		return
	}
	if err := s.persister.Save(Persisted{AccessToken: token, UserInfo: string(info)}); err != nil {
		log.Error().Err(err).Msg("unable to persist session")
	}
}

// Token returns the current access token.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.AccessToken == "" {
		return "", false
	}
	return s.current.AccessToken, true
}

// Identity returns the identity of the current session.
func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.AccessToken == "" {
		return Identity{}, false
	}
	return s.current.Identity, true
}

// Session returns a copy of the current session.
func (s *Store) Session() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.AccessToken == "" {
		return Session{}, false
	}
	return *s.current, true
}

// IsPresent reports whether a non-empty token is set.
func (s *Store) IsPresent() bool {
	_, ok := s.Token()
	return ok
}

// Clear drops the session from memory and storage. It is idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if s.persister == nil {
		return
	}
	if err := s.persister.Clear(); err != nil {
		log.Error().Err(err).Msg("unable to clear persisted session")
	}
}

// Expiry returns the exp claim of the current token.
func (s *Store) Expiry() (time.Time, bool) {
	token, ok := s.Token()
	if !ok {
		return time.Time{}, false
	}
	return DecodeExpiry(token)
}

// IsExpired reports whether there is no usable token: absent, undecodable,
// missing exp, or exp in the past.
func (s *Store) IsExpired() bool {
	exp, ok := s.Expiry()
	if !ok {
		return true
	}
	return exp.Before(s.now())
}

// NeedsRefresh reports whether the token expires within RefreshWindow. It is
// false when there is no token; callers check IsPresent to tell "no session"
// apart from "session stale".
func (s *Store) NeedsRefresh() bool {
	exp, ok := s.Expiry()
	if !ok {
		return false
	}
	return exp.Sub(s.now()) < RefreshWindow
}
