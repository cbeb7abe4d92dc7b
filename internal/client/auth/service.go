// Package auth is the session façade used by the request pipeline and the
// CLI. It answers "is the user logged in", decides when a token must be
// refreshed, and turns a failed refresh into a logout.
package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/client/session"
	"github.com/neekly/neekly/internal/common/logtrace"
)

// RefreshOutcome reports what a refresh check did.
type RefreshOutcome int

const (
	RefreshNotNeeded RefreshOutcome = iota
	Refreshed
	RefreshFailed
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshNotNeeded:
		return "not-needed"
	case Refreshed:
		return "refreshed"
	case RefreshFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// API is the set of session operations the service delegates to.
// *authapi.Client implements it.
type API interface {
	Login(ctx context.Context, email, password string) (*session.Session, error)
	Refresh(ctx context.Context) (*session.Session, error)
	Logout(ctx context.Context)
}

// Service is the session façade. It is safe for concurrent use.
type Service struct {
	store *session.Store
	api   API
	sf    singleflight.Group
}

// NewService creates a Service over the given store and auth API.
func NewService(store *session.Store, api API) *Service {
	return &Service{store: store, api: api}
}

// Store returns the underlying token store.
func (s *Service) Store() *session.Store {
	return s.store
}

// IsAuthenticated reports whether a token is present and not yet expired.
func (s *Service) IsAuthenticated() bool {
	return s.store.IsPresent() && !s.store.IsExpired()
}

// HasSession reports whether any token is held, expired or not.
func (s *Service) HasSession() bool {
	return s.store.IsPresent()
}

// CurrentUser returns the identity of the logged in user.
func (s *Service) CurrentUser() (session.Identity, bool) {
	return s.store.Identity()
}

// Login authenticates with the server and stores the new session.
func (s *Service) Login(ctx context.Context, email, password string) (*session.Session, error) {
	return s.api.Login(ctx, email, password)
}

// Logout ends the session. It never fails.
func (s *Service) Logout(ctx context.Context) {
	s.api.Logout(ctx)
}

// CheckAndRefreshToken refreshes the token if it is about to expire. When
// the refresh fails the session is logged out and ErrSessionExpired is
// returned along with RefreshFailed.
func (s *Service) CheckAndRefreshToken(ctx context.Context) (RefreshOutcome, error) {
	if !s.store.NeedsRefresh() {
		return RefreshNotNeeded, nil
	}
	log.Ctx(ctx).Debug().Msg("access token near expiry, refreshing")
	return s.Refresh(ctx)
}

// Refresh unconditionally obtains a new access token. Concurrent callers
// share a single network refresh. On failure the session is logged out.
func (s *Service) Refresh(ctx context.Context) (RefreshOutcome, error) {
	_, err, shared := s.sf.Do("refresh", func() (any, error) {
		return s.api.Refresh(ctx)
	})
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Bool("shared", shared).Msg("refresh failed, logging out")
		s.api.Logout(ctx)
		return RefreshFailed, clienterrors.ErrSessionExpired.Err(err)
	}
	if tok, ok := s.store.Token(); ok {
		log.Ctx(ctx).Debug().Str("token", logtrace.TokenPrefix(tok)).Bool("shared", shared).Msg("refresh succeeded")
	}
	return Refreshed, nil
}

// AuthHeaders returns the Authorization header for the current token.
func (s *Service) AuthHeaders() (http.Header, error) {
	tok, ok := s.store.Token()
	if !ok {
		return nil, clienterrors.ErrNoToken
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+tok)
	return h, nil
}
