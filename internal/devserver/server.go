// Package devserver is an in-memory implementation of the neekly backend.
// It serves the session endpoints (login, refresh cookie, logout), the
// schedule and report endpoints, and a health check. It backs the client
// tests and the `neekly dev-server` command.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/common/httpx"
	commonmiddleware "github.com/neekly/neekly/internal/common/middleware"
)

// RefreshCookieName is the HttpOnly cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// Faults lets tests make the server misbehave.
type Faults struct {
	unauthorized atomic.Int32
	refreshDown  atomic.Bool
	delay        atomic.Int64
}

// RejectNext makes the next n authenticated requests fail with 401
// regardless of the token they carry.
func (f *Faults) RejectNext(n int) {
	f.unauthorized.Store(int32(n))
}

// FailRefresh makes the refresh endpoint reject every request.
func (f *Faults) FailRefresh(fail bool) {
	f.refreshDown.Store(fail)
}

// Delay holds every business request for d before handling it.
func (f *Faults) Delay(d time.Duration) {
	f.delay.Store(int64(d))
}

func (f *Faults) takeUnauthorized() bool {
	for {
		n := f.unauthorized.Load()
		if n <= 0 {
			return false
		}
		if f.unauthorized.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// Server is the development backend.
type Server struct {
	Router *chi.Mux
	cfg    Config
	store  *memStore
	tokens *tokenIssuer
	faults Faults
	now    func() time.Time

	refreshCalls atomic.Int32
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the server's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a server with the configured users and mounted routes.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		Router: chi.NewRouter(),
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = newMemStore(s.now)
	s.tokens = &tokenIssuer{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.AccessTokenTTL.Duration,
		now:    s.now,
	}
	for _, u := range cfg.Users {
		if _, err := s.store.addUser(u.Email, u.Password, u.UserName); err != nil {
			return nil, err
		}
	}
	s.MountHandlers()
	return s, nil
}

// Faults returns the server's fault switches.
func (s *Server) Faults() *Faults {
	return &s.faults
}

// RefreshCalls returns how many refresh requests the server has received.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// IssueToken signs an access token for email that expires after ttl.
func (s *Server) IssueToken(email string, ttl time.Duration) (string, error) {
	ti := *s.tokens
	ti.ttl = ttl
	return ti.issue(email)
}

// MountHandlers installs middleware and routes on the router.
func (s *Server) MountHandlers() {
	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	if s.cfg.RequestTimeout.Duration > 0 {
		s.Router.Use(commonmiddleware.SetTimeout(s.cfg.RequestTimeout.Duration))
	}
	if s.cfg.HandleCORS {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", commonmiddleware.RequestIDHeader},
			ExposedHeaders:   []string{commonmiddleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.Router.Get("/health", s.getHealth)
	s.Router.Route("/api/user", func(r chi.Router) {
		r.Post("/register", httpx.WrapHttpRsp(s.register))
		r.Post("/login", httpx.WrapHttpRsp(s.login))
		r.Post("/reissue", httpx.WrapHttpRsp(s.reissue))
		r.Post("/logout", httpx.WrapHttpRsp(s.logout))
	})
	s.Router.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/schedule/manual/calendar", httpx.WrapHttpRsp(s.listSchedules))
		r.Post("/api/schedule/manual/insert", httpx.WrapHttpRsp(s.insertSchedule))
		r.Put("/api/schedule/manual/update", httpx.WrapHttpRsp(s.updateSchedule))
		r.Delete("/api/schedule/manual/delete", httpx.WrapHttpRsp(s.deleteSchedule))
		r.Post("/api/schedule", httpx.WrapHttpRsp(s.generateSchedules))
		r.Post("/api/report/chat", httpx.WrapHttpRsp(s.chat))
		r.Get("/api/report", httpx.WrapHttpRsp(s.listReports))
		r.Get("/api/report/detail", httpx.WrapHttpRsp(s.reportDetail))
		r.Post("/api/reports/create", httpx.WrapHttpRsp(s.createReport))
	})
}

// ListenAndServe serves on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", s.cfg.Listen).Msg("dev server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
