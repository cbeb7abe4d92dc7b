package devserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/common/httpx"
)

var validate = validator.New()

type ctxEmailKey struct{}

func emailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(ctxEmailKey{}).(string)
	return email
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	UserName string `json:"userName"`
}

func (s *Server) register(r *http.Request) (*httpx.Response, error) {
	var req credentials
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	u, err := s.store.addUser(req.Email, req.Password, req.UserName)
	if err != nil {
		return nil, err
	}
	log.Ctx(r.Context()).Info().Str("email", u.Email).Msg("user registered")
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Response:   map[string]string{"email": u.Email, "userName": u.UserName},
	}, nil
}

func (s *Server) login(r *http.Request) (*httpx.Response, error) {
	var req credentials
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	u, err := s.store.authenticate(req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.issue(u.Email)
	if err != nil {
		return nil, httpx.ErrApplicationError("unable to issue token")
	}
	refresh, expires := s.store.newRefreshToken(u.Email, s.cfg.RefreshTokenTTL.Duration)

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: map[string]string{
			s.cfg.LoginTokenField: access,
			"userName":            u.UserName,
			"email":               u.Email,
		},
		Cookies: []*http.Cookie{s.refreshCookie(refresh, expires)},
	}, nil
}

func (s *Server) reissue(r *http.Request) (*httpx.Response, error) {
	s.refreshCalls.Add(1)
	if s.faults.refreshDown.Load() {
		return nil, httpx.ErrUnAuthorized("refresh unavailable")
	}
	c, err := r.Cookie(RefreshCookieName)
	if err != nil || c.Value == "" {
		return nil, httpx.ErrUnAuthorized("missing refresh token")
	}
	email, err := s.store.lookupRefreshToken(c.Value)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.issue(email)
	if err != nil {
		return nil, httpx.ErrApplicationError("unable to issue token")
	}
	rsp := map[string]string{"accessToken": access}
	if u, ok := s.store.user(email); ok {
		rsp["email"] = u.Email
		rsp["userName"] = u.UserName
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: rsp}, nil
}

func (s *Server) logout(r *http.Request) (*httpx.Response, error) {
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		s.store.revokeRefreshToken(c.Value)
	}
	expired := s.refreshCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]string{"status": "logged out"},
		Cookies:    []*http.Cookie{expired},
	}, nil
}

func (s *Server) refreshCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/api/user",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// authenticate requires a valid bearer access token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.faults.takeUnauthorized() {
			httpx.ErrUnAuthorized("token rejected").Send(w)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.ErrUnAuthorized("missing access token").Send(w)
			return
		}
		email, err := s.tokens.verify(token)
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("access token rejected")
			httpx.ErrUnAuthorized("invalid or expired access token").Send(w)
			return
		}
		if d := time.Duration(s.faults.delay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		ctx := context.WithValue(r.Context(), ctxEmailKey{}, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
