// Package authapi performs the three network operations that change session
// state: login, refresh and logout. It is the only code that talks to the
// session endpoints, and it writes results straight into the session store.
//
// The refresh credential is an HttpOnly cookie set by the server at login.
// It travels through the http.Client's cookie jar and is never read here.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/client/cookiestore"
	"github.com/neekly/neekly/internal/client/session"
)

// Endpoints are the server paths used for session operations.
type Endpoints struct {
	Login    string `yaml:"login,omitempty"`
	Register string `yaml:"register,omitempty"`
	Refresh  string `yaml:"refresh,omitempty"`
	Logout   string `yaml:"logout,omitempty"`
	Health   string `yaml:"health,omitempty"`
}

// DefaultEndpoints returns the paths served by the neekly backend.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:    "/api/user/login",
		Register: "/api/user/register",
		Refresh:  "/api/user/reissue",
		Logout:   "/api/user/logout",
		Health:   "/health",
	}
}

// Merge returns e with empty fields taken from defaults.
func (e Endpoints) Merge(defaults Endpoints) Endpoints {
	if e.Login == "" {
		e.Login = defaults.Login
	}
	if e.Register == "" {
		e.Register = defaults.Register
	}
	if e.Refresh == "" {
		e.Refresh = defaults.Refresh
	}
	if e.Logout == "" {
		e.Logout = defaults.Logout
	}
	if e.Health == "" {
		e.Health = defaults.Health
	}
	return e
}

// Client is the auth API client.
type Client struct {
	baseURL    string
	endpoints  Endpoints
	httpClient *http.Client
	store      *session.Store
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the session endpoint paths.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e.Merge(DefaultEndpoints())
	}
}

// New creates an auth API client. The http.Client should carry a cookie jar
// shared with the request pipeline; if it has none an in-memory jar is used.
func New(baseURL string, store *session.Store, hc *http.Client, opts ...Option) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Jar == nil {
		cp := *hc
		jar, err := cookiestore.New("")
		if err == nil {
			cp.Jar = jar
		}
		hc = &cp
	}
	c := &Client{
		baseURL:    baseURL,
		endpoints:  DefaultEndpoints(),
		httpClient: hc,
		store:      store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoints returns the endpoint paths in use.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session and stores it. A non-2xx
// response fails with ErrAuthenticationFailed carrying the HTTP status.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	log.Debug().Str("email", email).Int("password_len", len(password)).Msg("login request")

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}
	status, rspBody, err := c.post(ctx, c.endpoints.Login, body)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if !isSuccess(status) {
		log.Debug().Int("status", status).Msg("login rejected")
		return nil, clienterrors.ErrAuthenticationFailed.
			Msg(fmt.Sprintf("login failed: status %d", status)).
			SetStatusCode(status)
	}

	rsp, err := parseTokenResponse(rspBody)
	if err != nil {
		return nil, err
	}
	id := rsp.identity
	if !rsp.hasIdentity {
		id = session.Identity{Email: email}
	}
	c.store.SetSession(rsp.token, id)
	log.Debug().Str("email", id.Email).Stringer("shape", rsp.shape).Msg("login succeeded")
	return &session.Session{AccessToken: rsp.token, Identity: id}, nil
}

// Refresh obtains a new access token using the refresh cookie. The new
// token is stored with the identity from the response, or the previously
// known identity when the server omits it. Any failure clears the store and
// returns ErrRefreshFailed, so a failed refresh never leaves a half-valid
// session behind.
func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	s, err := c.refresh(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("token refresh failed, clearing session")
		c.store.Clear()
		return nil, clienterrors.ErrRefreshFailed.Err(err)
	}
	return s, nil
}

func (c *Client) refresh(ctx context.Context) (*session.Session, error) {
	previous, hadPrevious := c.store.Identity()

	status, body, err := c.post(ctx, c.endpoints.Refresh, nil)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if !isSuccess(status) {
		return nil, fmt.Errorf("refresh rejected: status %d", status)
	}
	rsp, err := parseTokenResponse(body)
	if err != nil {
		return nil, err
	}
	if rsp.shape != shapeAccessToken {
		return nil, clienterrors.ErrInvalidResponse.Msg("refresh response must carry accessToken")
	}

	id := rsp.identity
	if !rsp.hasIdentity {
		if !hadPrevious {
			return nil, clienterrors.ErrInvalidResponse.Msg("no user identity for refreshed session")
		}
		id = previous
	}
	c.store.SetSession(rsp.token, id)
	log.Debug().Str("email", id.Email).Msg("token refreshed")
	return &session.Session{AccessToken: rsp.token, Identity: id}, nil
}

// Logout asks the server to drop its session state and clears the local
// session. It never fails: server and network errors are logged and the
// store is cleared regardless.
func (c *Client) Logout(ctx context.Context) {
	defer func() {
		c.store.Clear()
		log.Debug().Msg("local session cleared")
	}()

	status, _, err := c.post(ctx, c.endpoints.Logout, nil)
	if err != nil {
		log.Warn().Err(err).Msg("logout request failed, ignoring")
		return
	}
	if !isSuccess(status) {
		log.Warn().Int("status", status).Msg("logout rejected by server, ignoring")
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserName string `json:"userName"`
}

// Register creates a new account. It does not log in; the server's response
// body is returned as is.
func (c *Client) Register(ctx context.Context, email, password, userName string) ([]byte, error) {
	body, err := json.Marshal(registerRequest{Email: email, Password: password, UserName: userName})
	if err != nil {
		return nil, fmt.Errorf("failed to encode register request: %w", err)
	}
	status, rspBody, err := c.post(ctx, c.endpoints.Register, body)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	if !isSuccess(status) {
		msg := serverMessage(rspBody)
		if msg == "" {
			msg = fmt.Sprintf("registration failed: status %d", status)
		}
		return nil, clienterrors.ErrRequestFailed.Msg(msg).SetStatusCode(status)
	}
	return rspBody, nil
}

// HealthAttempts is the number of probes made by Health before giving up.
const HealthAttempts = 3

// Health probes the server's health endpoint, retrying with backoff. It
// returns nil as soon as one probe gets a 2xx response.
func (c *Client) Health(ctx context.Context) error {
	return retry.Do(
		func() error {
			status, _, err := c.do(ctx, http.MethodGet, c.endpoints.Health, nil)
			if err != nil {
				return err
			}
			if !isSuccess(status) {
				return fmt.Errorf("health check returned status %d", status)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(HealthAttempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Uint("attempt", n+1).Err(err).Msg("health check failed, retrying")
		}),
	)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	return c.do(ctx, http.MethodPost, endpoint, body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid server URL: %w", err)
	}
	u.Path = path.Join(u.Path, endpoint)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	rspBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, rspBody, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
