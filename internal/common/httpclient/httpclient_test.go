package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neekly/neekly/internal/client/auth"
	"github.com/neekly/neekly/internal/client/authapi"
	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/client/cookiestore"
	"github.com/neekly/neekly/internal/client/session"
)

type testConfig struct {
	serverURL string
	timeout   time.Duration
}

func (c testConfig) GetServerURL() string             { return c.serverURL }
func (c testConfig) GetRequestTimeout() time.Duration { return c.timeout }

func tokenExpiringIn(t *testing.T, d time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "jane@example.com",
		"exp": time.Now().Add(d).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

// backend is a scripted fake server. Business responses are taken from
// statuses in order; the last one repeats.
type backend struct {
	t *testing.T

	mu            sync.Mutex
	calls         []string
	authHeaders   []string
	contentTypes  []string
	bodies        []string
	requestIDs    []string
	statuses      []int
	businessBody  string
	refreshStatus int
	refreshToken  string
	refreshDelay  time.Duration
	delay         time.Duration
}

func (b *backend) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
	b.contentTypes = append(b.contentTypes, r.Header.Get("Content-Type"))
	b.bodies = append(b.bodies, string(body))
	b.requestIDs = append(b.requestIDs, r.Header.Get(RequestIDHeader))
}

func (b *backend) nextStatus() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.statuses) == 0 {
		return http.StatusOK
	}
	s := b.statuses[0]
	if len(b.statuses) > 1 {
		b.statuses = b.statuses[1:]
	}
	return s
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.record(r)
	switch r.URL.Path {
	case "/api/user/reissue":
		if b.refreshDelay > 0 {
			select {
			case <-time.After(b.refreshDelay):
			case <-r.Context().Done():
				return
			}
		}
		if b.refreshStatus != http.StatusOK {
			w.WriteHeader(b.refreshStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"accessToken": b.refreshToken})
	case "/api/user/logout":
		w.WriteHeader(http.StatusOK)
	case "/api/user/login":
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid credentials"}`))
	default:
		if b.delay > 0 {
			select {
			case <-time.After(b.delay):
			case <-r.Context().Done():
				return
			}
		}
		status := b.nextStatus()
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(b.businessBody))
		}
	}
}

func (b *backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

type harness struct {
	backend *backend
	store   *session.Store
	client  *HTTPClient
}

func newHarness(t *testing.T, b *backend) *harness {
	t.Helper()
	b.t = t
	if b.refreshStatus == 0 {
		b.refreshStatus = http.StatusOK
	}
	if b.refreshToken == "" {
		b.refreshToken = tokenExpiringIn(t, time.Hour)
	}
	if b.businessBody == "" {
		b.businessBody = `{"ok":true}`
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	jar, err := cookiestore.New("")
	require.NoError(t, err)
	store := session.NewStore(nil)
	cfg := testConfig{serverURL: srv.URL, timeout: 2 * time.Second}
	client := NewClient(cfg, nil, ClientOptions{Jar: jar})
	api := authapi.New(srv.URL, store, client.HTTP())
	client.auth = auth.NewService(store, api)
	return &harness{backend: b, store: store, client: client}
}

func (h *harness) login(t *testing.T, tok string) {
	t.Helper()
	h.store.SetSession(tok, session.Identity{Email: "jane@example.com", UserName: "Jane"})
}

func TestRefreshBeforeDispatchWhenNearExpiry(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t, tokenExpiringIn(t, 60*time.Second))

	rsp, err := h.client.Get(context.Background(), "/api/schedule", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, map[string]any{"ok": true}, rsp.Value)

	assert.Equal(t, []string{"POST /api/user/reissue", "GET /api/schedule"}, h.backend.Calls())
	assert.Equal(t, "Bearer "+h.backend.refreshToken, h.backend.authHeaders[1])
}

func TestNoRefreshWhenTokenIsFresh(t *testing.T) {
	h := newHarness(t, &backend{})
	tok := tokenExpiringIn(t, time.Hour)
	h.login(t, tok)

	_, err := h.client.Get(context.Background(), "/api/schedule", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /api/schedule"}, h.backend.Calls())
	assert.Equal(t, "Bearer "+tok, h.backend.authHeaders[0])
	assert.NotEmpty(t, h.backend.requestIDs[0])
}

func TestUnauthorizedIsRecoveredWithOneRetry(t *testing.T) {
	h := newHarness(t, &backend{statuses: []int{http.StatusUnauthorized, http.StatusOK}})
	h.login(t, tokenExpiringIn(t, time.Hour))

	rsp, err := h.client.Get(context.Background(), "/api/schedule", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(rsp.Body))

	assert.Equal(t, []string{
		"GET /api/schedule",
		"POST /api/user/reissue",
		"GET /api/schedule",
	}, h.backend.Calls())
	assert.Equal(t, "Bearer "+h.backend.refreshToken, h.backend.authHeaders[2])
	assert.Equal(t, h.backend.requestIDs[0], h.backend.requestIDs[2])
	assert.True(t, h.store.IsPresent())
}

func TestUnauthorizedWithFailedRefreshExpiresSession(t *testing.T) {
	h := newHarness(t, &backend{
		statuses:      []int{http.StatusUnauthorized},
		refreshStatus: http.StatusUnauthorized,
	})
	h.login(t, tokenExpiringIn(t, time.Hour))

	_, err := h.client.Get(context.Background(), "/api/schedule", nil)
	assert.ErrorIs(t, err, clienterrors.ErrSessionExpired)
	assert.False(t, h.store.IsPresent())

	calls := h.backend.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, []string{"GET /api/schedule", "POST /api/user/reissue"}, calls[:2])
	assert.NotContains(t, calls[2:], "GET /api/schedule")
}

func TestUnauthorizedAfterRetryExpiresSession(t *testing.T) {
	h := newHarness(t, &backend{statuses: []int{http.StatusUnauthorized}})
	h.login(t, tokenExpiringIn(t, time.Hour))

	_, err := h.client.Get(context.Background(), "/api/schedule", nil)
	assert.ErrorIs(t, err, clienterrors.ErrSessionExpired)
	assert.False(t, h.store.IsPresent())
	assert.Equal(t, []string{
		"GET /api/schedule",
		"POST /api/user/reissue",
		"GET /api/schedule",
		"POST /api/user/logout",
	}, h.backend.Calls())
}

func TestExpiredTokenIsRecoveredThroughRefreshCookie(t *testing.T) {
	h := newHarness(t, &backend{statuses: []int{http.StatusUnauthorized, http.StatusOK}})
	h.login(t, tokenExpiringIn(t, -time.Minute))

	_, err := h.client.Get(context.Background(), "/api/schedule", nil)
	require.NoError(t, err)
	assert.Equal(t, "", h.backend.authHeaders[0])
	assert.Equal(t, "Bearer "+h.backend.refreshToken, h.backend.authHeaders[2])
}

func TestGetStripsBodyAndContentType(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t, tokenExpiringIn(t, time.Hour))

	_, err := h.client.DoAuthenticated(context.Background(), RequestOptions{
		Method:  http.MethodGet,
		Path:    "/api/schedule",
		Body:    []byte(`{"rawText":"ignored"}`),
		Headers: http.Header{"Content-Type": []string{"application/json"}, "X-Extra": []string{"1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "", h.backend.bodies[0])
	assert.Equal(t, "", h.backend.contentTypes[0])
}

func TestPostCarriesBodyAndContentType(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t, tokenExpiringIn(t, time.Hour))

	_, err := h.client.Post(context.Background(), "/api/schedule", []byte(`{"rawText":"meet at 3"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"rawText":"meet at 3"}`, h.backend.bodies[0])
	assert.Equal(t, "application/json", h.backend.contentTypes[0])
}

func TestTimeoutDoesNotTriggerRecovery(t *testing.T) {
	h := newHarness(t, &backend{delay: 500 * time.Millisecond})
	h.login(t, tokenExpiringIn(t, time.Hour))

	start := time.Now()
	_, err := h.client.DoAuthenticated(context.Background(), RequestOptions{
		Method:  http.MethodGet,
		Path:    "/api/schedule",
		Timeout: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, clienterrors.ErrTimeout)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, []string{"GET /api/schedule"}, h.backend.Calls())
	assert.True(t, h.store.IsPresent())
}

func TestTimeoutBoundsPreflightRefresh(t *testing.T) {
	h := newHarness(t, &backend{refreshDelay: 3 * time.Second})
	h.login(t, tokenExpiringIn(t, 60*time.Second))

	start := time.Now()
	_, err := h.client.DoAuthenticated(context.Background(), RequestOptions{
		Method:  http.MethodGet,
		Path:    "/api/schedule",
		Timeout: 200 * time.Millisecond,
	})
	assert.ErrorIs(t, err, clienterrors.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.NotContains(t, h.backend.Calls(), "GET /api/schedule")
}

func TestCallerCancellationIsNotATimeout(t *testing.T) {
	h := newHarness(t, &backend{delay: 500 * time.Millisecond})
	h.login(t, tokenExpiringIn(t, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.client.Get(ctx, "/api/schedule", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, clienterrors.ErrTimeout)
	assert.ErrorIs(t, err, clienterrors.ErrRequestFailed)
}

func TestNonUnauthorizedErrorsAreNotRetried(t *testing.T) {
	h := newHarness(t, &backend{statuses: []int{http.StatusInternalServerError}})
	h.login(t, tokenExpiringIn(t, time.Hour))

	_, err := h.client.Get(context.Background(), "/api/schedule", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, clienterrors.ErrRequestFailed)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, "HTTP error! status: 500", httpErr.Message)
	assert.Equal(t, []string{"GET /api/schedule"}, h.backend.Calls())
}

func TestExcludedPathSkipsAuthentication(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t, tokenExpiringIn(t, 60*time.Second))

	_, err := h.client.DoRequest(context.Background(), RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/user/login",
		Body:   []byte(`{"email":"jane@example.com","password":"x"}`),
	})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "invalid credentials", httpErr.Message)
	assert.Equal(t, []string{"POST /api/user/login"}, h.backend.Calls())
	assert.Equal(t, "", h.backend.authHeaders[0])
	assert.True(t, h.store.IsPresent())
}

func TestDoAuthenticatedRequiresSession(t *testing.T) {
	h := newHarness(t, &backend{})

	_, err := h.client.Get(context.Background(), "/api/schedule", nil)
	assert.ErrorIs(t, err, clienterrors.ErrNotLoggedIn)
	assert.Empty(t, h.backend.Calls())
}

func TestNonJSONSuccessBody(t *testing.T) {
	h := newHarness(t, &backend{businessBody: "created"})
	h.login(t, tokenExpiringIn(t, time.Hour))

	rsp, err := h.client.Post(context.Background(), "/api/schedule/manual/insert", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, rsp.Value)
	assert.Equal(t, "created", string(rsp.Body))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"schedule not found"}`, "schedule not found"},
		{`{"error":"bad request"}`, "bad request"},
		{`{"message":"","error":"fallback"}`, "fallback"},
		{`{"code":7}`, `{"code":7}`},
		{"upstream unavailable\n", "upstream unavailable"},
		{"", "HTTP error! status: 418"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorMessage(http.StatusTeapot, []byte(tt.body)), tt.body)
	}
}

func TestHandlerTransport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/report", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "seen", Value: "1", Path: "/"})
		w.Write([]byte(`[{"reportUid":"r1"}]`))
	})
	jar, err := cookiestore.New("")
	require.NoError(t, err)

	store := session.NewStore(nil)
	store.SetSession(tokenExpiringIn(t, time.Hour), session.Identity{Email: "jane@example.com"})
	cfg := testConfig{serverURL: "http://neekly.test"}
	svc := auth.NewService(store, authapi.New(cfg.serverURL, store, nil))
	client := NewTestClient(cfg, svc, mux, jar)

	rsp, err := client.Get(context.Background(), "/api/report", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"reportUid": "r1"}}, rsp.Value)
	assert.Equal(t, 1, jar.Len())
}
