package authapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/client/cookiestore"
	"github.com/neekly/neekly/internal/client/session"
)

func testToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "jane@example.com",
		"exp": time.Now().Add(ttl).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(session.NewFilePersister(filepath.Join(t.TempDir(), "session.yaml")))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestLoginStoresSessionAndCookie(t *testing.T) {
	tok := testToken(t, time.Hour)
	var refreshCookie atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/user/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if req.Password != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r-1", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]string{"token": tok, "userName": "Jane", "email": req.Email})
	})
	mux.HandleFunc("POST /api/user/reissue", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("refreshToken")
		if err == nil {
			refreshCookie.Store(c.Value)
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar, err := cookiestore.New(filepath.Join(t.TempDir(), "cookies.yaml"))
	require.NoError(t, err)
	store := newStore(t)
	c := New(srv.URL, store, &http.Client{Jar: jar})

	s, err := c.Login(context.Background(), "jane@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, tok, s.AccessToken)
	assert.Equal(t, session.Identity{Email: "jane@example.com", UserName: "Jane"}, s.Identity)

	got, ok := store.Session()
	require.True(t, ok)
	assert.Equal(t, *s, got)
	assert.Equal(t, 1, jar.Len())

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r-1", refreshCookie.Load())
}

func TestLoginAcceptsAccessTokenShape(t *testing.T) {
	tok := testToken(t, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok})
	}))
	defer srv.Close()

	store := newStore(t)
	s, err := New(srv.URL, store, nil).Login(context.Background(), "jane@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, tok, s.AccessToken)
	assert.Equal(t, "jane@example.com", s.Identity.Email)
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "bad credentials"})
	}))
	defer srv.Close()

	store := newStore(t)
	_, err := New(srv.URL, store, nil).Login(context.Background(), "jane@example.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, clienterrors.ErrAuthenticationFailed)
	var ae interface{ StatusCode() int }
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.StatusCode())
	assert.False(t, store.IsPresent())
}

func TestLoginMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("welcome"))
	}))
	defer srv.Close()

	store := newStore(t)
	_, err := New(srv.URL, store, nil).Login(context.Background(), "jane@example.com", "pw")
	assert.ErrorIs(t, err, clienterrors.ErrInvalidResponse)
	assert.False(t, store.IsPresent())
}

func TestRefreshKeepsPreviousIdentity(t *testing.T) {
	newTok := testToken(t, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user/reissue", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": newTok})
	}))
	defer srv.Close()

	store := newStore(t)
	id := session.Identity{Email: "jane@example.com", UserName: "Jane"}
	store.SetSession(testToken(t, time.Minute), id)

	s, err := New(srv.URL, store, nil).Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newTok, s.AccessToken)
	assert.Equal(t, id, s.Identity)
	tok, _ := store.Token()
	assert.Equal(t, newTok, tok)
}

func TestRefreshFailureClearsStore(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "bare string body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("eyJhbGciOiJIUzI1NiJ9.e30.sig"))
			},
		},
		{
			name: "legacy token field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"token": "abc"})
			},
		},
		{
			name: "empty access token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"accessToken": ""})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			store := newStore(t)
			store.SetSession(testToken(t, time.Minute), session.Identity{Email: "jane@example.com"})

			_, err := New(srv.URL, store, nil).Refresh(context.Background())
			assert.ErrorIs(t, err, clienterrors.ErrRefreshFailed)
			assert.False(t, store.IsPresent())
		})
	}
}

func TestRefreshNetworkFailureClearsStore(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := newStore(t)
	store.SetSession(testToken(t, time.Minute), session.Identity{Email: "jane@example.com"})

	_, err := New(url, store, nil).Refresh(context.Background())
	assert.ErrorIs(t, err, clienterrors.ErrRefreshFailed)
	assert.False(t, store.IsPresent())
}

func TestRefreshWithoutIdentityFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "abc"})
	}))
	defer srv.Close()

	store := newStore(t)
	_, err := New(srv.URL, store, nil).Refresh(context.Background())
	assert.ErrorIs(t, err, clienterrors.ErrRefreshFailed)
	assert.ErrorIs(t, err, clienterrors.ErrInvalidResponse)
}

func TestLogoutUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := newStore(t)
	store.SetSession(testToken(t, time.Hour), session.Identity{Email: "jane@example.com"})

	assert.NotPanics(t, func() {
		New(url, store, nil).Logout(context.Background())
	})
	assert.False(t, store.IsPresent())
}

func TestLogoutServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/custom/logout", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newStore(t)
	store.SetSession(testToken(t, time.Hour), session.Identity{Email: "jane@example.com"})

	New(srv.URL, store, nil, WithEndpoints(Endpoints{Logout: "/custom/logout"})).Logout(context.Background())
	assert.False(t, store.IsPresent())
	assert.Equal(t, int32(1), calls.Load())
}

func TestEndpointsMerge(t *testing.T) {
	e := Endpoints{Refresh: "/api/auth/refresh"}.Merge(DefaultEndpoints())
	assert.Equal(t, "/api/user/login", e.Login)
	assert.Equal(t, "/api/auth/refresh", e.Refresh)
	assert.Equal(t, "/api/user/logout", e.Logout)
	assert.Equal(t, "/api/user/register", e.Register)
}

func TestParseTokenResponse(t *testing.T) {
	rsp, err := parseTokenResponse([]byte(`{"accessToken":"a","token":"b","email":"x@y.z","userName":"X"}`))
	require.NoError(t, err)
	assert.Equal(t, shapeAccessToken, rsp.shape)
	assert.Equal(t, "a", rsp.token)
	assert.True(t, rsp.hasIdentity)

	rsp, err = parseTokenResponse([]byte(`{"token":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, shapeToken, rsp.shape)
	assert.False(t, rsp.hasIdentity)

	_, err = parseTokenResponse([]byte(`["a"]`))
	assert.ErrorIs(t, err, clienterrors.ErrInvalidResponse)
	_, err = parseTokenResponse([]byte(`{"accessToken":42}`))
	assert.ErrorIs(t, err, clienterrors.ErrInvalidResponse)
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/user/register", func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Email == "taken@example.com" {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "email already registered"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"email": req.Email, "userName": req.UserName})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newStore(t)
	c := New(srv.URL, store, nil)

	body, err := c.Register(context.Background(), "jane@example.com", "pw", "Jane")
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"jane@example.com","userName":"Jane"}`, string(body))
	assert.False(t, store.IsPresent())

	_, err = c.Register(context.Background(), "taken@example.com", "pw", "Jane")
	assert.ErrorIs(t, err, clienterrors.ErrRequestFailed)
	assert.EqualError(t, err, "email already registered")
}

func TestHealthRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, newStore(t), nil).Health(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHealthGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL, newStore(t), nil).Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(HealthAttempts), calls.Load())
}
