// Package clienterrors defines the errors surfaced by the neekly client
// library. Callers match them with errors.Is; the concrete values may wrap
// the underlying transport or decoding failure.
package clienterrors

import (
	"net/http"

	"github.com/neekly/neekly/internal/common/apperrors"
)

var (
	// ErrClient is the root of every client error.
	ErrClient = apperrors.New("client error").SetExpandError(true)

	// ErrAuthenticationFailed is returned when the server rejects login credentials.
	ErrAuthenticationFailed = ErrClient.New("authentication failed").SetStatusCode(http.StatusUnauthorized)

	// ErrRefreshFailed is returned when a refresh could not produce a new access token.
	// The token store is always cleared before it is returned.
	ErrRefreshFailed = ErrClient.New("token refresh failed").SetStatusCode(http.StatusUnauthorized)

	// ErrSessionExpired is terminal: the session was logged out and the user must log in again.
	ErrSessionExpired = ErrClient.New("session expired, please log in again").SetStatusCode(http.StatusUnauthorized)

	// ErrNoToken means an auth header was requested without a token in the store.
	ErrNoToken = ErrClient.New("no access token available")

	// ErrNotLoggedIn is returned by authenticated-only calls when no session exists.
	ErrNotLoggedIn = ErrClient.New("login required").SetStatusCode(http.StatusUnauthorized)

	// ErrRequestFailed is matched by every non-2xx response from a business endpoint.
	ErrRequestFailed = ErrClient.New("request failed")

	// ErrTimeout is returned when a request exceeds its time budget.
	ErrTimeout = ErrClient.New("request timed out").SetStatusCode(http.StatusGatewayTimeout)

	// ErrInvalidResponse is returned when a server response cannot be normalized.
	ErrInvalidResponse = ErrClient.New("invalid server response")
)
