package httpclient

import (
	"context"
)

// HTTPClientInterface is the request surface used by the API wrappers.
// Implementations must run every call through the authentication pipeline.
type HTTPClientInterface interface {
	// DoRequest sends a request. Non-2xx responses are returned as errors.
	DoRequest(ctx context.Context, opts RequestOptions) (*Response, error)

	// DoAuthenticated is DoRequest for calls that require a session. It
	// returns ErrNotLoggedIn without touching the network when logged out.
	DoAuthenticated(ctx context.Context, opts RequestOptions) (*Response, error)

	// Get, Post, Put and Delete are DoAuthenticated shorthands.
	Get(ctx context.Context, path string, queryParams map[string]string) (*Response, error)
	Post(ctx context.Context, path string, body []byte) (*Response, error)
	Put(ctx context.Context, path string, body []byte) (*Response, error)
	Delete(ctx context.Context, path string, queryParams map[string]string) (*Response, error)
}

// Verify that HTTPClient implements HTTPClientInterface.
var _ HTTPClientInterface = &HTTPClient{}
