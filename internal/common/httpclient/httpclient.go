// Package httpclient is the authenticated request pipeline used for every
// business call to the neekly server. Before dispatch it refreshes a token
// that is about to expire and injects the bearer header. A 401 response is
// recovered by one refresh and exactly one retry; if that fails the session
// is logged out and the caller gets ErrSessionExpired.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/neekly/neekly/internal/client/auth"
	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/common/logtrace"
	"github.com/neekly/neekly/internal/common/uuid"
)

// DefaultTimeout bounds a request, including recovery and retry, when
// neither the configuration nor the request sets one.
const DefaultTimeout = 10 * time.Second

// RequestIDHeader carries the per-call correlation ID.
const RequestIDHeader = "X-Neekly-Request-ID"

// maxAttempts is the original dispatch plus one retry after a refresh.
const maxAttempts = 2

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Configurator provides the server location and default request timeout.
type Configurator interface {
	GetServerURL() string
	GetRequestTimeout() time.Duration
}

// Authenticator is the session façade the pipeline consults.
// *auth.Service implements it.
type Authenticator interface {
	IsAuthenticated() bool
	HasSession() bool
	CheckAndRefreshToken(ctx context.Context) (auth.RefreshOutcome, error)
	Refresh(ctx context.Context) (auth.RefreshOutcome, error)
	AuthHeaders() (http.Header, error)
	Logout(ctx context.Context)
}

// HTTPError is returned for any non-2xx response that is not recovered.
// It matches clienterrors.ErrRequestFailed with errors.Is.
type HTTPError struct {
	StatusCode int    // HTTP status code of the error
	Message    string // server supplied message, raw body, or a generic fallback
}

// Error implements the error interface for HTTPError.
func (e *HTTPError) Error() string {
	return e.Message
}

// Is reports whether target is ErrRequestFailed or one of its ancestors.
func (e *HTTPError) Is(target error) bool {
	return errors.Is(clienterrors.ErrRequestFailed, target)
}

// HTTPClient sends requests through the authentication pipeline.
type HTTPClient struct {
	config     Configurator
	auth       Authenticator
	httpClient *http.Client
	excluded   []string
}

// ClientOptions contains options for configuring the HTTP client.
type ClientOptions struct {
	DisableCertValidation bool              // If true, skips TLS certificate validation
	Jar                   http.CookieJar    // cookie jar shared with the auth API client
	Transport             http.RoundTripper // overrides the default transport
	ExcludedPaths         []string          // paths that bypass authentication, default /login and /register
}

// DefaultExcludedPaths are path fragments that never get a refresh check, an
// Authorization header or 401 recovery.
var DefaultExcludedPaths = []string{"/login", "/register"}

// NewClient creates a new pipeline client using the provided configuration
// and session façade.
func NewClient(config Configurator, authn Authenticator, opts ...ClientOptions) *HTTPClient {
	clientOpts := ClientOptions{}
	if len(opts) > 0 {
		clientOpts = opts[0]
	}
	return NewClientWithOptions(config, authn, clientOpts)
}

// NewClientWithOptions creates a new pipeline client using the provided
// configuration, session façade and options.
func NewClientWithOptions(config Configurator, authn Authenticator, opts ClientOptions) *HTTPClient {
	httpClient := &http.Client{Jar: opts.Jar}

	switch {
	case opts.Transport != nil:
		httpClient.Transport = opts.Transport
	case opts.DisableCertValidation:
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	excluded := opts.ExcludedPaths
	if len(excluded) == 0 {
		excluded = DefaultExcludedPaths
	}
	return &HTTPClient{
		config:     config,
		auth:       authn,
		httpClient: httpClient,
		excluded:   excluded,
	}
}

// HTTP returns the underlying *http.Client, so that the auth API client can
// share its transport and cookie jar.
func (c *HTTPClient) HTTP() *http.Client {
	return c.httpClient
}

// RequestOptions contains options for making HTTP requests.
// Only Method and Path are required.
type RequestOptions struct {
	Method      string            // HTTP method (GET, POST, PUT, DELETE)
	Path        string            // API endpoint path
	QueryParams map[string]string // Optional query parameters
	Headers     http.Header       // Optional extra headers
	Body        []byte            // Optional request body, dropped for GET
	Timeout     time.Duration     // Optional per-call timeout
}

// Response is a successful (2xx) response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Value is the decoded JSON body, or nil if the body is empty or not JSON.
	Value    any
	Location string
}

// attemptResult is the outcome of one dispatch.
type attemptResult struct {
	status int
	header http.Header
	body   []byte
	err    error
}

func (r attemptResult) unauthorized() bool {
	return r.err == nil && r.status == http.StatusUnauthorized
}

func (r attemptResult) success() bool {
	return r.err == nil && r.status >= 200 && r.status < 300
}

// DoRequest sends a request through the pipeline. Non-2xx responses are
// returned as *HTTPError except a 401 on an authenticated path, which is
// recovered with one refresh and one retry.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) (*Response, error) {
	requestID := newRequestID()
	ctx = logtrace.WithRequestId(ctx, requestID)
	logger := log.Ctx(ctx).With().Str("request_id", requestID).Str("method", opts.Method).Str("path", opts.Path).Logger()
	ctx = logger.WithContext(ctx)

	excluded := c.isExcluded(opts.Path)

	// one deadline covers the refresh check and every attempt
	timeout := c.timeout(opts)
	tctx, cancel := context.WithTimeoutCause(ctx, timeout, clienterrors.ErrTimeout)
	defer cancel()

	if !excluded && c.auth.IsAuthenticated() {
		outcome, err := c.auth.CheckAndRefreshToken(tctx)
		if err != nil {
			if isTimeout(tctx) {
				return nil, timeoutError(timeout)
			}
			return nil, err
		}
		logger.Debug().Stringer("refresh", outcome).Msg("refresh check done")
	}

	var last attemptResult
	for attempt := 0; attempt < maxAttempts; attempt++ {
		headers, err := c.requestHeaders(opts, requestID, excluded)
		if err != nil {
			return nil, err
		}

		last = c.dispatch(tctx, opts, headers)
		if last.err != nil {
			return nil, c.transportError(tctx, last.err, timeout)
		}
		logger.Debug().Int("attempt", attempt+1).Int("status", last.status).Msg("response received")

		if !last.unauthorized() || excluded {
			break
		}
		if attempt > 0 {
			logger.Debug().Msg("unauthorized after refresh, logging out")
			c.auth.Logout(tctx)
			return nil, clienterrors.ErrSessionExpired
		}
		if _, err := c.auth.Refresh(tctx); err != nil {
			if isTimeout(tctx) {
				return nil, timeoutError(timeout)
			}
			return nil, err
		}
	}

	if !last.success() {
		return nil, newHTTPError(last.status, last.body)
	}
	return newResponse(last), nil
}

// DoAuthenticated is DoRequest for calls that require a session. It fails
// fast with ErrNotLoggedIn when no token is held.
func (c *HTTPClient) DoAuthenticated(ctx context.Context, opts RequestOptions) (*Response, error) {
	if !c.auth.HasSession() {
		return nil, clienterrors.ErrNotLoggedIn
	}
	return c.DoRequest(ctx, opts)
}

// Get sends an authenticated GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, queryParams map[string]string) (*Response, error) {
	return c.DoAuthenticated(ctx, RequestOptions{
		Method:      http.MethodGet,
		Path:        path,
		QueryParams: queryParams,
	})
}

// Post sends an authenticated POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.DoAuthenticated(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}

// Put sends an authenticated PUT request with a JSON body.
func (c *HTTPClient) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.DoAuthenticated(ctx, RequestOptions{
		Method: http.MethodPut,
		Path:   path,
		Body:   body,
	})
}

// Delete sends an authenticated DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string, queryParams map[string]string) (*Response, error) {
	return c.DoAuthenticated(ctx, RequestOptions{
		Method:      http.MethodDelete,
		Path:        path,
		QueryParams: queryParams,
	})
}

func (c *HTTPClient) isExcluded(p string) bool {
	for _, e := range c.excluded {
		if strings.Contains(p, e) {
			return true
		}
	}
	return false
}

func (c *HTTPClient) timeout(opts RequestOptions) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	if t := c.config.GetRequestTimeout(); t > 0 {
		return t
	}
	return DefaultTimeout
}

// requestHeaders builds the headers for one attempt. The token is read from
// the session on every call so a retry carries the refreshed token.
func (c *HTTPClient) requestHeaders(opts RequestOptions, requestID string, excluded bool) (http.Header, error) {
	h := make(http.Header)
	if opts.Method != http.MethodGet {
		h.Set("Content-Type", "application/json")
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	if !excluded && c.auth.IsAuthenticated() {
		authHeaders, err := c.auth.AuthHeaders()
		if err != nil {
			return nil, err
		}
		for k := range authHeaders {
			h.Set(k, authHeaders.Get(k))
		}
	}
	if opts.Method == http.MethodGet {
		h.Del("Content-Type")
	}
	h.Set(RequestIDHeader, requestID)
	return h, nil
}

func (c *HTTPClient) buildURL(opts RequestOptions) (string, error) {
	u, err := url.Parse(c.config.GetServerURL())
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Path = path.Join(u.Path, opts.Path)

	q := u.Query()
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *HTTPClient) dispatch(ctx context.Context, opts RequestOptions, headers http.Header) attemptResult {
	target, err := c.buildURL(opts)
	if err != nil {
		return attemptResult{err: err}
	}

	var body io.Reader
	if opts.Method != http.MethodGet && len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, target, body)
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header = headers

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	rspBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to read response body: %w", err)}
	}
	return attemptResult{status: resp.StatusCode, header: resp.Header, body: rspBody}
}

func (c *HTTPClient) transportError(ctx context.Context, err error, timeout time.Duration) error {
	if isTimeout(ctx) {
		return timeoutError(timeout)
	}
	return clienterrors.ErrRequestFailed.Err(err)
}

func isTimeout(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), clienterrors.ErrTimeout)
}

func timeoutError(timeout time.Duration) error {
	return clienterrors.ErrTimeout.Msg(fmt.Sprintf("request timed out after %s", timeout))
}

func newResponse(r attemptResult) *Response {
	rsp := &Response{
		StatusCode: r.status,
		Header:     r.header,
		Body:       r.body,
		Location:   r.header.Get("Location"),
	}
	if len(bytes.TrimSpace(r.body)) > 0 {
		var v any
		if err := json.Unmarshal(r.body, &v); err == nil {
			rsp.Value = v
		}
	}
	return rsp
}

// newHTTPError builds an HTTPError, taking the message from a JSON
// "message" or "error" field, then the raw body text, then a generic
// status line.
func newHTTPError(status int, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: status,
		Message:    errorMessage(status, body),
	}
}

func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"message", "error"} {
			if v := gjson.GetBytes(body, key); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}

func newRequestID() string {
	return uuid.NewRequestID()
}
