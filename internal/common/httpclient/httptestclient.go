package httpclient

import (
	"net/http"
	"net/http/httptest"
)

// HandlerTransport is an http.RoundTripper that serves requests from an
// in-process handler. It uses httptest.NewRecorder to capture responses
// without making network calls.
type HandlerTransport struct {
	Handler http.Handler
}

// RoundTrip serves req with the handler and converts the recording into a response.
func (t *HandlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rr := httptest.NewRecorder()
	t.Handler.ServeHTTP(rr, req)
	resp := rr.Result()
	resp.Request = req
	return resp, nil
}

// NewTestClient creates a pipeline client that sends every request to the
// given handler instead of the network. Cookies set by the handler are kept
// in jar, which may be nil.
func NewTestClient(config Configurator, authn Authenticator, handler http.Handler, jar http.CookieJar) *HTTPClient {
	return NewClientWithOptions(config, authn, ClientOptions{
		Jar:       jar,
		Transport: &HandlerTransport{Handler: handler},
	})
}
