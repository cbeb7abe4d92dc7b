package httpx

import (
	"net/http"
	"sync"
)

// ResponseWriter wraps http.ResponseWriter and records whether and with
// which status the response was started. It is safe for concurrent use so
// a timeout can race the handler.
type ResponseWriter struct {
	http.ResponseWriter
	mu      sync.Mutex
	written bool
	closed  bool
	status  int
}

// NewResponseWriter creates a new ResponseWriter wrapping w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader is a no-op after the first call or after Close.
func (rw *ResponseWriter) WriteHeader(code int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.writeHeaderLocked(code)
}

func (rw *ResponseWriter) writeHeaderLocked(code int) {
	if rw.written || rw.closed {
		return
	}
	rw.status = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return 0, http.ErrHandlerTimeout
	}
	if !rw.written {
		rw.writeHeaderLocked(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Close makes later writes fail with http.ErrHandlerTimeout. It reports
// whether the response had already been started.
func (rw *ResponseWriter) Close() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.closed = true
	return rw.written
}

// Written reports whether the response was started.
func (rw *ResponseWriter) Written() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.written
}

// Status returns the response status, http.StatusOK if none was written.
func (rw *ResponseWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// Flush implements http.Flusher if the underlying writer supports it.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
