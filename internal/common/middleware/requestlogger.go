// Package middleware provides HTTP middleware for request logging, timeout
// handling and panic recovery on the development server.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/common/httpx"
	"github.com/neekly/neekly/internal/common/logtrace"
	"github.com/neekly/neekly/internal/common/uuid"
)

// RequestIDHeader carries the request ID. A well-formed client supplied ID
// is kept so client and server logs correlate.
const RequestIDHeader = "X-Neekly-Request-ID"

// RequestLogger logs each request and its outcome, and attaches a request
// scoped logger and request ID to the context.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		requestID := r.Header.Get(RequestIDHeader)
		clientID := uuid.IsRequestID(requestID)
		if !clientID {
			requestID = uuid.NewRequestID()
		}
		ctx = logtrace.WithRequestId(ctx, requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)
		rw := httpx.NewResponseWriter(w)

		ev := log.Ctx(ctx).Info().
			Str("requestMethod", r.Method).
			Str("requestPath", r.URL.Path).
			Str("remoteIP", r.RemoteAddr)
		if sent, ok := uuid.CreatedAt(requestID); ok && clientID {
			// a retried request reuses its ID, so this grows across attempts
			ev = ev.Dur("since_first_attempt", start.Sub(sent))
		}
		ev.Msg("incoming request")

		defer func() {
			log.Ctx(ctx).Info().
				Int("status", rw.Status()).
				Str("duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds())).
				Msg("request completed")
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}
