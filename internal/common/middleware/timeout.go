package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/common/httpx"
)

// SetTimeout bounds handler execution. When the deadline passes before the
// handler has written anything, the client gets a 408.
func SetTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			rw := httpx.NewResponseWriter(w)
			done := make(chan struct{})
			go func() {
				defer close(done)
				defer func() {
					if p := recover(); p != nil {
						log.Ctx(ctx).Error().Interface("panic", p).Str("path", r.URL.Path).Msg("handler panicked after timeout setup")
					}
				}()
				next.ServeHTTP(rw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if !rw.Close() {
					httpx.ErrRequestTimeout().Send(w)
				}
				log.Ctx(ctx).Warn().
					Str("path", r.URL.Path).
					Dur("limit", timeout).
					Msg("request timed out")
			}
		})
	}
}
