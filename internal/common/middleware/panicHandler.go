package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/common/httpx"
)

// PanicHandler recovers handler panics, logs the stack and replies 500 when
// nothing has been written yet.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			log.Ctx(r.Context()).Error().
				Interface("panic", p).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			if !rw.Written() {
				httpx.ErrApplicationError("unable to process request").Send(rw)
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
