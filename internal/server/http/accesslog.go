package httpserver

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// accessLog wraps every request with a structured zerolog line, alongside
// (not replacing) the rest of the fabric's log/slog instrumentation — the
// teacher's DOMAIN STACK names zerolog as the access-log library for this
// exact surface (SPEC_FULL.md's domain-stack table), grounded on
// adred-codev-ws_poc's zerolog request-logging convention
// (ws/internal/shared/monitoring/logger.go).
//
// /events and /events/ws are long-lived; this still logs them once, when
// the stream finally closes, with the full connection duration.
func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_ip", clientIP(r)).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets statusWriter still satisfy http.Flusher for the SSE handler,
// which type-asserts the ResponseWriter it receives.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.NewResponseController see through this wrapper to the
// underlying ResponseWriter's SetWriteDeadline, which push's SSE handler
// relies on for stall detection.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
