package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"cdr.dev/slog/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"example.com/exercisetracker/internal/observability"
)

// instrument logs every request and records its latency under the matched
// route pattern.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		observability.ObserveRequest(route, r.Method, status, elapsed)

		h.logger.Info(r.Context(), "http request",
			slog.F("method", r.Method),
			slog.F("path", r.URL.Path),
			slog.F("route", route),
			slog.F("status", status),
			slog.F("bytes", ww.BytesWritten()),
			slog.F("duration", elapsed),
		)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.Error(r.Context(), "panic serving request",
				slog.F("method", r.Method),
				slog.F("path", r.URL.Path),
				slog.F("panic", fmt.Sprint(rec)),
				slog.F("stack", string(debug.Stack())),
			)
			writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}()
		next.ServeHTTP(w, r)
	})
}
