package ui

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/luna/internal/controller"
)

type contextKey string

const (
	controllerContextKey contextKey = "controller"
	cookieContextKey     contextKey = "cookie"
)

// ControllerFromContext returns the signed-in controller for the request.
func ControllerFromContext(ctx context.Context) *controller.Controller {
	ctl, _ := ctx.Value(controllerContextKey).(*controller.Controller)
	return ctl
}

func cookieFromContext(ctx context.Context) string {
	id, _ := ctx.Value(cookieContextKey).(string)
	return id
}

// AuthMiddleware resolves the browser's session and adds its controller to
// the request context. Requests without a live session are redirected to
// the auth page.
func (ui *UI) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := cookieID(r)
		ctl, err := ui.sessions.Lookup(r.Context(), id)
		if err != nil {
			ui.logger.Error("session lookup failed", "error", err)
		}
		if ctl == nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), controllerContextKey, ctl)
		ctx = context.WithValue(ctx, cookieContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests at INFO level (method, path, status, duration).
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
