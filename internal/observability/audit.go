package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Audit logs a session security event. Request metadata is grouped under
// "audit" and caller attributes follow at the top level.
func Audit(r *http.Request, event string, attrs ...any) {
	ctx := r.Context()
	slog.Default().With(slog.Group("audit",
		slog.String("event", event),
		slog.String("request_id", chimiddleware.GetReqID(ctx)),
		slog.String("route", r.Method+" "+r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)).InfoContext(ctx, "session audit", attrs...)
}
