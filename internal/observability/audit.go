package observability

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Audit writes one security audit line for an HTTP-facing decision. Denials and failures
// are logged at warn so they surface above routine traffic. Durable audit rows are
// written by the services.
func Audit(r *http.Request, event string, attrs ...any) {
	auditTo(r.Context(), slog.Default(), r, event, attrs...)
}

func auditTo(ctx context.Context, logger *slog.Logger, r *http.Request, event string, attrs ...any) {
	args := make([]any, 0, 14+len(attrs))
	args = append(args,
		"event", event,
		"category", auditCategory(event),
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
		"remote_ip", ClientIP(r),
		"user_agent", r.UserAgent(),
	)
	args = append(args, attrs...)
	logger.Log(ctx, auditLevel(event), "security audit", args...)
}

func auditCategory(event string) string {
	if i := strings.IndexByte(event, '.'); i > 0 {
		return event[:i]
	}
	if event == "" {
		return "unknown"
	}
	return event
}

func auditLevel(event string) slog.Level {
	for _, suffix := range []string{".denied", ".failed", ".locked", ".blocked"} {
		if strings.HasSuffix(event, suffix) {
			return slog.LevelWarn
		}
	}
	return slog.LevelInfo
}
