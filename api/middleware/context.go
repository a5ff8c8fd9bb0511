package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	ctxTerminalID contextKey = "terminal_id"

	terminalIDHeader = "X-Terminal-Id"
	maxTerminalIDLen = 64
)

// TerminalIDFromContext returns the calling terminal, or "" when the client sent none.
func TerminalIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTerminalID).(string); ok {
		return v
	}
	return ""
}

// WithTerminalID injects the terminal identifier into the context.
func WithTerminalID(ctx context.Context, terminalID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTerminalID, terminalID)
}

// Terminal copies the X-Terminal-Id header into the request context and log fields.
func Terminal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(terminalIDHeader))
		if len(id) > maxTerminalIDLen {
			id = id[:maxTerminalIDLen]
		}
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTerminalID(r.Context(), id)))
	})
}
