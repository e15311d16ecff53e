package middleware

import (
	"log/slog"
	"net/http"

	"github.com/sedirimou/Gameva-sub003/pkg/logger"
)

const (
	// SessionHeader identifies an anonymous shopper.
	SessionHeader = "X-Session-ID"
	// SessionCookie is the storefront's anonymous session cookie.
	SessionCookie = "session_id"
	// UserHeader carries the user id set by the gateway for signed-in shoppers.
	UserHeader = "X-User-ID"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// the correlation id, the shopper identity (user id, else session id) and
// the trace ids. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID := UserIDFromContext(ctx)
			if userID == "" {
				userID = r.Header.Get(UserHeader)
			}
			if userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			if sid := sessionID(r); sid != "" {
				ctx = logger.WithSessionID(ctx, sid)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionID(r *http.Request) string {
	if sid := r.Header.Get(SessionHeader); sid != "" {
		return sid
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
