package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs each request with method, path, status and duration.
func LoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		})
	}
}

// IdentityMiddleware parses the session cookie, when present, into an
// Identity on the context. Absence is not an error: public routes and the
// anonymous booking flow run without one.
func IdentityMiddleware(sessions *auth.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.CookieName)
			if err == nil && cookie.Value != "" {
				if identity, err := sessions.Parse(cookie.Value); err == nil {
					ctx := context.WithValue(r.Context(), identityKey, &identity)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates a subtree to callers holding a valid session in the role.
func RequireRole(role scheduling.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFrom(r.Context())
			if identity == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "a valid session is required")
				return
			}
			if identity.Role != role {
				writeError(w, http.StatusForbidden, "forbidden", "this area is not available to your role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFrom retrieves the session identity from context, nil when the
// caller is anonymous.
func IdentityFrom(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
