package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tair/inventory-engine/pkg/auth"
	"github.com/tair/inventory-engine/pkg/logger"
)

type contextKey string

const (
	ActorIDKey  contextKey = "actor_id"
	UsernameKey contextKey = "username"
	RoleKey     contextKey = "role"
)

// ActorFromContext returns the authenticated actor, or "" on public routes.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ActorIDKey).(string)
	return actor
}

// Authenticator validates bearer tokens issued by the user service.
type Authenticator struct {
	validator *auth.Validator
}

func NewAuthenticator(validator *auth.Validator) *Authenticator {
	return &Authenticator{validator: validator}
}

// Authenticate validates JWT token
func (a *Authenticator) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Authorization header required", Code: "UNAUTHORIZED"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid authorization header format", Code: "UNAUTHORIZED"})
			return
		}

		claims, err := a.validator.ValidateToken(parts[1])
		if err != nil {
			logger.Warn(r.Context()).Err(err).Msg("Rejected bearer token")
			respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid token", Code: "UNAUTHORIZED"})
			return
		}

		ctx := context.WithValue(r.Context(), ActorIDKey, claims.ActorID())
		ctx = context.WithValue(ctx, UsernameKey, claims.Username)
		ctx = context.WithValue(ctx, RoleKey, claims.Role)
		ctx = logger.With(ctx, "actor_id", claims.ActorID())

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequireAdmin checks if user has admin role
func (a *Authenticator) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		role, ok := r.Context().Value(RoleKey).(string)
		if !ok || role != auth.RoleAdmin {
			respondJSON(w, http.StatusForbidden, Response{Success: false, Error: "Admin access required", Code: "FORBIDDEN"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs HTTP requests with structured logging
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		l := logger.WithContext(r.Context())
		logEvent := l.Info()
		if ww.statusCode >= 500 {
			logEvent = l.Error()
		} else if ww.statusCode >= 400 {
			logEvent = l.Warn()
		}

		if key := r.Header.Get(IdempotencyHeader); key != "" {
			logEvent = logEvent.Str("idempotency_key", key)
		}

		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.statusCode).
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("HTTP request completed")
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// TracingMiddleware wraps HTTP handlers with OpenTelemetry tracing
func TracingMiddleware(operationName string, next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, operationName)
}
