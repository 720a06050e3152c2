package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/tair/inventory-engine/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// MiddlewareConfig holds configuration for middlewares
type MiddlewareConfig struct {
	EnableLogging   bool
	EnableTracing   bool
	EnableCORS      bool
	EnableRecovery  bool
	EnableTimeout   bool
	TimeoutDuration time.Duration
	// MaxBodyBytes caps request bodies; bulk job submissions are the largest.
	MaxBodyBytes int64
	CORSOptions  cors.Options
}

// DefaultMiddlewareConfig returns the middleware stack used by the inventory API
func DefaultMiddlewareConfig(timeout time.Duration, maxBodyBytes int64, origins []string) *MiddlewareConfig {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &MiddlewareConfig{
		EnableLogging:   true,
		EnableTracing:   true,
		EnableCORS:      true,
		EnableRecovery:  true,
		EnableTimeout:   true,
		TimeoutDuration: timeout,
		MaxBodyBytes:    maxBodyBytes,
		CORSOptions: cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", IdempotencyHeader, RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			// Credentials cannot be combined with a wildcard origin
			AllowCredentials: !(len(origins) == 1 && origins[0] == "*"),
		},
	}
}

type namedMiddleware struct {
	name string
	mw   mux.MiddlewareFunc
}

// RegisterMiddlewares registers the configured middlewares in order:
// recovery, request id, logging, timeout, body limit, tracing, headers.
// Request id runs before logging so the access log carries it.
func RegisterMiddlewares(router *mux.Router, config *MiddlewareConfig) {
	var chain []namedMiddleware

	if config.EnableRecovery {
		chain = append(chain, namedMiddleware{"recovery", RecoveryMiddleware()})
	}
	chain = append(chain, namedMiddleware{"request_id", RequestIDMiddleware()})
	if config.EnableLogging {
		chain = append(chain, namedMiddleware{"logging", LoggingMiddleware})
	}
	if config.EnableTimeout {
		chain = append(chain, namedMiddleware{"timeout", TimeoutMiddleware(config.TimeoutDuration)})
	}
	if config.MaxBodyBytes > 0 {
		chain = append(chain, namedMiddleware{"body_limit", BodyLimitMiddleware(config.MaxBodyBytes)})
	}
	if config.EnableTracing {
		chain = append(chain, namedMiddleware{"tracing", func(next http.Handler) http.Handler {
			return TracingMiddleware("inventory-http-request", next)
		}})
	}
	chain = append(chain, namedMiddleware{"security_headers", SecurityHeadersMiddleware()})

	names := make([]string, 0, len(chain))
	for _, m := range chain {
		router.Use(m.mw)
		names = append(names, m.name)
	}

	logger.Logger.Info().
		Strs("middlewares", names).
		Dur("timeout_duration", config.TimeoutDuration).
		Int64("max_body_bytes", config.MaxBodyBytes).
		Msg("Middlewares registered")
}

// RecoveryMiddleware turns a handler panic into a 500 envelope.
func RecoveryMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error(r.Context()).
						Interface("panic", rec).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Panic recovered")

					respondJSON(w, http.StatusInternalServerError, Response{
						Success: false,
						Error:   "Internal server error",
						Code:    "INTERNAL",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

const timeoutBody = `{"success":false,"error":"Request timeout","code":"TIMEOUT"}`

// TimeoutMiddleware bounds handler time. The handler's context is cancelled
// too, so a ledger retry loop stops at the deadline.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}

// BodyLimitMiddleware rejects bodies larger than limit while they are decoded.
func BodyLimitMiddleware(limit int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				respondJSON(w, http.StatusRequestEntityTooLarge, Response{
					Success: false,
					Error:   "Request body too large",
					Code:    "VALIDATION",
				})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware propagates or assigns X-Request-ID and attaches it to
// the request's log fields.
func RequestIDMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
				r.Header.Set(RequestIDHeader, requestID)
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := logger.With(r.Context(), "request_id", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			// Stock levels change on every request
			h.Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r)
		})
	}
}

// SetupCORS wraps the router with the CORS handler, or returns it unchanged
func SetupCORS(config *MiddlewareConfig) func(http.Handler) http.Handler {
	if !config.EnableCORS {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return cors.New(config.CORSOptions).Handler
}
