package http

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/tair/inventory-engine/pkg/logger"
)

const rateLimitPrefix = "inventory:ratelimit"

// NewRateLimiter builds a per-client limiter for the checkout routes from a
// formatted rate such as "100-S" or "6000-M". Counters live in Redis when a
// client is given so every replica shares them. An empty rate disables
// limiting and returns nil.
func NewRateLimiter(rate string, client *redis.Client) (mux.MiddlewareFunc, error) {
	if rate == "" {
		return nil, nil
	}

	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: rateLimitPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix})
	}

	mw := stdlib.NewMiddleware(
		limiter.New(store, parsed),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug(r.Context()).Str("path", r.URL.Path).Msg("Rate limit reached")
			respondJSON(w, http.StatusTooManyRequests, Response{
				Success: false,
				Error:   "Too many requests",
				Code:    "RATE_LIMITED",
			})
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error(r.Context()).Err(err).Msg("Rate limiter store failed")
			respondJSON(w, http.StatusServiceUnavailable, Response{
				Success: false,
				Error:   "Rate limiter unavailable",
				Code:    "UNAVAILABLE",
			})
		}),
	)
	return mw.Handler, nil
}
