package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/resolve-gateway/internal/common"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int64
}

// Handler enforces rate limits before delegating to the next handler. The
// payment return endpoint sits behind it keyed by client IP.
type Handler struct {
	Limiter *limiter.Limiter
	Config  Config
	OnError func(error)
}

// New builds a redis-backed Handler. Limiter state lives in Redis so all
// instances share one budget.
func New(client *redis.Client, cfg Config) (Handler, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "ratelimit"})
	if err != nil {
		return Handler{}, err
	}
	if cfg.Key == nil {
		cfg.Key = func(r *http.Request) string { return common.ClientIP(r) }
	}
	rate := limiter.Rate{Period: cfg.Window, Limit: cfg.Max}
	return Handler{Limiter: limiter.New(store, rate), Config: cfg}, nil
}

// Middleware implements the http.Handler middleware interface. Limiter errors
// fail open: a broken Redis must not take the payment return path down.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		res, err := h.Limiter.Get(r.Context(), h.Config.Key(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

		if res.Reached {
			retryAfter := res.Reset - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
