package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Config names the key function and the window/ceiling pair for one route.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler wraps a route with the sliding-window limiter. Invoice commits are
// the main consumer; a runaway till client must not flood the sequencer.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// Middleware checks the limit before the wrapped handler runs. A limiter
// error fails open: losing Redis should not stop billing.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Config.Key(r)
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		writeLimitHeaders(w, h.Config.Max, remaining, resetAt)

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(secondsUntil(resetAt)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeLimitHeaders(w http.ResponseWriter, ceiling, remaining int, resetAt time.Time) {
	if ceiling < 0 {
		ceiling = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(ceiling))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func secondsUntil(resetAt time.Time) int {
	s := int(time.Until(resetAt).Seconds())
	if s < 0 {
		return 0
	}
	return s
}
