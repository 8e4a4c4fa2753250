// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	defaultDBTimeout    = 500 * time.Millisecond
	defaultRedisTimeout = 300 * time.Millisecond
)

// Checker probes the hard dependencies a ready instance needs.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler answers the probe endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Live always answers ok; the process being able to respond is the check.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready answers 200 only while the shutdown gate is open and both Postgres
// and Redis respond to a ping within their timeouts.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !Ready() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	status := map[string]string{
		"db":    pingStatus(h.Checker.PingDB(ctx, timeoutOr(h.DBTimeout, defaultDBTimeout))),
		"redis": pingStatus(h.Checker.PingRedis(ctx, timeoutOr(h.RedisTimeout, defaultRedisTimeout))),
	}

	code := http.StatusOK
	for _, s := range status {
		if s != "ok" {
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func pingStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func timeoutOr(configured, fallback time.Duration) time.Duration {
	if configured <= 0 {
		return fallback
	}
	return configured
}
