package resilience_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/resilience"
)

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(10, 0.9, time.Second),
		BaseBackoff: 5 * time.Millisecond,
		MaxAttempts: 3,
		Target:      "webhook-delivery",
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"event":"billing.invoice.committed"}`))
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), calls.Load())
	require.Len(t, bodies, 2)
	require.Equal(t, bodies[0], bodies[1], "retry must replay the same body")
}

func TestHTTPClientOpenBreakerFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	ctx := context.Background()
	breaker.Report(ctx, false) // trip it

	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     breaker,
		MaxAttempts: 2,
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(ctx, req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
}
