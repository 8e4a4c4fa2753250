package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/resilience"
)

func stateGauge(t *testing.T, target string) float64 {
	t.Helper()
	return testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target))
}

func TestBreakerMetricsFollowTransitions(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond).WithTarget("webhook-delivery")
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, stateGauge(t, "webhook-delivery"), "failed call should trip the gauge to open")

	require.Eventually(t, func() bool {
		return breaker.Allow(ctx)
	}, 100*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 2.0, stateGauge(t, "webhook-delivery"), "cool-off probe should show half-open")

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, stateGauge(t, "webhook-delivery"), "successful probe should close the gauge")

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("webhook-delivery")))

	for _, tc := range []struct{ from, to string }{
		{"closed", "open"},
		{"open", "half_open"},
		{"half_open", "closed"},
	} {
		count := testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("webhook-delivery", tc.from, tc.to))
		require.Equal(t, 1.0, count, "expected exactly one %s->%s transition", tc.from, tc.to)
	}
}
