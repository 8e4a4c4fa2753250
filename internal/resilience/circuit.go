package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var silentLogger = zerolog.Nop()

// ErrOpenCircuit is returned while the breaker is refusing traffic.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker's position in its lifecycle.
type State int

const (
	// Closed lets every call through while counting outcomes.
	Closed State = iota
	// Open short-circuits calls until the cool-off window elapses.
	Open
	// HalfOpen admits a single probe to test whether the dependency recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker guards a downstream dependency (the webhook receiver, mostly) with
// a failure-ratio trip wire.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failCount int
	okCount   int
	minCalls  int
	tripRatio float64
	trippedAt time.Time
	openFor   time.Duration
	target    string
	logger    *zerolog.Logger
}

// NewBreaker builds a breaker that trips once at least minRequests outcomes
// are recorded and the failing fraction reaches failureRatio. Out-of-range
// arguments are clamped rather than rejected.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	if failureRatio > 1 {
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		state:     Closed,
		minCalls:  minRequests,
		tripRatio: failureRatio,
		openFor:   openFor,
	}
}

// Allow reports whether the caller may proceed. An open breaker stays shut
// until the cool-off has passed, at which point the first caller is let
// through as a half-open probe.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.trippedAt) >= b.openFor {
			b.shiftLocked(ctx, HalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Report feeds one call outcome into the state machine.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		// Outcomes of in-flight calls that raced the trip are not interesting.
		return
	case HalfOpen:
		if success {
			b.shiftLocked(ctx, Closed)
			return
		}
		b.shiftLocked(ctx, Open)
		return
	}

	if success {
		b.okCount++
	} else {
		b.failCount++
	}

	total := b.failCount + b.okCount
	if total < b.minCalls {
		return
	}
	if float64(b.failCount)/float64(total) >= b.tripRatio {
		b.shiftLocked(ctx, Open)
	} else if total > b.minCalls*2 {
		// Halve the window so old outcomes age out.
		b.okCount = int(math.Ceil(float64(b.okCount) * 0.5))
		b.failCount = int(math.Ceil(float64(b.failCount) * 0.5))
	}
}

// Backoff computes the exponential delay before retry number attempt.
// jitterPct spreads the result by up to that fraction in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	delta := (rand.Float64()*2 - 1) * spread
	return d + time.Duration(delta)
}

// WithTarget names the guarded dependency for metric labels and log fields.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.exportStateLocked()
	return b
}

// WithLogger sets the logger receiving transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

func (b *Breaker) shiftLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		b.exportStateLocked()
		return
	}
	b.state = next
	if next == Open {
		b.trippedAt = time.Now()
	}
	if next == Closed {
		b.trippedAt = time.Time{}
	}
	b.failCount = 0
	b.okCount = 0
	b.exportStateLocked()
	b.logShift(ctx, prev, next)
}

func (b *Breaker) exportStateLocked() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.targetLabel()).Set(gaugeValue(b.state))
}

func (b *Breaker) logShift(ctx context.Context, from, to State) {
	label := b.targetLabel()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(label, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}
	logger := b.transitionLogger(ctx)
	evt := logger.Info().Str("target", label).Str("from_state", from.String()).Str("to_state", to.String())
	if traceID := spanTraceID(ctx); traceID != "" {
		evt = evt.Str("trace_id", traceID)
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) targetLabel() string {
	if trimmed := strings.TrimSpace(b.target); trimmed != "" {
		return trimmed
	}
	return "default"
}

func (b *Breaker) transitionLogger(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil {
		logger := ctxLogger.With().Logger()
		return &logger
	}
	if b.logger == nil {
		return &silentLogger
	}
	return b.logger
}

func gaugeValue(state State) float64 {
	switch state {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

func spanTraceID(ctx context.Context) string {
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		return span.TraceID().String()
	}
	return ""
}
