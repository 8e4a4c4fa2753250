package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoicesCommittedTotal counts commit attempts by tax regime and outcome.
	InvoicesCommittedTotal *prometheus.CounterVec
	// CommitDuration records end-to-end commit latency in milliseconds.
	CommitDuration *prometheus.HistogramVec
	// SequenceRetryTotal counts duplicate invoice numbers skipped by the sequencer.
	SequenceRetryTotal prometheus.Counter
	// SequenceFallbackTotal counts commits numbered from the timestamp fallback.
	SequenceFallbackTotal prometheus.Counter
	// StockLowTotal counts lines that depleted an item to or below its minimum.
	StockLowTotal prometheus.Counter
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
	// WebhookDispatchAttempts counts dispatcher attempts regardless of outcome.
	WebhookDispatchAttempts prometheus.Counter
	// WebhookDispatchDLQ counts deliveries moved to dead-letter queue.
	WebhookDispatchDLQ prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoicesCommittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_committed_total",
			Help:      "Count of invoice commit attempts by tax regime and result.",
		}, []string{"taxed", "result"})
		CommitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_ms",
			Help:      "Invoice commit latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"result"})
		SequenceRetryTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_retry_total",
			Help:      "Number of invoice number candidates skipped because the number already existed.",
		})
		SequenceFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_fallback_total",
			Help:      "Number of invoices numbered from the timestamp fallback after retry exhaustion.",
		})
		StockLowTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_low_total",
			Help:      "Number of committed lines that left an item at or below its minimum stock.",
		})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})
		WebhookAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		WebhookDispatchAttempts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_attempts_total",
			Help:      "Total number of webhook dispatch attempts.",
		})
		WebhookDispatchDLQ = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_dlq_total",
			Help:      "Number of webhook deliveries moved to the dead-letter queue.",
		})

		mustRegisterCollector(reg, InvoicesCommittedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoicesCommittedTotal = v
			}
		})
		mustRegisterCollector(reg, CommitDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CommitDuration = v
			}
		})
		mustRegisterCollector(reg, SequenceRetryTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SequenceRetryTotal = v
			}
		})
		mustRegisterCollector(reg, SequenceFallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SequenceFallbackTotal = v
			}
		})
		mustRegisterCollector(reg, StockLowTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockLowTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookAttemptLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WebhookAttemptLatency = v
			}
		})
		mustRegisterCollector(reg, WebhookDispatchAttempts, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				WebhookDispatchAttempts = v
			}
		})
		mustRegisterCollector(reg, WebhookDispatchDLQ, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				WebhookDispatchDLQ = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
