// Package sequence assigns gapless, human-readable invoice numbers scoped
// to a prefix and an Indian fiscal year (April through March).
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/obs"
)

// DefaultMaxAttempts bounds the duplicate-number scan before the sequencer
// falls back to a timestamp-derived number.
const DefaultMaxAttempts = 1000

// Store is the slice of the query layer the sequencer needs. Callers pass
// the transaction-bound Queries so the allocated number commits or rolls
// back together with the invoice.
type Store interface {
	NextInvoiceSequence(ctx context.Context, arg db.NextInvoiceSequenceParams) (int64, error)
	InvoiceNumberExists(ctx context.Context, number string) (bool, error)
}

// Sequencer formats and allocates invoice numbers.
type Sequencer struct {
	Prefix      string
	MaxAttempts int
	// FiscalYearStart is the month a fiscal year begins. Zero or an
	// out-of-range value means April, the Indian default.
	FiscalYearStart time.Month
	Logger          zerolog.Logger
	Now             func() time.Time
}

// FiscalYearLabel renders the two-digit year pair for the fiscal year
// containing t, e.g. "25-26" for any date from April 2025 through March 2026
// with an April start. A January start collapses the label to the calendar
// year, e.g. "25-25".
func FiscalYearLabel(t time.Time, startMonth time.Month) string {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.April
	}
	start := t.Year()
	if t.Month() < startMonth {
		start--
	}
	end := start + 1
	if startMonth == time.January {
		end = start
	}
	return fmt.Sprintf("%02d-%02d", start%100, end%100)
}

// Format renders a counter into the printable invoice number.
func Format(prefix string, counter int64, fiscalYear string) string {
	return fmt.Sprintf("%s/%d/%s", prefix, counter, fiscalYear)
}

// Next allocates the next free invoice number inside the caller's
// transaction. Candidates that collide with an already committed number
// (counter resets, restored backups) are skipped; after MaxAttempts the
// sequencer gives up on the counter and derives a unique number from the
// clock so the sale still commits.
func (s Sequencer) Next(ctx context.Context, store Store) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	label := FiscalYearLabel(now(), s.FiscalYearStart)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		counter, err := store.NextInvoiceSequence(ctx, db.NextInvoiceSequenceParams{
			Prefix:     s.Prefix,
			FiscalYear: label,
		})
		if err != nil {
			return "", fmt.Errorf("advance invoice sequence: %w", err)
		}
		number := Format(s.Prefix, counter, label)
		exists, err := store.InvoiceNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check invoice number: %w", err)
		}
		if !exists {
			return number, nil
		}
		if obs.SequenceRetryTotal != nil {
			obs.SequenceRetryTotal.Inc()
		}
	}

	fallback := fmt.Sprintf("%s/%d/00-00", s.Prefix, now().Unix())
	if obs.SequenceFallbackTotal != nil {
		obs.SequenceFallbackTotal.Inc()
	}
	s.Logger.Warn().
		Str("prefix", s.Prefix).
		Str("fiscal_year", label).
		Int("attempts", maxAttempts).
		Str("fallback", fallback).
		Msg("invoice sequence exhausted retry budget, using timestamp fallback")
	return fallback, nil
}
