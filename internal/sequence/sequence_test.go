package sequence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/db"
)

type fakeSequenceStore struct {
	counters map[string]int64
	existing map[string]bool
	calls    int
}

func (f *fakeSequenceStore) NextInvoiceSequence(_ context.Context, arg db.NextInvoiceSequenceParams) (int64, error) {
	if f.counters == nil {
		f.counters = map[string]int64{}
	}
	key := arg.Prefix + "|" + arg.FiscalYear
	f.counters[key]++
	f.calls++
	return f.counters[key], nil
}

func (f *fakeSequenceStore) InvoiceNumberExists(_ context.Context, number string) (bool, error) {
	return f.existing[number], nil
}

func TestFiscalYearLabel(t *testing.T) {
	cases := []struct {
		date  string
		start time.Month
		want  string
	}{
		{"2025-04-01", time.April, "25-26"},
		{"2025-12-31", time.April, "25-26"},
		{"2026-01-15", time.April, "25-26"},
		{"2026-03-31", time.April, "25-26"},
		{"2026-04-01", time.April, "26-27"},
		{"2024-02-29", time.April, "23-24"},
		// Zero and out-of-range starts fall back to April.
		{"2026-01-15", 0, "25-26"},
		{"2026-01-15", 13, "25-26"},
		// A calendar-year fiscal year repeats the year in the label.
		{"2026-01-15", time.January, "26-26"},
		{"2025-12-31", time.January, "25-25"},
		// Other starts behave like April shifted.
		{"2025-06-30", time.July, "24-25"},
		{"2025-07-01", time.July, "25-26"},
	}
	for _, tc := range cases {
		ts, err := time.Parse("2006-01-02", tc.date)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.date, err)
		}
		if got := FiscalYearLabel(ts, tc.start); got != tc.want {
			t.Errorf("FiscalYearLabel(%s, %d) = %s, want %s", tc.date, tc.start, got, tc.want)
		}
	}
}

func TestNextHonorsFiscalYearStart(t *testing.T) {
	store := &fakeSequenceStore{}
	seq := Sequencer{
		Prefix:          "NH",
		FiscalYearStart: time.January,
		Now:             func() time.Time { return time.Date(2025, time.February, 3, 12, 0, 0, 0, time.UTC) },
		Logger:          zerolog.Nop(),
	}

	number, err := seq.Next(context.Background(), store)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if number != "NH/1/25-25" {
		t.Fatalf("got %s, want NH/1/25-25", number)
	}
}

func TestNextAllocatesSequentially(t *testing.T) {
	store := &fakeSequenceStore{}
	seq := Sequencer{
		Prefix: "NH",
		Now:    func() time.Time { return time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC) },
		Logger: zerolog.Nop(),
	}

	for i := 1; i <= 3; i++ {
		number, err := seq.Next(context.Background(), store)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		want := Format("NH", int64(i), "25-26")
		if number != want {
			t.Fatalf("allocation %d: got %s, want %s", i, number, want)
		}
	}
}

func TestNextSkipsExistingNumbers(t *testing.T) {
	store := &fakeSequenceStore{
		existing: map[string]bool{
			"NH/1/25-26": true,
			"NH/2/25-26": true,
		},
	}
	seq := Sequencer{
		Prefix: "NH",
		Now:    func() time.Time { return time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC) },
		Logger: zerolog.Nop(),
	}

	number, err := seq.Next(context.Background(), store)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if number != "NH/3/25-26" {
		t.Fatalf("got %s, want NH/3/25-26", number)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 counter advances, got %d", store.calls)
	}
}

func TestNextFallsBackAfterRetryBudget(t *testing.T) {
	store := &fakeSequenceStore{existing: map[string]bool{}}
	now := time.Date(2025, time.June, 2, 10, 30, 0, 0, time.UTC)
	seq := Sequencer{
		Prefix:      "NH",
		MaxAttempts: 5,
		Now:         func() time.Time { return now },
		Logger:      zerolog.Nop(),
	}
	for i := 1; i <= 5; i++ {
		store.existing[Format("NH", int64(i), "25-26")] = true
	}

	number, err := seq.Next(context.Background(), store)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !strings.HasPrefix(number, "NH/") || !strings.HasSuffix(number, "/00-00") {
		t.Fatalf("fallback number %s lacks timestamp shape", number)
	}
	if store.calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", store.calls)
	}
}

func TestFormat(t *testing.T) {
	if got := Format("NH", 42, "25-26"); got != "NH/42/25-26" {
		t.Fatalf("got %s", got)
	}
}
