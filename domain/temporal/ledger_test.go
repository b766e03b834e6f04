package temporal

import (
	"errors"
	"math"
	"testing"
	"time"

	"offerctr/domain/core"
)

// TestLedgerPriorOnly tests that At sums only transactions strictly before
// the query instant, regardless of ingestion completeness
func TestLedgerPriorOnly(t *testing.T) {
	ledger := NewLedgerEngine(core.ValidityWindow{})
	key := Key("user_id=u1")

	// Full history ingested up front, as the pipeline does
	ledger.Ingest(key, at(1, 10), 120.50)
	ledger.Ingest(key, at(5, 10), 30.25)
	ledger.Ingest(key, at(9, 10), 500.00)

	v := ledger.At(key, at(5, 10))
	if v.Count != 1 || v.Total != 120.50 {
		t.Errorf("View at t2 = count %d total %v, want 1/120.50: same-instant or later spend leaked", v.Count, v.Total)
	}

	v = ledger.At(key, at(7, 0))
	if v.Count != 2 || math.Abs(v.Total-150.75) > 1e-9 {
		t.Errorf("View between events = count %d total %v, want 2/150.75", v.Count, v.Total)
	}

	v = ledger.At(key, at(20, 0))
	if v.Count != 3 || math.Abs(v.Total-650.75) > 1e-9 {
		t.Errorf("Final view = count %d total %v, want 3/650.75", v.Count, v.Total)
	}

	cold := ledger.At(Key("user_id=nobody"), at(10, 0))
	if cold.Seen || cold.Count != 0 || cold.Total != 0 {
		t.Errorf("Unknown key view = %+v, want cold zero view", cold)
	}
}

// TestLedgerRecency tests SinceLast from the latest prior transaction
func TestLedgerRecency(t *testing.T) {
	ledger := NewLedgerEngine(core.ValidityWindow{})
	key := Key("user_id=u2")

	ledger.Ingest(key, at(1, 0), 10)
	ledger.Ingest(key, at(3, 0), 10)

	v := ledger.At(key, at(6, 0))
	if v.SinceLast != 72*time.Hour {
		t.Errorf("SinceLast = %v, want 72h", v.SinceLast)
	}
	if v.RecencyDays() != 3 {
		t.Errorf("RecencyDays = %v, want 3", v.RecencyDays())
	}
}

// TestLedgerRejections tests per-record error contract
func TestLedgerRejections(t *testing.T) {
	ledger := NewLedgerEngine(core.ValidityWindow{Min: at(1, 0), Max: at(28, 0)})
	key := Key("user_id=u3")

	err := ledger.Ingest(key, core.NewTimestamp(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)), 5)
	if !errors.Is(err, core.ErrBadTimestamp) {
		t.Errorf("Expected ErrBadTimestamp, got %v", err)
	}

	err = ledger.Ingest(key, at(10, 0), math.NaN())
	if !errors.Is(err, core.ErrInvalidStatistic) {
		t.Errorf("Expected ErrInvalidStatistic for NaN amount, got %v", err)
	}

	if err := ledger.Ingest(key, at(10, 0), 42); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	err = ledger.Ingest(key, at(9, 0), 43)
	if !errors.Is(err, core.ErrOutOfOrder) {
		t.Errorf("Expected ErrOutOfOrder on earlier timestamp, got %v", err)
	}

	// Rejected rows never count
	v := ledger.At(key, at(20, 0))
	if v.Count != 1 || v.Total != 42 {
		t.Errorf("View = count %d total %v, want 1/42", v.Count, v.Total)
	}
}

// TestLedgerTiedTimestamps tests two transactions at the same instant both
// count; a view exactly at that instant sees neither
func TestLedgerTiedTimestamps(t *testing.T) {
	ledger := NewLedgerEngine(core.ValidityWindow{Min: at(1, 0), Max: at(28, 0)})
	key := Key("user_id=u4")

	if err := ledger.Ingest(key, at(5, 0), 10); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := ledger.Ingest(key, at(5, 0), 30); err != nil {
		t.Fatalf("Ingest tied: %v", err)
	}

	atTie := ledger.At(key, at(5, 0))
	if atTie.Count != 0 {
		t.Errorf("View at the tie = count %d, want 0", atTie.Count)
	}

	after := ledger.At(key, at(6, 0))
	if after.Count != 2 || after.Total != 40 {
		t.Errorf("View = count %d total %v, want 2/40", after.Count, after.Total)
	}
}
