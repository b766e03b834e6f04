package table

import (
	"errors"
	"testing"

	"offerctr/domain/core"
)

func interactionsBatch(t *testing.T) *Batch {
	t.Helper()
	b, err := NewBatch(
		NewStringColumn("user_id", []string{"u1", "u2", "u1", "u3"}),
		NewStringColumn("offer_id", []string{"o1", "o2", "o3", "o1"}),
		NewIntColumn("label", []int64{0, 1, 0, 1}),
	)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	return b
}

// TestLeftJoinPreservesOrder tests the auxiliary merge keeps base row order
func TestLeftJoinPreservesOrder(t *testing.T) {
	base := interactionsBatch(t)
	offers, err := NewBatch(
		NewStringColumn("offer_id", []string{"o1", "o2"}),
		NewStringColumn("brand", []string{"acme", "zeta"}),
		NewFloatColumn("reward_rate", []float64{0.05, 0.02}),
	)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	joined, err := LeftJoin(base, offers, JoinSpec{Keys: []string{"offer_id"}})
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}

	if joined.Rows() != base.Rows() {
		t.Fatalf("Expected %d rows, got %d", base.Rows(), joined.Rows())
	}

	users, _ := joined.Column("user_id")
	for i, want := range []string{"u1", "u2", "u1", "u3"} {
		if users.StringAt(i) != want {
			t.Errorf("row %d user = %s, want %s", i, users.StringAt(i), want)
		}
	}

	brand, ok := joined.Column("brand")
	if !ok {
		t.Fatal("Expected brand column after join")
	}
	wantBrand := []string{"acme", "zeta", "", "acme"}
	for i, want := range wantBrand {
		if i == 2 {
			if !brand.IsNull(i) {
				t.Error("Expected unmatched offer o3 to produce null brand")
			}
			continue
		}
		if brand.StringAt(i) != want {
			t.Errorf("row %d brand = %s, want %s", i, brand.StringAt(i), want)
		}
	}
}

// TestLeftJoinCompositeKey tests multi-column join keys
func TestLeftJoinCompositeKey(t *testing.T) {
	base := interactionsBatch(t)
	pairStats, err := NewBatch(
		NewStringColumn("user_id", []string{"u1", "u1"}),
		NewStringColumn("offer_id", []string{"o1", "o3"}),
		NewFloatColumn("pair_score", []float64{0.9, 0.4}),
	)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	joined, err := LeftJoin(base, pairStats, JoinSpec{Keys: []string{"user_id", "offer_id"}})
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}

	score, _ := joined.Column("pair_score")
	if score.IsNull(0) || score.Float64At(0) != 0.9 {
		t.Errorf("row 0 pair_score = %v, want 0.9", score.Float64At(0))
	}
	if !score.IsNull(1) {
		t.Error("Expected (u2,o2) to be unmatched")
	}
	if score.IsNull(2) || score.Float64At(2) != 0.4 {
		t.Errorf("row 2 pair_score = %v, want 0.4", score.Float64At(2))
	}
}

// TestLeftJoinDuplicatePolicy tests right-side duplicate handling
func TestLeftJoinDuplicatePolicy(t *testing.T) {
	base := interactionsBatch(t)
	dupes, err := NewBatch(
		NewStringColumn("offer_id", []string{"o1", "o1"}),
		NewFloatColumn("rank", []float64{1, 2}),
	)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	first, err := LeftJoin(base, dupes, JoinSpec{Keys: []string{"offer_id"}, Duplicates: KeepFirst})
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	rank, _ := first.Column("rank")
	if rank.Float64At(0) != 1 {
		t.Errorf("KeepFirst rank = %v, want 1", rank.Float64At(0))
	}

	last, err := LeftJoin(base, dupes, JoinSpec{Keys: []string{"offer_id"}, Duplicates: KeepLast})
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	rank, _ = last.Column("rank")
	if rank.Float64At(0) != 2 {
		t.Errorf("KeepLast rank = %v, want 2", rank.Float64At(0))
	}
}

// TestLeftJoinValidatesBeforeMerging tests schema failure short-circuits
func TestLeftJoinValidatesBeforeMerging(t *testing.T) {
	base := interactionsBatch(t)
	wrong, err := NewBatch(
		NewIntColumn("offer_id", []int64{1, 2}),
		NewFloatColumn("x", []float64{0, 1}),
	)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	_, err = LeftJoin(base, wrong, JoinSpec{Keys: []string{"offer_id"}})
	if !errors.Is(err, core.ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch on key kind conflict, got %v", err)
	}
}

// TestJoinPrefix tests appended column renaming
func TestJoinPrefix(t *testing.T) {
	base := interactionsBatch(t)
	meta, err := NewBatch(
		NewStringColumn("offer_id", []string{"o1"}),
		NewFloatColumn("score", []float64{0.7}),
	)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	joined, err := LeftJoin(base, meta, JoinSpec{Keys: []string{"offer_id"}, Prefix: "offer_"})
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	if _, ok := joined.Column("offer_score"); !ok {
		t.Error("Expected prefixed column offer_score")
	}
}
