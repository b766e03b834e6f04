package feature

import (
	"errors"
	"math"
	"testing"
	"time"

	"offerctr/domain/core"
	"offerctr/domain/encoding"
	"offerctr/domain/table"
	"offerctr/domain/temporal"
)

func testConfig() Config {
	return Config{
		RecordIDColumn:  "record_id",
		TimestampColumn: "shown_at",
		LabelColumn:     "clicked",
		KeySpecs: []temporal.KeySpec{
			{Name: "user", Columns: []string{"user_id"}},
			{Name: "offer", Columns: []string{"offer_id"}},
		},
		Engine:                  temporal.Config{HalfLife: 0},
		Smoother:                encoding.Smoother{Alpha: 10, Prior: 0.3},
		TransactionKey:          temporal.KeySpec{Name: "txn_user", Columns: []string{"user_id"}},
		TransactionTimeColumn:   "posted_at",
		TransactionAmountColumn: "amount",
		NumericColumns:          []string{"offer_value"},
		CategoricalColumns:      []string{"channel"},
		CategoryHashBuckets:     16,
	}
}

func ts(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func interactionBatch(t *testing.T, ids, users, offers []string, at []time.Time, clicked []int64) *table.Batch {
	t.Helper()
	values := make([]float64, len(ids))
	channels := make([]string, len(ids))
	for i := range ids {
		values[i] = 100
		channels[i] = "email"
	}
	b, err := table.NewBatch(
		table.NewStringColumn("record_id", ids),
		table.NewStringColumn("user_id", users),
		table.NewStringColumn("offer_id", offers),
		table.NewTimestampColumn("shown_at", at),
		table.NewIntColumn("clicked", clicked),
		table.NewFloatColumn("offer_value", values),
		table.NewStringColumn("channel", channels),
	)
	if err != nil {
		t.Fatalf("building batch: %v", err)
	}
	return b
}

func TestSchemaLayout(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{
		"user_impressions", "user_clicks", "user_ctr", "user_ctr_decayed", "user_recency_days", "user_seen",
		"offer_impressions", "offer_clicks", "offer_ctr", "offer_ctr_decayed", "offer_recency_days", "offer_seen",
		"txn_count", "txn_total", "txn_recency_days",
		"hour_sin", "hour_cos", "weekday_sin", "weekday_cos", "month_sin", "month_cos",
		"offer_value", "offer_value_missing",
		"channel_bucket",
	}
	got := a.Schema().Names
	if len(got) != len(want) {
		t.Fatalf("schema has %d columns, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing record id", func(c *Config) { c.RecordIDColumn = "" }},
		{"missing timestamp", func(c *Config) { c.TimestampColumn = "" }},
		{"no key specs", func(c *Config) { c.KeySpecs = nil }},
		{"duplicate key spec", func(c *Config) {
			c.KeySpecs = append(c.KeySpecs, temporal.KeySpec{Name: "user", Columns: []string{"user_id"}})
		}},
		{"transaction key without columns", func(c *Config) { c.TransactionTimeColumn = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected config validation to fail")
			}
		})
	}
}

func TestFeaturizeTrainEmitsPreUpdateViews(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := interactionBatch(t,
		[]string{"r1", "r2", "r3"},
		[]string{"u1", "u1", "u1"},
		[]string{"o1", "o1", "o1"},
		[]time.Time{ts(1, 9), ts(1, 10), ts(1, 11)},
		[]int64{1, 1, 0},
	)

	m, labels, rejects, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}
	if len(rejects) != 0 {
		t.Fatalf("unexpected rejects: %v", rejects)
	}
	if m.Len() != 3 || len(labels) != 3 {
		t.Fatalf("got %d rows and %d labels, want 3 and 3", m.Len(), len(labels))
	}

	impIdx, _ := m.Schema.Index("user_impressions")
	clkIdx, _ := m.Schema.Index("user_clicks")
	ctrIdx, _ := m.Schema.Index("user_ctr")

	// First record: cold start, zero counts, CTR exactly the prior.
	if got := m.Rows[0][impIdx]; got != 0 {
		t.Errorf("row 0 impressions = %v, want 0", got)
	}
	if got := m.Rows[0][ctrIdx]; math.Abs(got-0.3) > 1e-12 {
		t.Errorf("row 0 ctr = %v, want prior 0.3", got)
	}

	// Second record sees exactly the first, never itself.
	if got := m.Rows[1][impIdx]; got != 1 {
		t.Errorf("row 1 impressions = %v, want 1", got)
	}
	if got := m.Rows[1][clkIdx]; got != 1 {
		t.Errorf("row 1 clicks = %v, want 1", got)
	}

	// Third record sees the first two clicks but not its own non-click.
	if got := m.Rows[2][impIdx]; got != 2 {
		t.Errorf("row 2 impressions = %v, want 2", got)
	}
	wantCTR := (2 + 10*0.3) / (2 + 10.0)
	if got := m.Rows[2][ctrIdx]; math.Abs(got-wantCTR) > 1e-12 {
		t.Errorf("row 2 ctr = %v, want %v", got, wantCTR)
	}
}

func TestFeaturizeTrainLabels(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := interactionBatch(t,
		[]string{"r1", "r2"},
		[]string{"u1", "u2"},
		[]string{"o1", "o1"},
		[]time.Time{ts(1, 9), ts(1, 10)},
		[]int64{0, 1},
	)

	_, labels, _, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}
	if labels[0] != 0 || labels[1] != 1 {
		t.Errorf("labels = %v, want [0 1]", labels)
	}
}

func TestFeaturizeTrainRejectsNonBinaryLabel(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := interactionBatch(t,
		[]string{"r1", "r2"},
		[]string{"u1", "u2"},
		[]string{"o1", "o1"},
		[]time.Time{ts(1, 9), ts(1, 10)},
		[]int64{2, 1},
	)

	m, labels, rejects, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}
	if len(rejects) != 1 || rejects[0].RecordID != "r1" {
		t.Fatalf("rejects = %v, want one reject for r1", rejects)
	}
	if m.Len() != 1 || len(labels) != 1 {
		t.Errorf("got %d rows and %d labels, want 1 and 1", m.Len(), len(labels))
	}
}

func TestRejectLeavesAllEnginesUntouched(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// r2 steps backwards in time for user u1, so it must be rejected. The
	// rejection happens in the user engine, but the offer engine must not
	// have absorbed r2 either: r3 reads offer o2 and has to find it cold.
	b := interactionBatch(t,
		[]string{"r1", "r2", "r3"},
		[]string{"u1", "u1", "u2"},
		[]string{"o1", "o2", "o2"},
		[]time.Time{ts(1, 10), ts(1, 9), ts(1, 11)},
		[]int64{1, 1, 0},
	)

	m, _, rejects, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}
	if len(rejects) != 1 {
		t.Fatalf("got %d rejects, want 1: %v", len(rejects), rejects)
	}
	if rejects[0].RecordID != "r2" || rejects[0].Stage != core.StageStatistics {
		t.Errorf("reject = %+v, want r2 at statistics stage", rejects[0])
	}

	offerImp, _ := m.Schema.Index("offer_impressions")
	if got := m.Rows[1][offerImp]; got != 0 {
		t.Errorf("offer o2 impressions seen by r3 = %v, want 0 (rejected r2 must not count)", got)
	}
}

func TestFeaturizeTrainRejectsMissingTimestamp(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := interactionBatch(t,
		[]string{"r1", "r2"},
		[]string{"u1", "u2"},
		[]string{"o1", "o1"},
		[]time.Time{ts(1, 9), ts(1, 10)},
		[]int64{0, 1},
	)
	col, _ := b.Column("shown_at")
	*col = col.WithNulls([]bool{false, true})

	_, _, rejects, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}
	if len(rejects) != 1 || rejects[0].RecordID != "r2" || rejects[0].Stage != core.StageLoad {
		t.Fatalf("rejects = %v, want r2 rejected at load stage", rejects)
	}
}

func TestFeaturizeTrainMissingColumnIsFatal(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b, err := table.NewBatch(
		table.NewStringColumn("record_id", []string{"r1"}),
		table.NewTimestampColumn("shown_at", []time.Time{ts(1, 9)}),
	)
	if err != nil {
		t.Fatalf("building batch: %v", err)
	}

	_, _, _, err = a.FeaturizeTrain(b)
	if !errors.Is(err, core.ErrSchemaMismatch) {
		t.Errorf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestFeaturizeAtLeavesStateUnchanged(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	train := interactionBatch(t,
		[]string{"r1", "r2"},
		[]string{"u1", "u1"},
		[]string{"o1", "o1"},
		[]time.Time{ts(1, 9), ts(1, 10)},
		[]int64{1, 0},
	)
	if _, _, _, err := a.FeaturizeTrain(train); err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}

	score := interactionBatch(t,
		[]string{"s1"},
		[]string{"u1"},
		[]string{"o1"},
		[]time.Time{ts(2, 9)},
		[]int64{0},
	)

	first, rejects, err := a.FeaturizeAt(score)
	if err != nil {
		t.Fatalf("FeaturizeAt: %v", err)
	}
	if len(rejects) != 0 {
		t.Fatalf("unexpected rejects: %v", rejects)
	}
	second, _, err := a.FeaturizeAt(score)
	if err != nil {
		t.Fatalf("FeaturizeAt again: %v", err)
	}

	for i := range first.Rows[0] {
		if first.Rows[0][i] != second.Rows[0][i] {
			t.Fatalf("column %s drifted between identical reads: %v then %v",
				first.Schema.Names[i], first.Rows[0][i], second.Rows[0][i])
		}
	}

	impIdx, _ := first.Schema.Index("user_impressions")
	if got := first.Rows[0][impIdx]; got != 2 {
		t.Errorf("scoring view impressions = %v, want 2", got)
	}
}

func TestTransactionBlock(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	txns, err := table.NewBatch(
		table.NewStringColumn("user_id", []string{"u1", "u1", "u1"}),
		table.NewTimestampColumn("posted_at", []time.Time{ts(1, 8), ts(1, 12), ts(2, 8)}),
		table.NewFloatColumn("amount", []float64{40, 60, 500}),
	)
	if err != nil {
		t.Fatalf("building transactions: %v", err)
	}
	rejects, err := a.IngestTransactions(txns)
	if err != nil {
		t.Fatalf("IngestTransactions: %v", err)
	}
	if len(rejects) != 0 {
		t.Fatalf("unexpected rejects: %v", rejects)
	}

	// The interaction at day 1, 14:00 must see the first two transactions
	// and never the day 2 one, even though it was ingested already.
	b := interactionBatch(t,
		[]string{"r1"},
		[]string{"u1"},
		[]string{"o1"},
		[]time.Time{ts(1, 14)},
		[]int64{0},
	)
	m, _, _, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}

	countIdx, _ := m.Schema.Index("txn_count")
	totalIdx, _ := m.Schema.Index("txn_total")
	if got := m.Rows[0][countIdx]; got != 2 {
		t.Errorf("txn_count = %v, want 2", got)
	}
	if got := m.Rows[0][totalIdx]; got != 100 {
		t.Errorf("txn_total = %v, want 100", got)
	}
}

func TestTransactionRejects(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	txns, err := table.NewBatch(
		table.NewStringColumn("user_id", []string{"u1", "u1"}),
		table.NewTimestampColumn("posted_at", []time.Time{ts(1, 12), ts(1, 8)}),
		table.NewFloatColumn("amount", []float64{40, 60}),
	)
	if err != nil {
		t.Fatalf("building transactions: %v", err)
	}

	rejects, err := a.IngestTransactions(txns)
	if err != nil {
		t.Fatalf("IngestTransactions: %v", err)
	}
	if len(rejects) != 1 || rejects[0].Stage != core.StageTransactions {
		t.Fatalf("rejects = %v, want one out-of-order transaction reject", rejects)
	}
}

func TestNumericMissingIndicator(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := interactionBatch(t,
		[]string{"r1", "r2"},
		[]string{"u1", "u2"},
		[]string{"o1", "o1"},
		[]time.Time{ts(1, 9), ts(1, 10)},
		[]int64{0, 1},
	)
	col, _ := b.Column("offer_value")
	*col = col.WithNulls([]bool{false, true})

	m, _, _, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}

	valIdx, _ := m.Schema.Index("offer_value")
	misIdx, _ := m.Schema.Index("offer_value_missing")
	if m.Rows[0][valIdx] != 100 || m.Rows[0][misIdx] != 0 {
		t.Errorf("present value row = (%v, %v), want (100, 0)", m.Rows[0][valIdx], m.Rows[0][misIdx])
	}
	if m.Rows[1][valIdx] != 0 || m.Rows[1][misIdx] != 1 {
		t.Errorf("missing value row = (%v, %v), want (0, 1)", m.Rows[1][valIdx], m.Rows[1][misIdx])
	}
}

func TestCategoricalBucketIsStable(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := interactionBatch(t,
		[]string{"r1", "r2", "r3"},
		[]string{"u1", "u2", "u3"},
		[]string{"o1", "o2", "o3"},
		[]time.Time{ts(1, 9), ts(1, 10), ts(1, 11)},
		[]int64{0, 0, 0},
	)

	m, _, _, err := a.FeaturizeTrain(b)
	if err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}

	idx, _ := m.Schema.Index("channel_bucket")
	first := m.Rows[0][idx]
	for r := 0; r < m.Len(); r++ {
		got := m.Rows[r][idx]
		if got != first {
			t.Errorf("same category hashed to different buckets: %v and %v", first, got)
		}
		if got < 0 || got >= 16 {
			t.Errorf("bucket %v outside [0,16)", got)
		}
	}
}

func TestSnapshotRoundTripAcrossAssemblers(t *testing.T) {
	cfg := testConfig()
	warm, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	history := interactionBatch(t,
		[]string{"r1", "r2", "r3"},
		[]string{"u1", "u1", "u2"},
		[]string{"o1", "o1", "o1"},
		[]time.Time{ts(1, 9), ts(1, 10), ts(1, 11)},
		[]int64{1, 0, 1},
	)
	if _, _, _, err := warm.FeaturizeTrain(history); err != nil {
		t.Fatalf("FeaturizeTrain: %v", err)
	}

	snaps, err := warm.ExportSnapshots(core.NewTimestamp(ts(1, 12)))
	if err != nil {
		t.Fatalf("ExportSnapshots: %v", err)
	}

	cold, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := cold.RestoreSnapshots(snaps, core.NewTimestamp(ts(2, 0))); err != nil {
		t.Fatalf("RestoreSnapshots: %v", err)
	}

	query := interactionBatch(t,
		[]string{"p1"},
		[]string{"u1"},
		[]string{"o1"},
		[]time.Time{ts(2, 9)},
		[]int64{0},
	)
	fromWarm, _, err := warm.FeaturizeAt(query)
	if err != nil {
		t.Fatalf("FeaturizeAt warm: %v", err)
	}
	fromCold, _, err := cold.FeaturizeAt(query)
	if err != nil {
		t.Fatalf("FeaturizeAt cold: %v", err)
	}

	for i := range fromWarm.Rows[0] {
		a, b := fromWarm.Rows[0][i], fromCold.Rows[0][i]
		if math.Abs(a-b) > 1e-9 {
			t.Errorf("column %s differs after restore: %v vs %v", fromWarm.Schema.Names[i], a, b)
		}
	}
}
