package feature

import (
	"fmt"
	"hash/fnv"
	"strconv"

	"offerctr/domain/core"
	"offerctr/domain/encoding"
	"offerctr/domain/table"
	"offerctr/domain/temporal"
)

// Config wires the assembler to its input columns and statistic keys
type Config struct {
	RecordIDColumn  string `json:"record_id_column" yaml:"record_id_column"`
	TimestampColumn string `json:"timestamp_column" yaml:"timestamp_column"`
	LabelColumn     string `json:"label_column" yaml:"label_column"`

	// KeySpecs name the entity keys tracked by the temporal engine, e.g.
	// user, offer, user x offer category. Every spec gets its own engine
	// and its own feature block, in config order.
	KeySpecs []temporal.KeySpec `json:"key_specs" yaml:"key_specs"`

	Engine   temporal.Config   `json:"-" yaml:"-"`
	Smoother encoding.Smoother `json:"-" yaml:"-"`

	// Transaction ledger wiring. Empty TransactionKey disables the block.
	TransactionKey          temporal.KeySpec `json:"transaction_key" yaml:"transaction_key"`
	TransactionTimeColumn   string           `json:"transaction_time_column" yaml:"transaction_time_column"`
	TransactionAmountColumn string           `json:"transaction_amount_column" yaml:"transaction_amount_column"`

	// Raw attribute passthrough
	NumericColumns     []string `json:"numeric_columns" yaml:"numeric_columns"`
	CategoricalColumns []string `json:"categorical_columns" yaml:"categorical_columns"`

	// CategoryHashBuckets sizes the hashed categorical space, default 64
	CategoryHashBuckets int `json:"category_hash_buckets" yaml:"category_hash_buckets"`
}

// Validate checks the wiring makes sense before any data flows
func (c Config) Validate() error {
	if c.RecordIDColumn == "" {
		return fmt.Errorf("record id column cannot be empty")
	}
	if c.TimestampColumn == "" {
		return fmt.Errorf("timestamp column cannot be empty")
	}
	if len(c.KeySpecs) == 0 {
		return fmt.Errorf("at least one key spec is required")
	}
	names := make(map[string]bool, len(c.KeySpecs))
	for _, ks := range c.KeySpecs {
		if err := ks.Validate(); err != nil {
			return err
		}
		if names[ks.Name] {
			return fmt.Errorf("duplicate key spec name %s", ks.Name)
		}
		names[ks.Name] = true
	}
	if c.HasTransactions() {
		if err := c.TransactionKey.Validate(); err != nil {
			return err
		}
		if c.TransactionTimeColumn == "" || c.TransactionAmountColumn == "" {
			return fmt.Errorf("transaction time and amount columns are required when a transaction key is set")
		}
	}
	return nil
}

// HasTransactions reports whether the transaction block is wired
func (c Config) HasTransactions() bool {
	return len(c.TransactionKey.Columns) > 0
}

// Assembler builds fixed-width feature rows. One temporal engine per key
// spec plus one transaction ledger; the emitted schema is deterministic in
// config order and frozen by the caller after selection.
type Assembler struct {
	cfg     Config
	schema  Schema
	engines map[string]*temporal.Engine
	ledger  *temporal.LedgerEngine
}

// New validates the config and builds an assembler with empty state
func New(cfg Config) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CategoryHashBuckets <= 0 {
		cfg.CategoryHashBuckets = 64
	}

	a := &Assembler{
		cfg:     cfg,
		engines: make(map[string]*temporal.Engine, len(cfg.KeySpecs)),
	}
	for _, ks := range cfg.KeySpecs {
		a.engines[ks.Name] = temporal.NewEngine(cfg.Engine)
	}
	if cfg.HasTransactions() {
		a.ledger = temporal.NewLedgerEngine(cfg.Engine.Window)
	}
	a.schema = a.buildSchema()
	return a, nil
}

// buildSchema lays out the column contract:
//
//	per key spec:  impressions, clicks, ctr, ctr_decayed, recency_days, seen
//	transactions:  txn_count, txn_total, txn_recency_days
//	cyclical:      hour/weekday/month sin+cos
//	numeric:       value and missing indicator per column
//	categorical:   hash bucket per column
func (a *Assembler) buildSchema() Schema {
	var names []string
	for _, ks := range a.cfg.KeySpecs {
		names = append(names,
			ks.Name+"_impressions",
			ks.Name+"_clicks",
			ks.Name+"_ctr",
			ks.Name+"_ctr_decayed",
			ks.Name+"_recency_days",
			ks.Name+"_seen",
		)
	}
	if a.cfg.HasTransactions() {
		names = append(names, "txn_count", "txn_total", "txn_recency_days")
	}
	names = append(names,
		"hour_sin", "hour_cos",
		"weekday_sin", "weekday_cos",
		"month_sin", "month_cos",
	)
	for _, col := range a.cfg.NumericColumns {
		names = append(names, col, col+"_missing")
	}
	for _, col := range a.cfg.CategoricalColumns {
		names = append(names, col+"_bucket")
	}
	return NewSchema(names...)
}

// Schema returns the full pre-selection column contract
func (a *Assembler) Schema() Schema {
	return a.schema
}

// IngestTransactions absorbs a transaction batch into the ledger. Invalid
// rows are returned as rejects; valid rows stay available to every later
// as-of query.
func (a *Assembler) IngestTransactions(b *table.Batch) ([]core.RejectedRecord, error) {
	if !a.cfg.HasTransactions() {
		return nil, nil
	}
	timeCol, ok := b.Column(a.cfg.TransactionTimeColumn)
	if !ok {
		return nil, core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", a.cfg.TransactionTimeColumn))
	}
	if timeCol.Kind != table.Timestamp {
		return nil, core.NewColumnMismatchError(a.cfg.TransactionTimeColumn, string(table.Timestamp), string(timeCol.Kind))
	}
	amountCol, ok := b.Column(a.cfg.TransactionAmountColumn)
	if !ok {
		return nil, core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", a.cfg.TransactionAmountColumn))
	}
	if !amountCol.Kind.IsNumeric() {
		return nil, core.NewColumnMismatchError(a.cfg.TransactionAmountColumn, "numeric", string(amountCol.Kind))
	}

	var rejects []core.RejectedRecord
	for row := 0; row < b.Rows(); row++ {
		key, err := a.cfg.TransactionKey.KeyAt(b, row)
		if err != nil {
			return nil, core.NewSchemaMismatchError(err.Error())
		}
		if timeCol.IsNull(row) {
			rejects = append(rejects, core.RejectedRecord{
				RecordID: core.RecordID(key),
				Stage:    core.StageTransactions,
				Reason:   "missing timestamp",
			})
			continue
		}
		ts := timeCol.TimeAt(row)
		amount := amountCol.Float64At(row)
		if amountCol.IsNull(row) {
			amount = 0
		}
		if err := a.ledger.Ingest(key, ts, amount); err != nil {
			rejects = append(rejects, core.RejectedRecord{
				RecordID: core.RecordID(key),
				At:       ts,
				Stage:    core.StageTransactions,
				Reason:   err.Error(),
			})
		}
	}
	return rejects, nil
}

// FeaturizeTrain builds rows for a labeled interaction batch and folds each
// accepted record into the statistic engines. Emission strictly precedes
// update: a record's own label can never reach its own row. Per-record
// failures become rejects and leave every engine untouched for that record.
func (a *Assembler) FeaturizeTrain(b *table.Batch) (*Matrix, []float64, []core.RejectedRecord, error) {
	cols, err := a.interactionColumns(b, true)
	if err != nil {
		return nil, nil, nil, err
	}

	matrix := NewMatrix(a.schema)
	var labels []float64
	var rejects []core.RejectedRecord

	for row := 0; row < b.Rows(); row++ {
		recordID := a.recordID(cols.id, row)

		label, reject := a.labelAt(cols.label, row, recordID)
		if reject != nil {
			rejects = append(rejects, *reject)
			continue
		}

		values, ts, reject, err := a.rowValues(b, cols, row, recordID)
		if err != nil {
			return nil, nil, nil, err
		}
		if reject != nil {
			rejects = append(rejects, *reject)
			continue
		}

		if err := matrix.Append(Row{RecordID: recordID, Values: values}); err != nil {
			return nil, nil, nil, err
		}
		labels = append(labels, label)

		// Commit: fold the record into each engine. Admission was checked
		// while building values, so these cannot fail.
		clicked := label > 0
		for _, ks := range a.cfg.KeySpecs {
			key, _ := ks.KeyAt(b, row)
			if _, err := a.engines[ks.Name].Observe(key, ts, clicked); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	return matrix, labels, rejects, nil
}

// FeaturizeAt builds rows for an unlabeled batch against the current state
// without mutating it. This is the inference path: statistics stay exactly
// as training left them.
func (a *Assembler) FeaturizeAt(b *table.Batch) (*Matrix, []core.RejectedRecord, error) {
	cols, err := a.interactionColumns(b, false)
	if err != nil {
		return nil, nil, err
	}

	matrix := NewMatrix(a.schema)
	var rejects []core.RejectedRecord

	for row := 0; row < b.Rows(); row++ {
		recordID := a.recordID(cols.id, row)

		values, _, reject, err := a.rowValues(b, cols, row, recordID)
		if err != nil {
			return nil, nil, err
		}
		if reject != nil {
			rejects = append(rejects, *reject)
			continue
		}
		if err := matrix.Append(Row{RecordID: recordID, Values: values}); err != nil {
			return nil, nil, err
		}
	}

	return matrix, rejects, nil
}

// interactionCols caches resolved column handles for one batch
type interactionCols struct {
	id    *table.Column
	ts    *table.Column
	label *table.Column
}

func (a *Assembler) interactionColumns(b *table.Batch, labeled bool) (interactionCols, error) {
	var cols interactionCols
	var ok bool

	cols.id, ok = b.Column(a.cfg.RecordIDColumn)
	if !ok {
		return cols, core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", a.cfg.RecordIDColumn))
	}
	cols.ts, ok = b.Column(a.cfg.TimestampColumn)
	if !ok {
		return cols, core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", a.cfg.TimestampColumn))
	}
	if cols.ts.Kind != table.Timestamp {
		return cols, core.NewColumnMismatchError(a.cfg.TimestampColumn, string(table.Timestamp), string(cols.ts.Kind))
	}
	if labeled {
		if a.cfg.LabelColumn == "" {
			return cols, core.NewSchemaMismatchError("label column not configured")
		}
		cols.label, ok = b.Column(a.cfg.LabelColumn)
		if !ok {
			return cols, core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", a.cfg.LabelColumn))
		}
		if cols.label.Kind.Family() != table.IntegerFamily && cols.label.Kind != table.Bool {
			return cols, core.NewColumnMismatchError(a.cfg.LabelColumn, "integer label", string(cols.label.Kind))
		}
	}
	for _, name := range a.cfg.NumericColumns {
		col, ok := b.Column(name)
		if !ok {
			return cols, core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", name))
		}
		if !col.Kind.IsNumeric() && col.Kind != table.Bool {
			return cols, core.NewColumnMismatchError(name, "numeric", string(col.Kind))
		}
	}
	for _, name := range a.cfg.CategoricalColumns {
		col, ok := b.Column(name)
		if !ok {
			return cols, core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", name))
		}
		if col.Kind.Family() != table.TextFamily {
			return cols, core.NewColumnMismatchError(name, "text", string(col.Kind))
		}
	}
	return cols, nil
}

func (a *Assembler) recordID(idCol *table.Column, row int) core.RecordID {
	if idCol.IsNull(row) {
		return core.RecordID(fmt.Sprintf("row-%d", row))
	}
	switch idCol.Kind {
	case table.String, table.Category:
		return core.RecordID(idCol.StringAt(row))
	default:
		return core.RecordID(strconv.FormatInt(idCol.IntAt(row), 10))
	}
}

func (a *Assembler) labelAt(labelCol *table.Column, row int, recordID core.RecordID) (float64, *core.RejectedRecord) {
	if labelCol.IsNull(row) {
		return 0, &core.RejectedRecord{
			RecordID: recordID,
			Stage:    core.StageLoad,
			Reason:   "missing label",
		}
	}
	v := labelCol.IntAt(row)
	if v != 0 && v != 1 {
		return 0, &core.RejectedRecord{
			RecordID: recordID,
			Stage:    core.StageLoad,
			Reason:   fmt.Sprintf("label %d is not binary", v),
		}
	}
	return float64(v), nil
}

// rowValues builds one record's full feature vector from pre-update state
// only. Everything here is a pure read; the caller commits afterwards.
func (a *Assembler) rowValues(b *table.Batch, cols interactionCols, row int, recordID core.RecordID) ([]float64, core.Timestamp, *core.RejectedRecord, error) {
	if cols.ts.IsNull(row) {
		return nil, core.Timestamp{}, &core.RejectedRecord{
			RecordID: recordID,
			Stage:    core.StageLoad,
			Reason:   "missing timestamp",
		}, nil
	}
	ts := cols.ts.TimeAt(row)

	// Admit everywhere before reading anywhere, so one engine's rejection
	// cannot follow another engine's update.
	for _, ks := range a.cfg.KeySpecs {
		key, err := ks.KeyAt(b, row)
		if err != nil {
			return nil, ts, nil, core.NewSchemaMismatchError(err.Error())
		}
		if err := a.engines[ks.Name].Admit(key, ts); err != nil {
			return nil, ts, &core.RejectedRecord{
				RecordID: recordID,
				At:       ts,
				Stage:    core.StageStatistics,
				Reason:   err.Error(),
			}, nil
		}
	}

	values := make([]float64, 0, a.schema.Width())

	for _, ks := range a.cfg.KeySpecs {
		key, _ := ks.KeyAt(b, row)
		view, err := a.engines[ks.Name].At(key, ts)
		if err != nil {
			return nil, ts, nil, err
		}

		ctr, err := a.cfg.Smoother.Rate(view)
		if err != nil {
			return nil, ts, &core.RejectedRecord{
				RecordID: recordID,
				At:       ts,
				Stage:    core.StageEncoding,
				Reason:   err.Error(),
			}, nil
		}
		decayedCTR, err := a.cfg.Smoother.DecayedRate(view)
		if err != nil {
			return nil, ts, &core.RejectedRecord{
				RecordID: recordID,
				At:       ts,
				Stage:    core.StageEncoding,
				Reason:   err.Error(),
			}, nil
		}

		seen := 0.0
		if view.Seen {
			seen = 1
		}
		values = append(values,
			float64(view.Impressions),
			float64(view.Clicks),
			ctr,
			decayedCTR,
			view.RecencyDays(),
			seen,
		)
	}

	if a.cfg.HasTransactions() {
		txnKey, err := a.cfg.TransactionKey.KeyAt(b, row)
		if err != nil {
			return nil, ts, nil, core.NewSchemaMismatchError(err.Error())
		}
		ledgerView := a.ledger.At(txnKey, ts)
		values = append(values,
			float64(ledgerView.Count),
			ledgerView.Total,
			ledgerView.RecencyDays(),
		)
	}

	cyc := temporal.Cyclical(ts)
	values = append(values,
		cyc.HourSin, cyc.HourCos,
		cyc.WeekdaySin, cyc.WeekdayCos,
		cyc.MonthSin, cyc.MonthCos,
	)

	for _, name := range a.cfg.NumericColumns {
		col, _ := b.Column(name)
		if col.IsNull(row) {
			values = append(values, 0, 1)
		} else {
			values = append(values, col.Float64At(row), 0)
		}
	}

	for _, name := range a.cfg.CategoricalColumns {
		col, _ := b.Column(name)
		raw := "(null)"
		if !col.IsNull(row) {
			raw = col.StringAt(row)
		}
		values = append(values, float64(a.hashBucket(raw)))
	}

	return values, ts, nil, nil
}

// hashBucket maps a category value to a stable bucket index
func (a *Assembler) hashBucket(value string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(value))
	return h.Sum32() % uint32(a.cfg.CategoryHashBuckets)
}

// ExportSnapshots dumps every engine's state keyed by key spec name
func (a *Assembler) ExportSnapshots(asOf core.Timestamp) (map[string][]temporal.Snapshot, error) {
	out := make(map[string][]temporal.Snapshot, len(a.engines))
	for name, engine := range a.engines {
		snaps, err := engine.Export(asOf)
		if err != nil {
			return nil, err
		}
		out[name] = snaps
	}
	return out, nil
}

// RestoreSnapshots seeds the engines from persisted state. Every snapshot's
// watermark must precede firstEvent; see temporal.Engine.Restore.
func (a *Assembler) RestoreSnapshots(keyed map[string][]temporal.Snapshot, firstEvent core.Timestamp) error {
	for name, snaps := range keyed {
		engine, ok := a.engines[name]
		if !ok {
			return core.NewSchemaMismatchError(fmt.Sprintf("snapshot for unknown key spec %s", name))
		}
		if err := engine.Restore(snaps, firstEvent); err != nil {
			return err
		}
	}
	return nil
}
