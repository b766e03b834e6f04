package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"offerctr/domain/table"
	"offerctr/ports"
)

// tableSource implements the TableSourcePort over PostgreSQL
type tableSource struct {
	db *sqlx.DB
}

// NewTableSource creates a chunked table source backed by PostgreSQL
func NewTableSource(db *sqlx.DB) ports.TableSourcePort {
	return &tableSource{db: db}
}

// Open validates the request and returns a cursor. The whole read is one
// query execution: Next drains the single result set a chunk at a time, so
// row order is fixed within and across batches even when the order column
// has ties. LIMIT/OFFSET paging would re-execute the plan per chunk, and
// Postgres makes no promise about the order of tied rows between
// executions; a tie group straddling a chunk boundary could then repeat or
// vanish.
func (s *tableSource) Open(ctx context.Context, req ports.TableRequest) (ports.BatchCursor, error) {
	if req.Table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if req.ChunkRows <= 0 {
		return nil, fmt.Errorf("chunk_rows must be positive, got %d", req.ChunkRows)
	}

	projection := "*"
	if len(req.Columns) > 0 {
		quoted := make([]string, len(req.Columns))
		for i, col := range req.Columns {
			quoted[i] = pq.QuoteIdentifier(col)
		}
		projection = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", projection, pq.QuoteIdentifier(req.Table))
	if req.OrderBy != "" {
		query += fmt.Sprintf(" ORDER BY %s", pq.QuoteIdentifier(req.OrderBy))
	}

	return &tableCursor{db: s.db, query: query, chunk: req.ChunkRows}, nil
}

type tableCursor struct {
	db    *sqlx.DB
	query string
	chunk int
	rows  *sql.Rows
	done  bool
}

// Next reads one chunk from the open result set, starting it on the first
// call. Returns io.EOF after the final chunk. Memory stays bounded by the
// chunk size: the driver streams rows, it never buffers the full table.
func (c *tableCursor) Next(ctx context.Context) (*table.Batch, error) {
	if c.done {
		return nil, io.EOF
	}

	if c.rows == nil {
		rows, err := c.db.QueryContext(ctx, c.query)
		if err != nil {
			return nil, fmt.Errorf("failed to query table: %w", err)
		}
		c.rows = rows
	}

	batch, n, err := scanBatch(c.rows, c.chunk)
	if err != nil {
		c.Close()
		return nil, err
	}
	if n < c.chunk {
		c.Close()
	}
	if n == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// Close releases the result set. Idempotent.
func (c *tableCursor) Close() error {
	c.done = true
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}

// columnBuilder accumulates one column across scanned rows
type columnBuilder struct {
	name  string
	kind  table.Kind
	ints  []int64
	flts  []float64
	bools []bool
	strs  []string
	times []time.Time
	nulls []bool
	any   bool
}

// scanBatch reads at most limit rows from the result set into a typed batch
func scanBatch(rows *sql.Rows, limit int) (*table.Batch, int, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read column types: %w", err)
	}

	builders := make([]*columnBuilder, len(types))
	targets := make([]interface{}, len(types))
	for i, ct := range types {
		builders[i] = &columnBuilder{name: ct.Name(), kind: kindForDBType(ct.DatabaseTypeName())}
		switch builders[i].kind {
		case table.Int64:
			targets[i] = &sql.NullInt64{}
		case table.Float64:
			targets[i] = &sql.NullFloat64{}
		case table.Bool:
			targets[i] = &sql.NullBool{}
		case table.Timestamp:
			targets[i] = &sql.NullTime{}
		default:
			targets[i] = &sql.NullString{}
		}
	}

	n := 0
	for n < limit && rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, b := range builders {
			b.absorb(targets[i])
		}
		n++
	}
	if n < limit {
		if err := rows.Err(); err != nil {
			return nil, 0, fmt.Errorf("failed while reading rows: %w", err)
		}
	}
	if n == 0 {
		return nil, 0, nil
	}

	cols := make([]table.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.column()
	}
	batch, err := table.NewBatch(cols...)
	if err != nil {
		return nil, 0, err
	}
	return batch, n, nil
}

func (b *columnBuilder) absorb(target interface{}) {
	null := false
	switch v := target.(type) {
	case *sql.NullInt64:
		null = !v.Valid
		b.ints = append(b.ints, v.Int64)
	case *sql.NullFloat64:
		null = !v.Valid
		b.flts = append(b.flts, v.Float64)
	case *sql.NullBool:
		null = !v.Valid
		b.bools = append(b.bools, v.Bool)
	case *sql.NullTime:
		null = !v.Valid
		b.times = append(b.times, v.Time.UTC())
	case *sql.NullString:
		null = !v.Valid
		b.strs = append(b.strs, v.String)
	}
	b.nulls = append(b.nulls, null)
	if null {
		b.any = true
	}
}

func (b *columnBuilder) column() table.Column {
	var col table.Column
	switch b.kind {
	case table.Int64:
		col = table.NewIntColumn(b.name, b.ints)
	case table.Float64:
		col = table.NewFloatColumn(b.name, b.flts)
	case table.Bool:
		col = table.NewBoolColumn(b.name, b.bools)
	case table.Timestamp:
		col = table.NewTimestampColumn(b.name, b.times)
	default:
		col = table.NewStringColumn(b.name, b.strs)
	}
	if b.any {
		col = col.WithNulls(b.nulls)
	}
	return col
}

// kindForDBType maps PostgreSQL type names to batch kinds. Unknown types
// come through as text, which downcasting can still dictionary-encode.
func kindForDBType(dbType string) table.Kind {
	switch strings.ToUpper(dbType) {
	case "INT2", "INT4", "INT8", "SMALLINT", "INTEGER", "BIGINT", "SMALLSERIAL", "SERIAL", "BIGSERIAL":
		return table.Int64
	case "FLOAT4", "FLOAT8", "REAL", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return table.Float64
	case "BOOL", "BOOLEAN":
		return table.Bool
	case "TIMESTAMP", "TIMESTAMPTZ", "DATE":
		return table.Timestamp
	default:
		return table.String
	}
}
