// Package tabular reads delimited files as chunked table sources. It is the
// file-backed twin of the postgres source, used for local runs and fixture
// data.
package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"offerctr/domain/table"
	"offerctr/ports"
)

// csvSource implements the TableSourcePort over a directory of CSV files.
// Each table name maps to <dir>/<name>.csv; the declared schema drives cell
// parsing, since CSV itself is untyped.
type csvSource struct {
	dir     string
	schemas map[string]table.Schema
}

// NewCSVSource creates a CSV-backed table source
func NewCSVSource(dir string, schemas map[string]table.Schema) ports.TableSourcePort {
	return &csvSource{dir: dir, schemas: schemas}
}

// Open validates the request against the declared schema and returns a
// streaming cursor. The file stays open until the cursor is closed.
func (s *csvSource) Open(ctx context.Context, req ports.TableRequest) (ports.BatchCursor, error) {
	if req.ChunkRows <= 0 {
		return nil, fmt.Errorf("chunk_rows must be positive, got %d", req.ChunkRows)
	}
	schema, ok := s.schemas[req.Table]
	if !ok {
		return nil, fmt.Errorf("no schema declared for table %s", req.Table)
	}

	path := filepath.Join(s.dir, req.Table+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	wanted := req.Columns
	if len(wanted) == 0 {
		wanted = schema.Names()
	}

	fields := make([]fieldSpec, 0, len(wanted))
	for _, name := range wanted {
		idx := -1
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			file.Close()
			return nil, fmt.Errorf("column %s not in header of %s", name, path)
		}
		si, ok := schema.Index(name)
		if !ok {
			file.Close()
			return nil, fmt.Errorf("column %s not declared for table %s", name, req.Table)
		}
		fields = append(fields, fieldSpec{name: name, kind: schema.Columns[si].Kind, pos: idx})
	}

	return &csvCursor{file: file, reader: reader, fields: fields, chunk: req.ChunkRows}, nil
}

type fieldSpec struct {
	name string
	kind table.Kind
	pos  int
}

type csvCursor struct {
	file   *os.File
	reader *csv.Reader
	fields []fieldSpec
	chunk  int
	done   bool
}

// Next reads up to chunk rows. Returns io.EOF after the final row. Cells
// that fail to parse become nulls; the pipeline's per-record validation
// decides whether that nullity rejects the record.
func (c *csvCursor) Next(ctx context.Context) (*table.Batch, error) {
	if c.done {
		return nil, io.EOF
	}

	builders := make([]*cellBuilder, len(c.fields))
	for i, f := range c.fields {
		builders[i] = &cellBuilder{name: f.name, kind: f.kind}
	}

	n := 0
	for n < c.chunk {
		record, err := c.reader.Read()
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		for i, f := range c.fields {
			cell := ""
			if f.pos < len(record) {
				cell = strings.TrimSpace(record[f.pos])
			}
			builders[i].absorb(cell)
		}
		n++
	}
	if n == 0 {
		c.done = true
		return nil, io.EOF
	}

	cols := make([]table.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.column()
	}
	return table.NewBatch(cols...)
}

// Close releases the underlying file
func (c *csvCursor) Close() error {
	c.done = true
	return c.file.Close()
}

type cellBuilder struct {
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

func (b *cellBuilder) absorb(cell string) {
	null := false
	switch b.kind {
	case table.Int8, table.Int16, table.Int32, table.Int64:
		v, err := strconv.ParseInt(cell, 10, 64)
		null = cell == "" || err != nil
		b.ints = append(b.ints, v)
	case table.Float32, table.Float64:
		v, err := strconv.ParseFloat(cell, 64)
		null = cell == "" || err != nil
		b.flts = append(b.flts, v)
	case table.Bool:
		v, err := strconv.ParseBool(cell)
		null = cell == "" || err != nil
		b.bools = append(b.bools, v)
	case table.Timestamp:
		v, err := parseTime(cell)
		null = cell == "" || err != nil
		b.times = append(b.times, v)
	default:
		b.strs = append(b.strs, cell)
	}
	b.nulls = append(b.nulls, null)
	if null {
		b.any = true
	}
}

func (b *cellBuilder) column() table.Column {
	var col table.Column
	switch b.kind {
	case table.Int8, table.Int16, table.Int32, table.Int64:
		col = table.NewIntColumn(b.name, b.ints)
	case table.Float32, table.Float64:
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

// parseTime accepts the timestamp layouts that show up in exports
func parseTime(cell string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", cell)
}
