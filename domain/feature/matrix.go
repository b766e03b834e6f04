package feature

import (
	"fmt"

	"offerctr/domain/core"
)

// Row is one record's fixed-width feature vector
type Row struct {
	RecordID core.RecordID
	Values   []float64
}

// Matrix is a dense feature matrix with its schema and the record identity
// of every row, in source order.
type Matrix struct {
	Schema    Schema
	RecordIDs []core.RecordID
	Rows      [][]float64
}

// NewMatrix builds an empty matrix for a schema
func NewMatrix(schema Schema) *Matrix {
	return &Matrix{Schema: schema}
}

// Append adds one row, enforcing the schema width
func (m *Matrix) Append(row Row) error {
	if len(row.Values) != m.Schema.Width() {
		return core.NewSchemaMismatchError(fmt.Sprintf(
			"row for %s has %d values, schema has %d columns",
			row.RecordID, len(row.Values), m.Schema.Width()))
	}
	m.RecordIDs = append(m.RecordIDs, row.RecordID)
	m.Rows = append(m.Rows, row.Values)
	return nil
}

// Len returns the number of rows
func (m *Matrix) Len() int {
	return len(m.Rows)
}

// ColumnValues extracts one column by schema position
func (m *Matrix) ColumnValues(idx int) []float64 {
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		out[i] = row[idx]
	}
	return out
}

// Project builds a new matrix holding only the named columns, in the given
// order. Unknown names fail with ErrSchemaMismatch.
func (m *Matrix) Project(names []string) (*Matrix, error) {
	indices := make([]int, len(names))
	for i, name := range names {
		idx, ok := m.Schema.Index(name)
		if !ok {
			return nil, core.NewSchemaMismatchError(fmt.Sprintf("projection column %s not in schema", name))
		}
		indices[i] = idx
	}

	out := NewMatrix(NewSchema(names...))
	out.RecordIDs = make([]core.RecordID, len(m.RecordIDs))
	copy(out.RecordIDs, m.RecordIDs)
	out.Rows = make([][]float64, len(m.Rows))
	for r, row := range m.Rows {
		projected := make([]float64, len(indices))
		for i, idx := range indices {
			projected[i] = row[idx]
		}
		out.Rows[r] = projected
	}
	return out, nil
}

// Slice returns a row-range view [lo,hi) sharing row storage
func (m *Matrix) Slice(lo, hi int) *Matrix {
	return &Matrix{
		Schema:    m.Schema,
		RecordIDs: m.RecordIDs[lo:hi],
		Rows:      m.Rows[lo:hi],
	}
}
