package table

import (
	"fmt"

	"offerctr/domain/core"
)

// Batch is a column-major slice of rows in stable source order. Chronological
// replay depends on that order: batches must never reorder rows.
type Batch struct {
	cols  []Column
	index map[string]int
	rows  int
}

// NewBatch builds a batch from equal-length columns
func NewBatch(cols ...Column) (*Batch, error) {
	b := &Batch{
		cols:  cols,
		index: make(map[string]int, len(cols)),
	}
	for i := range cols {
		name := cols[i].Name
		if _, dup := b.index[name]; dup {
			return nil, core.NewSchemaMismatchError(fmt.Sprintf("duplicate column %s", name))
		}
		b.index[name] = i
		if i == 0 {
			b.rows = cols[i].Len()
		} else if cols[i].Len() != b.rows {
			return nil, core.NewSchemaMismatchError(fmt.Sprintf(
				"column %s has %d rows, expected %d", name, cols[i].Len(), b.rows))
		}
	}
	return b, nil
}

// Rows returns the number of rows
func (b *Batch) Rows() int {
	return b.rows
}

// Schema returns the ordered column contract of the batch
func (b *Batch) Schema() Schema {
	specs := make([]ColumnSpec, len(b.cols))
	for i, c := range b.cols {
		specs[i] = ColumnSpec{Name: c.Name, Kind: c.Kind}
	}
	return NewSchema(specs...)
}

// Column returns the named column
func (b *Batch) Column(name string) (*Column, bool) {
	i, ok := b.index[name]
	if !ok {
		return nil, false
	}
	return &b.cols[i], true
}

// Columns returns all columns in order
func (b *Batch) Columns() []Column {
	return b.cols
}

// ByteSize estimates the resident footprint of the batch
func (b *Batch) ByteSize() int64 {
	var size int64
	for i := range b.cols {
		size += b.cols[i].ByteSize()
	}
	return size
}

// Downcast rewrites every column to its narrowest lossless representation
// and returns the new batch. Row order and count are unchanged.
func (b *Batch) Downcast() *Batch {
	out := &Batch{
		cols:  make([]Column, len(b.cols)),
		index: b.index,
		rows:  b.rows,
	}
	for i := range b.cols {
		out.cols[i] = b.cols[i].Downcast()
	}
	return out
}

// Gather builds a new batch from the given row indices, in index order.
// An index of -1 yields a null row in every column.
func (b *Batch) Gather(indices []int) *Batch {
	out := &Batch{
		cols:  make([]Column, len(b.cols)),
		index: b.index,
		rows:  len(indices),
	}
	for i := range b.cols {
		out.cols[i] = b.cols[i].gather(indices)
	}
	return out
}

// AppendColumns returns a batch extended with extra columns of matching length
func (b *Batch) AppendColumns(extra ...Column) (*Batch, error) {
	cols := make([]Column, 0, len(b.cols)+len(extra))
	cols = append(cols, b.cols...)
	cols = append(cols, extra...)
	return NewBatch(cols...)
}
