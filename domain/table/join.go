package table

import (
	"strconv"
	"strings"
)

// DuplicatePolicy defines how duplicate right-side keys are handled
type DuplicatePolicy string

const (
	KeepFirst DuplicatePolicy = "keep_first" // Keep first occurrence
	KeepLast  DuplicatePolicy = "keep_last"  // Keep last occurrence
)

// JoinSpec configures an auxiliary-table merge onto a base batch
type JoinSpec struct {
	Keys       []string        // join key columns, present on both sides
	Duplicates DuplicatePolicy // right-side duplicate handling
	Prefix     string          // optional prefix for appended column names
}

// LeftJoin appends the right batch's non-key columns onto the left batch,
// matching rows by the join keys. Left row order and count are preserved;
// unmatched left rows get null values. Schemas are validated first: missing
// keys or incompatible kinds fail before any row is touched.
func LeftJoin(left, right *Batch, spec JoinSpec) (*Batch, error) {
	if err := RequireKeys(left.Schema(), right.Schema(), spec.Keys); err != nil {
		return nil, err
	}
	if spec.Duplicates == "" {
		spec.Duplicates = KeepFirst
	}

	// Index right rows by composite key
	rightIdx := make(map[string]int, right.Rows())
	for i := 0; i < right.Rows(); i++ {
		key := compositeKey(right, spec.Keys, i)
		if _, seen := rightIdx[key]; seen && spec.Duplicates == KeepFirst {
			continue
		}
		rightIdx[key] = i
	}

	// Resolve each left row to a right row, -1 when unmatched
	matches := make([]int, left.Rows())
	for i := 0; i < left.Rows(); i++ {
		key := compositeKey(left, spec.Keys, i)
		if j, ok := rightIdx[key]; ok {
			matches[i] = j
		} else {
			matches[i] = -1
		}
	}

	keySet := make(map[string]bool, len(spec.Keys))
	for _, k := range spec.Keys {
		keySet[k] = true
	}

	extra := make([]Column, 0, len(right.Columns()))
	for _, col := range right.Columns() {
		if keySet[col.Name] {
			continue
		}
		gathered := col.gather(matches)
		if spec.Prefix != "" {
			gathered.Name = spec.Prefix + gathered.Name
		}
		extra = append(extra, gathered)
	}

	return left.AppendColumns(extra...)
}

// compositeKey renders the join key of one row as a single string. The unit
// separator keeps multi-column keys unambiguous.
func compositeKey(b *Batch, keys []string, row int) string {
	parts := make([]string, len(keys))
	for i, name := range keys {
		col, _ := b.Column(name)
		parts[i] = keyPart(col, row)
	}
	return strings.Join(parts, "\x1f")
}

func keyPart(c *Column, row int) string {
	if c.IsNull(row) {
		return "\x00null"
	}
	switch c.Kind {
	case String, Category:
		return c.StringAt(row)
	case Timestamp:
		return c.TimeAt(row).String()
	case Float32, Float64:
		return strconv.FormatFloat(c.Float64At(row), 'g', -1, 64)
	default:
		return strconv.FormatInt(c.IntAt(row), 10)
	}
}
