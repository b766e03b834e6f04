package table

import (
	"fmt"

	"offerctr/domain/core"
)

// Kind identifies the physical type of a column
type Kind string

const (
	Int8      Kind = "int8"
	Int16     Kind = "int16"
	Int32     Kind = "int32"
	Int64     Kind = "int64"
	Float32   Kind = "float32"
	Float64   Kind = "float64"
	Bool      Kind = "bool"
	String    Kind = "string"
	Category  Kind = "category" // dictionary-encoded string
	Timestamp Kind = "timestamp"
)

// Family groups kinds that are join- and validation-compatible
type Family string

const (
	IntegerFamily   Family = "integer"
	FloatFamily     Family = "float"
	BoolFamily      Family = "bool"
	TextFamily      Family = "text"
	TimestampFamily Family = "timestamp"
)

// Family returns the compatibility family for the kind
func (k Kind) Family() Family {
	switch k {
	case Int8, Int16, Int32, Int64:
		return IntegerFamily
	case Float32, Float64:
		return FloatFamily
	case Bool:
		return BoolFamily
	case String, Category:
		return TextFamily
	case Timestamp:
		return TimestampFamily
	}
	return Family(k)
}

// IsNumeric reports whether the kind carries numeric values
func (k Kind) IsNumeric() bool {
	f := k.Family()
	return f == IntegerFamily || f == FloatFamily
}

// ColumnSpec declares one column of a schema contract
type ColumnSpec struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is an ordered column contract. Sources must satisfy it before any
// merge or replay; violations surface immediately rather than downstream.
type Schema struct {
	Columns []ColumnSpec `json:"columns"`
}

// NewSchema builds a schema from ordered specs
func NewSchema(cols ...ColumnSpec) Schema {
	return Schema{Columns: cols}
}

// Names returns the ordered column names
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of a named column
func (s Schema) Index(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Hash fingerprints the ordered contract, name and kind both
func (s Schema) Hash() core.SchemaHash {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + ":" + string(c.Kind)
	}
	return core.ComputeSchemaHash(parts)
}

// Validate checks that s satisfies the required contract: every required
// column present with a kind in the same family. Returns ErrSchemaMismatch
// naming the first offending column.
func (s Schema) Validate(required Schema) error {
	for _, want := range required.Columns {
		idx, ok := s.Index(want.Name)
		if !ok {
			return core.NewSchemaMismatchError(fmt.Sprintf("missing column %s", want.Name))
		}
		got := s.Columns[idx]
		if got.Kind.Family() != want.Kind.Family() {
			return core.NewColumnMismatchError(want.Name, string(want.Kind), string(got.Kind))
		}
	}
	return nil
}

// RequireKeys checks join-key presence and kind compatibility on both sides
// of a merge.
func RequireKeys(left, right Schema, keys []string) error {
	for _, key := range keys {
		li, ok := left.Index(key)
		if !ok {
			return core.NewSchemaMismatchError(fmt.Sprintf("join key %s missing on left side", key))
		}
		ri, ok := right.Index(key)
		if !ok {
			return core.NewSchemaMismatchError(fmt.Sprintf("join key %s missing on right side", key))
		}
		lk, rk := left.Columns[li].Kind, right.Columns[ri].Kind
		if lk.Family() != rk.Family() {
			return core.NewColumnMismatchError(key, string(lk), string(rk))
		}
	}
	return nil
}
