// Package feature assembles statistic views, encodings, transaction
// aggregates and raw attributes into fixed-width rows under a frozen column
// contract shared by the train and inference paths.
package feature

import (
	"fmt"

	"offerctr/domain/core"
)

// Schema is the ordered feature column contract. Train freezes it;
// inference must reproduce it exactly, name for name, position for
// position.
type Schema struct {
	Names []string `json:"names"`
}

// NewSchema builds a schema from ordered names
func NewSchema(names ...string) Schema {
	return Schema{Names: names}
}

// Width returns the number of columns
func (s Schema) Width() int {
	return len(s.Names)
}

// Index returns the position of a named column
func (s Schema) Index(name string) (int, bool) {
	for i, n := range s.Names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// Hash fingerprints the ordered contract
func (s Schema) Hash() core.SchemaHash {
	return core.ComputeSchemaHash(s.Names)
}

// Validate checks exact equality with the frozen contract: same names, same
// order, same width. Any divergence is ErrSchemaMismatch; silent reindexing
// is how leakage bugs hide.
func (s Schema) Validate(frozen Schema) error {
	if len(s.Names) != len(frozen.Names) {
		return core.NewSchemaMismatchError(fmt.Sprintf(
			"feature width %d, frozen contract has %d", len(s.Names), len(frozen.Names)))
	}
	for i, name := range frozen.Names {
		if s.Names[i] != name {
			return core.NewColumnMismatchError(fmt.Sprintf("position %d", i), name, s.Names[i])
		}
	}
	return nil
}
