package temporal

import (
	"fmt"
	"strings"

	"offerctr/domain/table"
)

// Key identifies one statistics accumulator. Rendered as
// "column=value|column=value" so composite keys stay readable in logs and
// reject records.
type Key string

// String returns the string representation
func (k Key) String() string {
	return string(k)
}

// KeySpec names an entity key and the columns that build it. A single-column
// spec tracks e.g. per-user or per-offer statistics; multi-column specs track
// interactions such as user within offer category.
type KeySpec struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
}

// Validate checks the key spec names at least one column
func (s KeySpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("key spec name cannot be empty")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("key spec %s names no columns", s.Name)
	}
	return nil
}

// KeyAt renders the key for one batch row. Null parts render as "(null)":
// missing attribution is itself a category, not a skip.
func (s KeySpec) KeyAt(b *table.Batch, row int) (Key, error) {
	parts := make([]string, len(s.Columns))
	for i, name := range s.Columns {
		col, ok := b.Column(name)
		if !ok {
			return "", fmt.Errorf("key column %s not in batch", name)
		}
		parts[i] = name + "=" + keyValue(col, row)
	}
	return Key(strings.Join(parts, "|")), nil
}

func keyValue(c *table.Column, row int) string {
	if c.IsNull(row) {
		return "(null)"
	}
	switch c.Kind {
	case table.String, table.Category:
		return c.StringAt(row)
	case table.Timestamp:
		return c.TimeAt(row).String()
	case table.Float32, table.Float64:
		return fmt.Sprintf("%g", c.Float64At(row))
	default:
		return fmt.Sprintf("%d", c.IntAt(row))
	}
}
