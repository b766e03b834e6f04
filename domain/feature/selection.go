package feature

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Scorer ranks a feature column against the label vector. Implemented by
// the importance adapters; a higher absolute score means a more useful
// column.
type Scorer interface {
	Score(values, labels []float64) (float64, error)
}

// Selector gates columns by variance and optionally caps the survivor
// count by importance score
type Selector struct {
	// VarianceThreshold drops any column whose variance is at or below
	// it. Zero drops constant columns only.
	VarianceThreshold float64 `json:"variance_threshold" yaml:"variance_threshold"`

	// TopK keeps at most this many columns after the variance gate,
	// ranked by absolute score. Zero disables the cap.
	TopK int `json:"top_k" yaml:"top_k"`
}

// Selection is the frozen outcome of one selection run: the surviving
// columns in their original schema order. Once a model trains on a
// selection, inference must reuse it verbatim.
type Selection struct {
	Columns []string `json:"columns" yaml:"columns"`
	schema  Schema
}

// NewSelection rebuilds a selection from persisted column names
func NewSelection(columns []string) Selection {
	return Selection{Columns: columns, schema: NewSchema(columns...)}
}

// Schema returns the selected column contract
func (s Selection) Schema() Schema {
	if s.schema.Width() == 0 && len(s.Columns) > 0 {
		return NewSchema(s.Columns...)
	}
	return s.schema
}

// Apply projects a matrix down to the selected columns
func (s Selection) Apply(m *Matrix) (*Matrix, error) {
	return m.Project(s.Columns)
}

// Select runs the two-stage gate on a training matrix. Stage one drops
// low-variance columns; stage two, when TopK is set and a scorer is given,
// keeps the K columns with the highest absolute score. Ties keep the
// earlier schema position, so the result is deterministic for a fixed
// input.
func (sel Selector) Select(m *Matrix, labels []float64, scorer Scorer) (Selection, error) {
	if m.Len() == 0 {
		return Selection{}, fmt.Errorf("cannot select features from an empty matrix")
	}
	if len(labels) != 0 && len(labels) != m.Len() {
		return Selection{}, fmt.Errorf("label count %d does not match matrix rows %d", len(labels), m.Len())
	}

	var survivors []int
	for i, name := range m.Schema.Names {
		variance, err := stats.Variance(m.ColumnValues(i))
		if err != nil {
			return Selection{}, fmt.Errorf("variance of %s: %w", name, err)
		}
		if math.IsNaN(variance) || variance <= sel.VarianceThreshold {
			continue
		}
		survivors = append(survivors, i)
	}
	if len(survivors) == 0 {
		return Selection{}, fmt.Errorf("variance gate removed every column")
	}

	if sel.TopK > 0 && len(survivors) > sel.TopK {
		if scorer == nil {
			return Selection{}, fmt.Errorf("top_k is set but no scorer was given")
		}
		scores := make(map[int]float64, len(survivors))
		for _, i := range survivors {
			score, err := scorer.Score(m.ColumnValues(i), labels)
			if err != nil {
				return Selection{}, fmt.Errorf("scoring %s: %w", m.Schema.Names[i], err)
			}
			scores[i] = math.Abs(score)
		}
		sort.SliceStable(survivors, func(a, b int) bool {
			return scores[survivors[a]] > scores[survivors[b]]
		})
		survivors = survivors[:sel.TopK]
		sort.Ints(survivors)
	}

	columns := make([]string, len(survivors))
	for j, i := range survivors {
		columns[j] = m.Schema.Names[i]
	}
	return NewSelection(columns), nil
}
