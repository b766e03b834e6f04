package table

import (
	"fmt"

	"offerctr/domain/core"
)

// Concat appends b's rows under a's. Schemas must match exactly in name,
// order and kind; chunked readers produce uniform chunks, so a mismatch
// means the source changed shape mid-read.
func Concat(a, b *Batch) (*Batch, error) {
	if len(a.cols) != len(b.cols) {
		return nil, core.NewSchemaMismatchError(fmt.Sprintf(
			"chunk has %d columns, previous chunks had %d", len(b.cols), len(a.cols)))
	}

	cols := make([]Column, 0, len(a.cols))
	for i := range a.cols {
		merged, err := concatColumn(a.cols[i], b.cols[i])
		if err != nil {
			return nil, err
		}
		cols = append(cols, merged)
	}
	return NewBatch(cols...)
}

func concatColumn(a, b Column) (Column, error) {
	if a.Name != b.Name {
		return Column{}, core.NewSchemaMismatchError(fmt.Sprintf(
			"column %s became %s between chunks", a.Name, b.Name))
	}
	if a.Kind != b.Kind {
		return Column{}, core.NewColumnMismatchError(a.Name, string(a.Kind), string(b.Kind))
	}

	out := Column{Name: a.Name, Kind: a.Kind}
	switch a.Kind {
	case Int8:
		out.i8 = append(append([]int8{}, a.i8...), b.i8...)
	case Int16:
		out.i16 = append(append([]int16{}, a.i16...), b.i16...)
	case Int32:
		out.i32 = append(append([]int32{}, a.i32...), b.i32...)
	case Int64:
		out.i64 = append(append([]int64{}, a.i64...), b.i64...)
	case Float32:
		out.f32 = append(append([]float32{}, a.f32...), b.f32...)
	case Float64:
		out.f64 = append(append([]float64{}, a.f64...), b.f64...)
	case Bool:
		out.b = append(append([]bool{}, a.b...), b.b...)
	case String:
		out.str = append(append([]string{}, a.str...), b.str...)
	case Category:
		// Dictionaries can differ between chunks; re-encode against a's.
		out.dict = append([]string{}, a.dict...)
		index := make(map[string]int32, len(out.dict))
		for i, v := range out.dict {
			index[v] = int32(i)
		}
		out.code = append([]int32{}, a.code...)
		for i := 0; i < b.Len(); i++ {
			v := b.StringAt(i)
			code, ok := index[v]
			if !ok {
				code = int32(len(out.dict))
				out.dict = append(out.dict, v)
				index[v] = code
			}
			out.code = append(out.code, code)
		}
	case Timestamp:
		out.ts = append(append([]int64{}, a.ts...), b.ts...)
	default:
		return Column{}, fmt.Errorf("concat does not support kind %s", a.Kind)
	}

	if a.nulls != nil || b.nulls != nil {
		nulls := make([]bool, a.Len()+b.Len())
		for i := 0; i < a.Len(); i++ {
			nulls[i] = a.IsNull(i)
		}
		for i := 0; i < b.Len(); i++ {
			nulls[a.Len()+i] = b.IsNull(i)
		}
		out.nulls = nulls
	}
	return out, nil
}
