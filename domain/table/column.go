package table

import (
	"math"
	"time"

	"offerctr/domain/core"
)

// Column holds one typed column of values. Storage is one of the physical
// slices below depending on Kind; the narrow integer and float forms exist
// so downcasting actually shrinks the resident footprint.
type Column struct {
	Name string
	Kind Kind

	i8   []int8
	i16  []int16
	i32  []int32
	i64  []int64
	f32  []float32
	f64  []float64
	b    []bool
	str  []string
	code []int32 // category codes into dict
	dict []string
	ts   []int64 // unix microseconds

	nulls []bool // nil when the column has no missing values
}

// Constructors. Sources decode into the widest form; Downcast narrows.

func NewIntColumn(name string, values []int64) Column {
	return Column{Name: name, Kind: Int64, i64: values}
}

func NewFloatColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: Float64, f64: values}
}

func NewBoolColumn(name string, values []bool) Column {
	return Column{Name: name, Kind: Bool, b: values}
}

func NewStringColumn(name string, values []string) Column {
	return Column{Name: name, Kind: String, str: values}
}

func NewCategoryColumn(name string, codes []int32, dict []string) Column {
	return Column{Name: name, Kind: Category, code: codes, dict: dict}
}

func NewTimestampColumn(name string, values []time.Time) Column {
	ts := make([]int64, len(values))
	for i, v := range values {
		ts[i] = v.UnixMicro()
	}
	return Column{Name: name, Kind: Timestamp, ts: ts}
}

// WithNulls attaches a validity mask. len(nulls) must equal Len().
func (c Column) WithNulls(nulls []bool) Column {
	c.nulls = nulls
	return c
}

// Len returns the number of rows in the column
func (c *Column) Len() int {
	switch c.Kind {
	case Int8:
		return len(c.i8)
	case Int16:
		return len(c.i16)
	case Int32:
		return len(c.i32)
	case Int64:
		return len(c.i64)
	case Float32:
		return len(c.f32)
	case Float64:
		return len(c.f64)
	case Bool:
		return len(c.b)
	case String:
		return len(c.str)
	case Category:
		return len(c.code)
	case Timestamp:
		return len(c.ts)
	}
	return 0
}

// IsNull reports whether row i is missing
func (c *Column) IsNull(i int) bool {
	return c.nulls != nil && c.nulls[i]
}

// HasNulls reports whether any row is missing
func (c *Column) HasNulls() bool {
	for _, n := range c.nulls {
		if n {
			return true
		}
	}
	return false
}

// IntAt returns row i widened to int64. Valid for integer kinds and Bool.
func (c *Column) IntAt(i int) int64 {
	switch c.Kind {
	case Int8:
		return int64(c.i8[i])
	case Int16:
		return int64(c.i16[i])
	case Int32:
		return int64(c.i32[i])
	case Int64:
		return c.i64[i]
	case Bool:
		if c.b[i] {
			return 1
		}
		return 0
	}
	return 0
}

// Float64At returns row i widened to float64. Valid for numeric kinds and Bool.
func (c *Column) Float64At(i int) float64 {
	switch c.Kind {
	case Float32:
		return float64(c.f32[i])
	case Float64:
		return c.f64[i]
	case Int8, Int16, Int32, Int64, Bool:
		return float64(c.IntAt(i))
	}
	return math.NaN()
}

// StringAt returns row i as text. Valid for String and Category.
func (c *Column) StringAt(i int) string {
	switch c.Kind {
	case String:
		return c.str[i]
	case Category:
		code := c.code[i]
		if code < 0 || int(code) >= len(c.dict) {
			return ""
		}
		return c.dict[code]
	}
	return ""
}

// TimeAt returns row i as a timestamp. Valid for Timestamp.
func (c *Column) TimeAt(i int) core.Timestamp {
	return core.NewTimestamp(time.UnixMicro(c.ts[i]).UTC())
}

// Dict returns the category dictionary (Category columns only)
func (c *Column) Dict() []string {
	return c.dict
}

// ByteSize estimates the resident footprint of the column in bytes.
// String headers count 16 bytes each on 64-bit platforms.
func (c *Column) ByteSize() int64 {
	var size int64
	switch c.Kind {
	case Int8, Bool:
		size = int64(c.Len())
	case Int16:
		size = int64(c.Len()) * 2
	case Int32:
		size = int64(c.Len()) * 4
	case Int64, Float64, Timestamp:
		size = int64(c.Len()) * 8
	case Float32:
		size = int64(c.Len()) * 4
	case String:
		size = int64(len(c.str)) * 16
		for _, s := range c.str {
			size += int64(len(s))
		}
	case Category:
		size = int64(len(c.code)) * 4
		size += int64(len(c.dict)) * 16
		for _, s := range c.dict {
			size += int64(len(s))
		}
	}
	if c.nulls != nil {
		size += int64(len(c.nulls))
	}
	return size
}

// Downcast rewrites the column to the narrowest lossless representation:
// integers shrink to the smallest width holding their range, float64 becomes
// float32 only when every value round-trips exactly, and strings become
// dictionary-encoded categories when the dictionary pays for itself. Values
// are never truncated.
func (c Column) Downcast() Column {
	switch c.Kind {
	case Int64, Int32, Int16:
		return c.downcastInt()
	case Float64:
		return c.downcastFloat()
	case String:
		return c.downcastString()
	}
	return c
}

func (c Column) downcastInt() Column {
	n := c.Len()
	if n == 0 {
		return c
	}
	var lo, hi int64 = math.MaxInt64, math.MinInt64
	for i := 0; i < n; i++ {
		v := c.IntAt(i)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	switch {
	case lo >= math.MinInt8 && hi <= math.MaxInt8:
		out := make([]int8, n)
		for i := 0; i < n; i++ {
			out[i] = int8(c.IntAt(i))
		}
		return Column{Name: c.Name, Kind: Int8, i8: out, nulls: c.nulls}
	case lo >= math.MinInt16 && hi <= math.MaxInt16:
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			out[i] = int16(c.IntAt(i))
		}
		return Column{Name: c.Name, Kind: Int16, i16: out, nulls: c.nulls}
	case lo >= math.MinInt32 && hi <= math.MaxInt32:
		if c.Kind == Int32 {
			return c
		}
		out := make([]int32, n)
		for i := 0; i < n; i++ {
			out[i] = int32(c.IntAt(i))
		}
		return Column{Name: c.Name, Kind: Int32, i32: out, nulls: c.nulls}
	}
	return c
}

func (c Column) downcastFloat() Column {
	for _, v := range c.f64 {
		if math.IsNaN(v) {
			continue
		}
		if float64(float32(v)) != v {
			return c
		}
	}
	out := make([]float32, len(c.f64))
	for i, v := range c.f64 {
		out[i] = float32(v)
	}
	return Column{Name: c.Name, Kind: Float32, f32: out, nulls: c.nulls}
}

func (c Column) downcastString() Column {
	n := len(c.str)
	if n == 0 {
		return c
	}
	index := make(map[string]int32, 64)
	codes := make([]int32, n)
	var dict []string
	for i, s := range c.str {
		code, ok := index[s]
		if !ok {
			code = int32(len(dict))
			index[s] = code
			dict = append(dict, s)
		}
		codes[i] = code
	}
	// Encoding only pays off when values repeat
	if len(dict)*2 > n {
		return c
	}
	return Column{Name: c.Name, Kind: Category, code: codes, dict: dict, nulls: c.nulls}
}

// gather builds a new column from the given row indices. An index of -1
// produces a null row (used by left joins with no match).
func (c *Column) gather(indices []int) Column {
	n := len(indices)
	var nulls []bool
	setNull := func(i int) {
		if nulls == nil {
			nulls = make([]bool, n)
		}
		nulls[i] = true
	}

	out := Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Int8:
		vals := make([]int8, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.i8[idx]
		}
		out.i8 = vals
	case Int16:
		vals := make([]int16, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.i16[idx]
		}
		out.i16 = vals
	case Int32:
		vals := make([]int32, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.i32[idx]
		}
		out.i32 = vals
	case Int64:
		vals := make([]int64, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.i64[idx]
		}
		out.i64 = vals
	case Float32:
		vals := make([]float32, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.f32[idx]
		}
		out.f32 = vals
	case Float64:
		vals := make([]float64, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.f64[idx]
		}
		out.f64 = vals
	case Bool:
		vals := make([]bool, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.b[idx]
		}
		out.b = vals
	case String:
		vals := make([]string, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.str[idx]
		}
		out.str = vals
	case Category:
		vals := make([]int32, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				vals[i] = -1
				continue
			}
			vals[i] = c.code[idx]
		}
		out.code = vals
		out.dict = c.dict
	case Timestamp:
		vals := make([]int64, n)
		for i, idx := range indices {
			if idx < 0 || c.IsNull(idx) {
				setNull(i)
				continue
			}
			vals[i] = c.ts[idx]
		}
		out.ts = vals
	}
	out.nulls = nulls
	return out
}
