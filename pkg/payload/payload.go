// Package payload defines the canonical, JSON-safe representation of
// upstream market-data records. Every record is one of four shapes:
// scalar, flat mapping, row-oriented table, or time-indexed series.
// The encoded form is what the cache stores and what handlers return.
package payload

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnsupportedShape indicates a record (or a value inside it) cannot be
// represented as a canonical payload. Callers must treat this as a
// non-cacheable failure.
var ErrUnsupportedShape = errors.New("unsupported record shape")

// Kind identifies the shape of a record.
type Kind string

const (
	KindScalar  Kind = "scalar"
	KindMapping Kind = "mapping"
	KindTable   Kind = "table"
	KindSeries  Kind = "series"
)

// Record is the tagged-variant type for upstream data. Exactly one of
// Scalar, Mapping, Table and Series implements it.
type Record interface {
	Kind() Kind
}

// Scalar wraps a single primitive value.
type Scalar struct {
	Value any
}

// Kind implements Record.
func (Scalar) Kind() Kind { return KindScalar }

// Field is one named value of a Mapping. Fields keep their order so that
// encoded payloads are byte-stable across cache hits.
type Field struct {
	Name  string
	Value any
}

// Mapping is an ordered set of named fields (e.g. a quote summary).
type Mapping struct {
	Fields []Field
}

// Kind implements Record.
func (*Mapping) Kind() Kind { return KindMapping }

// Set appends a field, replacing an existing field with the same name.
func (m *Mapping) Set(name string, value any) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			m.Fields[i].Value = value
			return
		}
	}
	m.Fields = append(m.Fields, Field{Name: name, Value: value})
}

// Get returns the value for name, or nil if absent.
func (m *Mapping) Get(name string) any {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return m.Fields[i].Value
		}
	}
	return nil
}

// Table is a row-oriented table with named, ordered columns
// (e.g. price history, search results, financial statements).
type Table struct {
	Columns []string
	Rows    [][]any
}

// Kind implements Record.
func (*Table) Kind() Kind { return KindTable }

// Empty reports whether the table holds no rows. An empty table is still a
// valid, cacheable payload, distinct from a cache miss.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// Point is one timestamped observation of a Series.
type Point struct {
	Time  time.Time
	Value any
}

// Series is an ordered sequence of timestamped values
// (e.g. dividends, closing prices).
type Series struct {
	Points []Point
}

// Kind implements Record.
func (*Series) Kind() Kind { return KindSeries }

// sanitizeValue converts a single value into its JSON-safe form:
// NaN becomes nil, infinities become string sentinels, timestamps become
// RFC 3339 UTC strings, containers are sanitized recursively.
func sanitizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float64:
		return sanitizeFloat(x), nil
	case float32:
		return sanitizeFloat(float64(x)), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339), nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			s, err := sanitizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			s, err := sanitizeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: value of type %T", ErrUnsupportedShape, v)
	}
}

func sanitizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return nil
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}
