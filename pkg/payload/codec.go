package payload

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire envelopes. The shape tag comes first so operators can read cached
// entries directly in redis-cli.
type scalarEnvelope struct {
	Shape Kind `json:"shape"`
	Value any  `json:"value"`
}

type mappingEnvelope struct {
	Shape  Kind        `json:"shape"`
	Fields []fieldPair `json:"fields"`
}

type fieldPair struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type tableEnvelope struct {
	Shape   Kind     `json:"shape"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type seriesEnvelope struct {
	Shape  Kind        `json:"shape"`
	Points []pointPair `json:"points"`
}

type pointPair struct {
	Time  string `json:"time"`
	Value any    `json:"value"`
}

// Encode serializes a record into its canonical JSON payload.
// Returns ErrUnsupportedShape for a nil record of a concrete shape or any
// value that has no JSON-safe form.
func Encode(rec Record) ([]byte, error) {
	switch r := rec.(type) {
	case Scalar:
		v, err := sanitizeValue(r.Value)
		if err != nil {
			return nil, err
		}
		return json.Marshal(scalarEnvelope{Shape: KindScalar, Value: v})

	case *Mapping:
		if r == nil {
			return nil, fmt.Errorf("%w: nil mapping", ErrUnsupportedShape)
		}
		fields := make([]fieldPair, len(r.Fields))
		for i, f := range r.Fields {
			v, err := sanitizeValue(f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = fieldPair{Name: f.Name, Value: v}
		}
		return json.Marshal(mappingEnvelope{Shape: KindMapping, Fields: fields})

	case *Table:
		if r == nil {
			return nil, fmt.Errorf("%w: nil table", ErrUnsupportedShape)
		}
		columns := r.Columns
		if columns == nil {
			columns = []string{}
		}
		rows := make([][]any, len(r.Rows))
		for i, row := range r.Rows {
			out := make([]any, len(row))
			for j, cell := range row {
				v, err := sanitizeValue(cell)
				if err != nil {
					return nil, err
				}
				out[j] = v
			}
			rows[i] = out
		}
		return json.Marshal(tableEnvelope{Shape: KindTable, Columns: columns, Rows: rows})

	case *Series:
		if r == nil {
			return nil, fmt.Errorf("%w: nil series", ErrUnsupportedShape)
		}
		points := make([]pointPair, len(r.Points))
		for i, p := range r.Points {
			v, err := sanitizeValue(p.Value)
			if err != nil {
				return nil, err
			}
			points[i] = pointPair{Time: p.Time.UTC().Format(time.RFC3339), Value: v}
		}
		return json.Marshal(seriesEnvelope{Shape: KindSeries, Points: points})

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedShape, rec)
	}
}

// Validate cheaply checks that data is a canonical payload: well-formed
// JSON carrying a known shape tag. It does not rebuild the record, so it is
// the right check for serving cached bytes as-is.
func Validate(data []byte) error {
	var probe struct {
		Shape Kind `json:"shape"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	switch probe.Shape {
	case KindScalar, KindMapping, KindTable, KindSeries:
		return nil
	default:
		return fmt.Errorf("%w: shape %q", ErrUnsupportedShape, probe.Shape)
	}
}

// Decode parses a canonical JSON payload back into a record. Values come
// back in their sanitized form: NaN as nil, infinities as string sentinels,
// timestamps as RFC 3339 strings (series points excepted, which are parsed
// back into time.Time).
func Decode(data []byte) (Record, error) {
	var probe struct {
		Shape Kind `json:"shape"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	switch probe.Shape {
	case KindScalar:
		var env scalarEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode scalar payload: %w", err)
		}
		return Scalar{Value: env.Value}, nil

	case KindMapping:
		var env mappingEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode mapping payload: %w", err)
		}
		m := &Mapping{Fields: make([]Field, len(env.Fields))}
		for i, f := range env.Fields {
			m.Fields[i] = Field{Name: f.Name, Value: f.Value}
		}
		return m, nil

	case KindTable:
		var env tableEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode table payload: %w", err)
		}
		if env.Columns == nil {
			env.Columns = []string{}
		}
		if env.Rows == nil {
			env.Rows = [][]any{}
		}
		return &Table{Columns: env.Columns, Rows: env.Rows}, nil

	case KindSeries:
		var env seriesEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode series payload: %w", err)
		}
		s := &Series{Points: make([]Point, len(env.Points))}
		for i, p := range env.Points {
			ts, err := time.Parse(time.RFC3339, p.Time)
			if err != nil {
				return nil, fmt.Errorf("decode series timestamp %q: %w", p.Time, err)
			}
			s.Points[i] = Point{Time: ts, Value: p.Value}
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: shape %q", ErrUnsupportedShape, probe.Shape)
	}
}
