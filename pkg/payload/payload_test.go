package payload

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecode_Scalar(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "string", value: "US0378331005", want: "US0378331005"},
		{name: "float", value: 189.25, want: 189.25},
		{name: "bool", value: true, want: true},
		{name: "nil", value: nil, want: nil},
		{name: "nan becomes null", value: math.NaN(), want: nil},
		{name: "positive infinity sentinel", value: math.Inf(1), want: "Infinity"},
		{name: "negative infinity sentinel", value: math.Inf(-1), want: "-Infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(Scalar{Value: tt.value})
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			rec, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			scalar, ok := rec.(Scalar)
			if !ok {
				t.Fatalf("Decode returned %T, want Scalar", rec)
			}
			if !reflect.DeepEqual(scalar.Value, tt.want) {
				t.Errorf("round trip = %v (%T), want %v (%T)",
					scalar.Value, scalar.Value, tt.want, tt.want)
			}
		})
	}
}

func TestEncodeDecode_Mapping_PreservesFieldOrder(t *testing.T) {
	m := &Mapping{}
	m.Set("symbol", "AAPL")
	m.Set("shortName", "Apple Inc.")
	m.Set("marketCap", 2.95e12)
	m.Set("trailingPE", math.NaN())

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	rec, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded, ok := rec.(*Mapping)
	if !ok {
		t.Fatalf("Decode returned %T, want *Mapping", rec)
	}

	wantNames := []string{"symbol", "shortName", "marketCap", "trailingPE"}
	if len(decoded.Fields) != len(wantNames) {
		t.Fatalf("got %d fields, want %d", len(decoded.Fields), len(wantNames))
	}
	for i, name := range wantNames {
		if decoded.Fields[i].Name != name {
			t.Errorf("field[%d] = %q, want %q", i, decoded.Fields[i].Name, name)
		}
	}

	if decoded.Get("trailingPE") != nil {
		t.Errorf("NaN field = %v, want nil", decoded.Get("trailingPE"))
	}
	if decoded.Get("marketCap") != 2.95e12 {
		t.Errorf("marketCap = %v, want 2.95e12", decoded.Get("marketCap"))
	}
}

func TestEncodeDecode_Table(t *testing.T) {
	table := &Table{
		Columns: []string{"Date", "Open", "Close", "Volume"},
		Rows: [][]any{
			{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 179.55, 180.75, 73450000.0},
			{time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 180.12, math.NaN(), 61200000.0},
		},
	}

	data, err := Encode(table)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	rec, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded, ok := rec.(*Table)
	if !ok {
		t.Fatalf("Decode returned %T, want *Table", rec)
	}

	if !reflect.DeepEqual(decoded.Columns, table.Columns) {
		t.Errorf("columns = %v, want %v", decoded.Columns, table.Columns)
	}
	if len(decoded.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(decoded.Rows))
	}
	if decoded.Rows[0][0] != "2024-03-01T00:00:00Z" {
		t.Errorf("timestamp cell = %v, want RFC 3339 UTC string", decoded.Rows[0][0])
	}
	if decoded.Rows[1][2] != nil {
		t.Errorf("NaN cell = %v, want nil", decoded.Rows[1][2])
	}
	if decoded.Rows[0][2] != 180.75 {
		t.Errorf("close cell = %v, want 180.75", decoded.Rows[0][2])
	}
}

func TestEncodeDecode_EmptyTable(t *testing.T) {
	data, err := Encode(&Table{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Empty containers must be explicit on the wire, not absent.
	if !strings.Contains(string(data), `"rows":[]`) {
		t.Errorf("encoded empty table = %s, want explicit empty rows", data)
	}

	rec, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded, ok := rec.(*Table)
	if !ok {
		t.Fatalf("Decode returned %T, want *Table", rec)
	}
	if !decoded.Empty() {
		t.Errorf("decoded table not empty: %+v", decoded)
	}
	if decoded.Rows == nil || decoded.Columns == nil {
		t.Error("empty table decoded with nil containers")
	}
}

func TestEncodeDecode_Series(t *testing.T) {
	series := &Series{
		Points: []Point{
			{Time: time.Date(2024, 2, 9, 14, 30, 0, 0, time.UTC), Value: 0.24},
			{Time: time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC), Value: 0.25},
		},
	}

	data, err := Encode(series)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	rec, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded, ok := rec.(*Series)
	if !ok {
		t.Fatalf("Decode returned %T, want *Series", rec)
	}
	if len(decoded.Points) != 2 {
		t.Fatalf("got %d points, want 2", len(decoded.Points))
	}
	if !decoded.Points[0].Time.Equal(series.Points[0].Time) {
		t.Errorf("point[0] time = %v, want %v", decoded.Points[0].Time, series.Points[0].Time)
	}
	if decoded.Points[1].Value != 0.25 {
		t.Errorf("point[1] value = %v, want 0.25", decoded.Points[1].Value)
	}
}

func TestEncode_ByteStable(t *testing.T) {
	m := &Mapping{}
	m.Set("symbol", "MSFT")
	m.Set("currency", "USD")

	first, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if string(data) != string(first) {
			t.Fatalf("encode not byte-stable: %s vs %s", data, first)
		}
	}
}

func TestEncode_UnsupportedShape(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{name: "nil record", rec: nil},
		{name: "nil table", rec: (*Table)(nil)},
		{name: "unencodable value", rec: Scalar{Value: make(chan int)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.rec)
			if !errors.Is(err, ErrUnsupportedShape) {
				t.Errorf("Encode error = %v, want ErrUnsupportedShape", err)
			}
		})
	}
}

func TestDecode_UnknownShape(t *testing.T) {
	_, err := Decode([]byte(`{"shape":"matrix","value":1}`))
	if !errors.Is(err, ErrUnsupportedShape) {
		t.Errorf("Decode error = %v, want ErrUnsupportedShape", err)
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Error("Decode of invalid JSON should fail")
	}
}

func TestValidate(t *testing.T) {
	records := []Record{
		Scalar{Value: 42.0},
		&Mapping{Fields: []Field{{Name: "symbol", Value: "AAPL"}}},
		&Table{Columns: []string{"a"}, Rows: [][]any{{1.0}}},
		&Series{Points: []Point{{Time: time.Unix(1709251200, 0), Value: 0.25}}},
	}
	for _, rec := range records {
		data, err := Encode(rec)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if err := Validate(data); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", data, err)
		}
	}
}

func TestValidate_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "invalid json", data: `{not json`},
		{name: "unknown shape", data: `{"shape":"matrix","value":1}`},
		{name: "missing shape", data: `{"value":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate([]byte(tt.data)); err == nil {
				t.Error("Validate should reject the payload")
			}
		})
	}
}
