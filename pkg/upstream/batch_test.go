package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/quantlytic/market-proxy/internal/testutil"
	"github.com/quantlytic/market-proxy/pkg/payload"
)

func TestBatchQuotes(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	// Respond per requested symbol.
	mock.SetHandler("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbols")
		price := map[string]float64{"AAPL": 189.25, "MSFT": 420.5, "GOOG": 171.0}[symbol]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testutil.QuoteBody(symbol, price)))
	})

	client := newTestClient(t, mock)
	rec, err := client.BatchQuotes(context.Background(), []string{"AAPL", "MSFT", "GOOG"}, DefaultBatchConfig())
	if err != nil {
		t.Fatalf("BatchQuotes failed: %v", err)
	}

	table, ok := rec.(*payload.Table)
	if !ok {
		t.Fatalf("BatchQuotes returned %T, want *Table", rec)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(table.Rows))
	}

	// Rows keep request order regardless of fetch completion order.
	wantSymbols := []string{"AAPL", "MSFT", "GOOG"}
	for i, want := range wantSymbols {
		if table.Rows[i][0] != want {
			t.Errorf("row[%d] symbol = %v, want %v", i, table.Rows[i][0], want)
		}
	}

	if table.Columns[0] != "symbol" || table.Columns[1] != "error" {
		t.Errorf("columns = %v, want symbol and error first", table.Columns)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("made %d requests, want 3", mock.RequestCount())
	}
}

func TestBatchQuotes_PartialFailure(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	mock.SetHandler("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbols")
		if symbol == "BAD" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testutil.QuoteBody(symbol, 1)))
	})

	client := newTestClient(t, mock)
	rec, err := client.BatchQuotes(context.Background(), []string{"AAPL", "BAD"}, DefaultBatchConfig())
	if err != nil {
		t.Fatalf("BatchQuotes failed: %v", err)
	}

	table := rec.(*payload.Table)
	if len(table.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(table.Rows))
	}
	if table.Rows[0][1] != nil {
		t.Errorf("AAPL error cell = %v, want nil", table.Rows[0][1])
	}
	if table.Rows[1][1] == nil {
		t.Error("BAD error cell empty, want the fetch error")
	}
}

func TestBatchQuotes_AllFail(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v7/finance/quote", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"not found"}`,
	})

	client := newTestClient(t, mock)
	if _, err := client.BatchQuotes(context.Background(), []string{"A", "B"}, DefaultBatchConfig()); err == nil {
		t.Error("BatchQuotes should fail when every symbol fails")
	}
}

func TestBatchQuotes_PayloadEncodes(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testutil.QuoteBody(r.URL.Query().Get("symbols"), 2.5)))
	})

	client := newTestClient(t, mock)
	rec, err := client.BatchQuotes(context.Background(), []string{"AAPL"}, DefaultBatchConfig())
	if err != nil {
		t.Fatalf("BatchQuotes failed: %v", err)
	}

	data, err := payload.Encode(rec)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("encoded batch payload is not valid JSON: %s", data)
	}
}
