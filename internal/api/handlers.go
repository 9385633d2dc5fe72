package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quantlytic/market-proxy/pkg/indicator"
	"github.com/quantlytic/market-proxy/pkg/payload"
	"github.com/quantlytic/market-proxy/pkg/upstream"
)

// execute runs one request through the interceptor and writes the result.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, category string, args []string, fetch func(ctx context.Context) (payload.Record, error)) {
	data, err := s.interceptor.Execute(r.Context(), category, args, fetch)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []byte(`{"status":"ok"}`))
}

func (s *Server) handleTickerInfo(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	s.execute(w, r, "ticker-info", []string{symbol},
		func(ctx context.Context) (payload.Record, error) {
			return s.upstream.Quote(ctx, symbol)
		})
}

func (s *Server) handleTickerHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	rng := queryDefault(r, "range", "1y")
	interval := queryDefault(r, "interval", "1d")

	s.execute(w, r, "ticker-history", []string{symbol, rng, interval},
		func(ctx context.Context) (payload.Record, error) {
			return s.upstream.History(ctx, symbol, rng, interval)
		})
}

func (s *Server) handleTickerDividends(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	rng := queryDefault(r, "range", "5y")

	s.execute(w, r, "ticker-dividends", []string{symbol, rng},
		func(ctx context.Context) (payload.Record, error) {
			return s.upstream.Dividends(ctx, symbol, rng)
		})
}

func (s *Server) handleTickerFinancials(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	statement := queryDefault(r, "statement", "income")
	quarterly := r.URL.Query().Get("quarterly") == "true"

	switch statement {
	case "income", "balance-sheet", "cash-flow":
	default:
		writeError(w, http.StatusBadRequest, "statement must be income, balance-sheet or cash-flow")
		return
	}

	period := "annual"
	if quarterly {
		period = "quarterly"
	}

	s.execute(w, r, "ticker-financials", []string{symbol, statement, period},
		func(ctx context.Context) (payload.Record, error) {
			return s.upstream.Financials(ctx, symbol, statement, quarterly)
		})
}

func (s *Server) handleTickerSMA(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	rng := queryDefault(r, "range", "1y")
	interval := queryDefault(r, "interval", "1d")

	window, err := queryInt(r, "window", 20)
	if err != nil || window < 1 || window > 200 {
		writeError(w, http.StatusBadRequest, "window must be an integer between 1 and 200")
		return
	}

	s.execute(w, r, "indicator-sma", []string{symbol, rng, interval, strconv.Itoa(window)},
		func(ctx context.Context) (payload.Record, error) {
			rec, err := s.upstream.History(ctx, symbol, rng, interval)
			if err != nil {
				return nil, err
			}
			return indicator.SMAFromHistory(rec, window)
		})
}

func (s *Server) handleTickerRSI(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	rng := queryDefault(r, "range", "1y")
	interval := queryDefault(r, "interval", "1d")

	period, err := queryInt(r, "period", 14)
	if err != nil || period < 1 || period > 200 {
		writeError(w, http.StatusBadRequest, "period must be an integer between 1 and 200")
		return
	}

	s.execute(w, r, "indicator-rsi", []string{symbol, rng, interval, strconv.Itoa(period)},
		func(ctx context.Context) (payload.Record, error) {
			rec, err := s.upstream.History(ctx, symbol, rng, interval)
			if err != nil {
				return nil, err
			}
			return indicator.RSIFromHistory(rec, period)
		})
}

func (s *Server) handleBatchQuotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "symbols parameter is required")
		return
	}

	symbols := splitSymbols(raw)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols parameter is empty")
		return
	}
	if len(symbols) > 50 {
		writeError(w, http.StatusBadRequest, "at most 50 symbols per request")
		return
	}

	s.execute(w, r, "multi-ticker", symbols,
		func(ctx context.Context) (payload.Record, error) {
			return s.upstream.BatchQuotes(ctx, symbols, upstream.DefaultBatchConfig())
		})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	s.execute(w, r, "search-quotes", []string{q},
		func(ctx context.Context) (payload.Record, error) {
			return s.upstream.Search(ctx, q)
		})
}

func (s *Server) handleMarketSummary(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, "market-summary", nil,
		func(ctx context.Context) (payload.Record, error) {
			return s.upstream.MarketSummary(ctx)
		})
}

// splitSymbols normalizes a comma-separated symbol list.
func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}

func queryDefault(r *http.Request, name, fallback string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
		return v
	}
	return fallback
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// writeFetchError maps interceptor errors onto HTTP statuses. Store errors
// never reach here; upstream, indicator and normalization failures do.
func writeFetchError(w http.ResponseWriter, err error) {
	var upErr *upstream.Error
	switch {
	case errors.Is(err, indicator.ErrInsufficientData):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &upErr) && upErr.Class == upstream.ErrorClassClient:
		writeError(w, http.StatusBadGateway, upErr.Error())
	case errors.As(err, &upErr), errors.Is(err, upstream.ErrRetryExhausted):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, payload.ErrUnsupportedShape):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	writeJSON(w, status, body)
}
