// Package upstream provides the HTTP client for the market-data provider.
// Each fetch method returns a payload record; the cache layer treats the
// provider as an opaque producer and never sees HTTP details.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/quantlytic/market-proxy/pkg/logging"
	"github.com/quantlytic/market-proxy/pkg/payload"
)

// Prometheus metrics for upstream operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "market_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the market-data provider.
	BaseURL string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://query1.finance.yahoo.com",
		UserAgent: "market-proxy/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// Client fetches market data over HTTP with retry and error classification.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates an upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logging.NewLogger("upstream"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// getJSON performs a GET with retry and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var body []byte
	var lastClass ErrorClass

	retryErr := retryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastClass = ErrorClassNetwork
			errorsTotal.WithLabelValues(string(lastClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Upstream request failed")
			return &Error{Class: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			lastClass = classify(resp.StatusCode)
			errorsTotal.WithLabelValues(string(lastClass)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(lastClass)).
				Msg("Upstream request error")
			return &Error{
				StatusCode: resp.StatusCode,
				Class:      lastClass,
				Message:    resp.Status,
			}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			lastClass = ErrorClassNetwork
			return &Error{Class: ErrorClassNetwork, Message: "read response body", Err: err}
		}
		return nil
	}, func(error) ErrorClass {
		return lastClass
	})
	if retryErr != nil {
		return retryErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}

// Quote returns the current quote summary for a symbol as a mapping.
func (c *Client) Quote(ctx context.Context, symbol string) (payload.Record, error) {
	var resp struct {
		QuoteResponse struct {
			Result []map[string]any `json:"result"`
		} `json:"quoteResponse"`
	}

	query := url.Values{"symbols": []string{symbol}}
	if err := c.getJSON(ctx, "/v7/finance/quote", query, &resp); err != nil {
		return nil, err
	}

	if len(resp.QuoteResponse.Result) == 0 {
		// Unknown symbol: a valid, cacheable empty answer.
		return &payload.Mapping{}, nil
	}
	return mapToMapping(resp.QuoteResponse.Result[0]), nil
}

// chartResponse is the shape of the provider's chart endpoint.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
		} `json:"result"`
	} `json:"chart"`
}

// History returns OHLCV price history for a symbol as a table. An unknown
// symbol or empty range yields an empty table, not an error.
func (c *Client) History(ctx context.Context, symbol, rng, interval string) (payload.Record, error) {
	var resp chartResponse

	query := url.Values{
		"range":    []string{rng},
		"interval": []string{interval},
	}
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), query, &resp); err != nil {
		return nil, err
	}

	table := &payload.Table{
		Columns: []string{"Date", "Open", "High", "Low", "Close", "Volume"},
		Rows:    [][]any{},
	}

	if len(resp.Chart.Result) == 0 {
		return table, nil
	}
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return table, nil
	}
	quote := result.Indicators.Quote[0]

	for i, ts := range result.Timestamp {
		row := []any{
			time.Unix(ts, 0).UTC(),
			floatCell(quote.Open, i),
			floatCell(quote.High, i),
			floatCell(quote.Low, i),
			floatCell(quote.Close, i),
			floatCell(quote.Volume, i),
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// Dividends returns the dividend history for a symbol as a time series.
func (c *Client) Dividends(ctx context.Context, symbol, rng string) (payload.Record, error) {
	var resp chartResponse

	query := url.Values{
		"range":    []string{rng},
		"interval": []string{"1d"},
		"events":   []string{"div"},
	}
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), query, &resp); err != nil {
		return nil, err
	}

	series := &payload.Series{Points: []payload.Point{}}
	if len(resp.Chart.Result) == 0 {
		return series, nil
	}

	for _, div := range resp.Chart.Result[0].Events.Dividends {
		series.Points = append(series.Points, payload.Point{
			Time:  time.Unix(div.Date, 0).UTC(),
			Value: div.Amount,
		})
	}
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Time.Before(series.Points[j].Time)
	})
	return series, nil
}

// Search returns matching quotes for a free-text query as a table.
func (c *Client) Search(ctx context.Context, q string) (payload.Record, error) {
	var resp struct {
		Quotes []struct {
			Symbol    string `json:"symbol"`
			ShortName string `json:"shortname"`
			Exchange  string `json:"exchange"`
			QuoteType string `json:"quoteType"`
		} `json:"quotes"`
	}

	query := url.Values{"q": []string{q}}
	if err := c.getJSON(ctx, "/v1/finance/search", query, &resp); err != nil {
		return nil, err
	}

	table := &payload.Table{
		Columns: []string{"symbol", "shortName", "exchange", "quoteType"},
		Rows:    [][]any{},
	}
	for _, quote := range resp.Quotes {
		table.Rows = append(table.Rows, []any{
			quote.Symbol, quote.ShortName, quote.Exchange, quote.QuoteType,
		})
	}
	return table, nil
}

// MarketSummary returns the state of the major market indices as a table.
func (c *Client) MarketSummary(ctx context.Context) (payload.Record, error) {
	var resp struct {
		MarketSummaryResponse struct {
			Result []struct {
				Symbol           string `json:"symbol"`
				FullExchangeName string `json:"fullExchangeName"`
				MarketState      string `json:"marketState"`
				RegularMarketPrice struct {
					Raw float64 `json:"raw"`
				} `json:"regularMarketPrice"`
			} `json:"result"`
		} `json:"marketSummaryResponse"`
	}

	query := url.Values{"lang": []string{"en-US"}, "region": []string{"US"}}
	if err := c.getJSON(ctx, "/v6/finance/quote/marketSummary", query, &resp); err != nil {
		return nil, err
	}

	table := &payload.Table{
		Columns: []string{"symbol", "exchange", "marketState", "price"},
		Rows:    [][]any{},
	}
	for _, r := range resp.MarketSummaryResponse.Result {
		table.Rows = append(table.Rows, []any{
			r.Symbol, r.FullExchangeName, r.MarketState, r.RegularMarketPrice.Raw,
		})
	}
	return table, nil
}

// Financials returns a financial-statement module for a symbol as a
// mapping. statement selects the quoteSummary module (e.g. "income",
// "balance-sheet", "cash-flow"); quarterly selects the quarterly variant.
func (c *Client) Financials(ctx context.Context, symbol, statement string, quarterly bool) (payload.Record, error) {
	module, err := statementModule(statement, quarterly)
	if err != nil {
		return nil, err
	}

	var resp struct {
		QuoteSummary struct {
			Result []map[string]any `json:"result"`
		} `json:"quoteSummary"`
	}

	query := url.Values{"modules": []string{module}}
	if err := c.getJSON(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(symbol), query, &resp); err != nil {
		return nil, err
	}

	if len(resp.QuoteSummary.Result) == 0 {
		return &payload.Mapping{}, nil
	}
	return mapToMapping(resp.QuoteSummary.Result[0]), nil
}

// statementModule maps the public statement name to the provider module.
func statementModule(statement string, quarterly bool) (string, error) {
	var annual, quarter string
	switch statement {
	case "income":
		annual, quarter = "incomeStatementHistory", "incomeStatementHistoryQuarterly"
	case "balance-sheet":
		annual, quarter = "balanceSheetHistory", "balanceSheetHistoryQuarterly"
	case "cash-flow":
		annual, quarter = "cashflowStatementHistory", "cashflowStatementHistoryQuarterly"
	default:
		return "", fmt.Errorf("unknown statement %q", statement)
	}
	if quarterly {
		return quarter, nil
	}
	return annual, nil
}

// mapToMapping converts a decoded JSON object into an ordered mapping.
// JSON decoding loses object order, so fields are sorted by name to keep
// encoded payloads byte-stable across fetches.
func mapToMapping(m map[string]any) *payload.Mapping {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &payload.Mapping{Fields: make([]payload.Field, len(names))}
	for i, name := range names {
		out.Fields[i] = payload.Field{Name: name, Value: m[name]}
	}
	return out
}

// floatCell reads column i of a sparse indicator slice, mapping missing
// values to nil.
func floatCell(values []*float64, i int) any {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	return *values[i]
}
