package upstream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlytic/market-proxy/pkg/payload"
)

// BatchConfig holds batch quote fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel symbol fetches.
	MaxConcurrency int

	// Timeout per symbol fetch.
	Timeout time.Duration
}

// DefaultBatchConfig returns safe defaults for the provider.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 5,
		Timeout:        15 * time.Second,
	}
}

// symbolResult is the outcome of fetching one symbol.
type symbolResult struct {
	Symbol string
	Record payload.Record
	Err    error
}

// BatchQuotes fetches quotes for multiple symbols in parallel with bounded
// concurrency and merges them into one table (columns: symbol, plus the
// union of quote fields, sorted). A symbol whose fetch fails contributes an
// error row instead of failing the whole batch; if every symbol fails, the
// first error is returned.
func (c *Client) BatchQuotes(ctx context.Context, symbols []string, cfg BatchConfig) (payload.Record, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	results := make([]symbolResult, len(symbols))
	sem := make(chan struct{}, cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = symbolResult{Symbol: symbol, Err: ctx.Err()}
				return
			}

			fetchCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			rec, err := c.Quote(fetchCtx, symbol)
			if err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("Batch quote fetch failed")
			}
			results[i] = symbolResult{Symbol: symbol, Record: rec, Err: err}
		}(i, symbol)
	}
	wg.Wait()

	return mergeQuotes(results)
}

// mergeQuotes flattens per-symbol mappings into one table.
func mergeQuotes(results []symbolResult) (payload.Record, error) {
	// Union of field names across all successful quotes.
	nameSet := make(map[string]struct{})
	failures := 0
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			failures++
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		if m, ok := r.Record.(*payload.Mapping); ok {
			for _, f := range m.Fields {
				nameSet[f.Name] = struct{}{}
			}
		}
	}
	if len(results) > 0 && failures == len(results) {
		return nil, firstErr
	}

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	table := &payload.Table{
		Columns: append([]string{"symbol", "error"}, names...),
		Rows:    [][]any{},
	}
	for _, r := range results {
		row := make([]any, 0, len(table.Columns))
		row = append(row, r.Symbol)
		if r.Err != nil {
			row = append(row, r.Err.Error())
			for range names {
				row = append(row, nil)
			}
		} else {
			row = append(row, nil)
			m, _ := r.Record.(*payload.Mapping)
			for _, name := range names {
				if m != nil {
					row = append(row, m.Get(name))
				} else {
					row = append(row, nil)
				}
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
