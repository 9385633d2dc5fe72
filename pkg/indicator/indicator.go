// Package indicator computes technical indicators over price-history
// payloads. Indicators are derived data: they flow through the same
// cache-aside path as raw history, under their own endpoint categories.
package indicator

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantlytic/market-proxy/pkg/payload"
)

// ErrInsufficientData indicates the history window holds fewer closes than
// the indicator needs. The request, not the upstream, is at fault.
var ErrInsufficientData = errors.New("not enough historical data")

// SMA computes the simple moving average of closes over a sliding window.
// The first point appears once window closes are available, at the date of
// the window's last close.
func SMA(dates []time.Time, closes []float64, window int) (*payload.Series, error) {
	if window < 1 {
		return nil, fmt.Errorf("sma window must be positive, got %d", window)
	}
	if len(closes) < window {
		return nil, fmt.Errorf("%w: sma window %d needs %d closes, have %d",
			ErrInsufficientData, window, window, len(closes))
	}

	series := &payload.Series{Points: []payload.Point{}}
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			series.Points = append(series.Points, payload.Point{
				Time:  dates[i],
				Value: sum / float64(window),
			})
		}
	}
	return series, nil
}

// RSI computes the relative strength index of closes using Wilder's
// smoothing. The seed average is the plain mean of the first period gains
// and losses; later values smooth with weight (period-1)/period. The first
// point appears at the date of close index period.
func RSI(dates []time.Time, closes []float64, period int) (*payload.Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("%w: rsi period %d needs %d closes, have %d",
			ErrInsufficientData, period, period+1, len(closes))
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	series := &payload.Series{Points: []payload.Point{}}
	emit := func(t time.Time) {
		var rsi float64
		if avgLoss == 0 {
			rsi = 100
		} else {
			rs := avgGain / avgLoss
			rsi = 100 - 100/(1+rs)
		}
		series.Points = append(series.Points, payload.Point{Time: t, Value: rsi})
	}

	emit(dates[period])
	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		emit(dates[i])
	}
	return series, nil
}

// FromHistory extracts the dated close series from a price-history table.
// Rows with a missing close (market holidays, sparse intervals) are dropped.
func FromHistory(table *payload.Table) ([]time.Time, []float64, error) {
	dateCol, closeCol := -1, -1
	for i, c := range table.Columns {
		switch c {
		case "Date":
			dateCol = i
		case "Close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, nil, fmt.Errorf("history table missing Date/Close columns: %v", table.Columns)
	}

	var dates []time.Time
	var closes []float64
	for _, row := range table.Rows {
		ts, ok := row[dateCol].(time.Time)
		if !ok {
			continue
		}
		c, ok := row[closeCol].(float64)
		if !ok {
			continue
		}
		dates = append(dates, ts)
		closes = append(closes, c)
	}
	return dates, closes, nil
}

// SMAFromHistory computes the SMA series from a fetched history record.
func SMAFromHistory(rec payload.Record, window int) (payload.Record, error) {
	dates, closes, err := closesOf(rec)
	if err != nil {
		return nil, err
	}
	return SMA(dates, closes, window)
}

// RSIFromHistory computes the RSI series from a fetched history record.
func RSIFromHistory(rec payload.Record, period int) (payload.Record, error) {
	dates, closes, err := closesOf(rec)
	if err != nil {
		return nil, err
	}
	return RSI(dates, closes, period)
}

func closesOf(rec payload.Record) ([]time.Time, []float64, error) {
	table, ok := rec.(*payload.Table)
	if !ok {
		return nil, nil, fmt.Errorf("history record is %T, want table", rec)
	}
	return FromHistory(table)
}
