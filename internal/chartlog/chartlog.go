// Package chartlog implements the chart data logger (§4.F): it
// aggregates a market's base candles to a coarser interval and, at each
// aggregated boundary, snapshots a configured set of named evals taken
// at the aggregate candle's open and close. Structurally it is a
// defensive-copy accessor over an internally-owned slice, generalized
// to a per-market timeseries of named snapshots instead of a flat trade
// list.
package chartlog

import (
	"fmt"
	"time"

	"backtestsim/internal/model"
)

// SeriesConfig configures one market's chart series: how many base
// candles make up one aggregated candle, and which named evals to read
// at the aggregate's open and close.
type SeriesConfig struct {
	Market           model.Market
	AggregationRatio int
	CandleStartEvals map[string]model.Eval
	CandleEndEvals   map[string]model.Eval
}

// Snapshot is one recorded aggregated candle's worth of eval values.
type Snapshot struct {
	OpenTime  time.Time
	CloseTime time.Time
	Values    map[string]any
}

// Evaluator evaluates one eval against the caller's current context and
// returns its value.
type Evaluator func(model.Eval) (any, error)

type marketState struct {
	config  SeriesConfig
	count   int
	openAt  time.Time
	pending map[string]any
	series  []Snapshot
}

// Logger accumulates per-market chart series as the replay loop advances.
type Logger struct {
	markets map[string]*marketState
}

// New builds a Logger from the bot's chart series configuration.
func New(configs []SeriesConfig) *Logger {
	markets := make(map[string]*marketState, len(configs))
	for _, c := range configs {
		if c.AggregationRatio < 1 {
			c.AggregationRatio = 1
		}
		markets[c.Market.Key()] = &marketState{config: c}
	}
	return &Logger{markets: markets}
}

// OnBaseCandle is invoked once per base candle close for market. It
// opens a new aggregate window when count crosses a multiple of
// AggregationRatio (evaluating candleStartEvals), and closes the window
// when the ratio is reached (evaluating candleEndEvals and appending a
// Snapshot). Markets with no configured series are a no-op.
func (l *Logger) OnBaseCandle(market model.Market, baseOpen, baseClose time.Time, eval Evaluator) error {
	st, ok := l.markets[market.Key()]
	if !ok {
		return nil
	}

	if st.count%st.config.AggregationRatio == 0 {
		st.openAt = baseOpen
		st.pending = map[string]any{}
		for name, e := range st.config.CandleStartEvals {
			v, err := eval(e)
			if err != nil {
				return fmt.Errorf("chartlog: evaluating start eval %q for %s: %w", name, market, err)
			}
			st.pending[name] = v
		}
	}

	st.count++

	if st.count%st.config.AggregationRatio == 0 {
		values := st.pending
		if values == nil {
			values = map[string]any{}
		}
		for name, e := range st.config.CandleEndEvals {
			v, err := eval(e)
			if err != nil {
				return fmt.Errorf("chartlog: evaluating end eval %q for %s: %w", name, market, err)
			}
			values[name] = v
		}
		st.series = append(st.series, Snapshot{OpenTime: st.openAt, CloseTime: baseClose, Values: values})
		st.pending = nil
	}

	return nil
}

// Snapshot returns the most recently recorded aggregate for market.
func (l *Logger) Snapshot(market model.Market) (Snapshot, bool) {
	st, ok := l.markets[market.Key()]
	if !ok || len(st.series) == 0 {
		return Snapshot{}, false
	}
	return st.series[len(st.series)-1], true
}

// Series returns a defensive copy of market's full recorded timeseries.
func (l *Logger) Series(market model.Market) []Snapshot {
	st, ok := l.markets[market.Key()]
	if !ok {
		return nil
	}
	out := make([]Snapshot, len(st.series))
	copy(out, st.series)
	return out
}
