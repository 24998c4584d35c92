package stream

import (
	"context"
	"fmt"
	"time"

	"backtestsim/internal/loader"
	"backtestsim/internal/model"
)

// TimeSource emits one event per multiple of Resolution within the
// simulation interval (§4.B).
type TimeSource struct {
	Resolution time.Duration
}

func (s TimeSource) Input() model.Input {
	return model.TimeInput{Resolution: s.Resolution}
}

func (s TimeSource) Load(_ context.Context, start, end time.Time) ([]TimedValue, error) {
	if s.Resolution <= 0 {
		return nil, fmt.Errorf("stream: time input resolution must be positive, got %s", s.Resolution)
	}
	first := start.Truncate(s.Resolution)
	if first.Before(start) {
		first = first.Add(s.Resolution)
	}
	var out []TimedValue
	for t := first; !t.After(end); t = t.Add(s.Resolution) {
		out = append(out, TimedValue{Time: t, Value: t})
	}
	return out, nil
}

// CandleSource loads a market's candle history and emits one event per
// candle close, the value being the growing segment observed so far
// (§4.B).
type CandleSource struct {
	Loader       loader.CandleHistoryLoader
	Market       model.Market
	CandleLength time.Duration
	Start        time.Time
}

func (s CandleSource) Input() model.Input {
	return model.CandleHistoryInput{Market: s.Market, CandleLength: s.CandleLength, Start: s.Start}
}

func (s CandleSource) Load(ctx context.Context, start, end time.Time) ([]TimedValue, error) {
	seg, err := s.Loader.Load(ctx, start, end)
	if err != nil {
		return nil, err
	}
	all := seg.Candles()
	var out []TimedValue
	for i, c := range all {
		closeTime := c.CloseTime()
		if closeTime.Before(start) || closeTime.After(end) {
			continue
		}
		snapshot := model.NewCandleHistorySegmentFromCandles(s.Market, s.CandleLength, seg.Start, all[:i+1])
		out = append(out, TimedValue{Time: closeTime, Value: snapshot})
	}
	return out, nil
}

// TradeSource loads a market's own-trade history and emits one event per
// trade time, the value being the growing segment observed so far
// (§4.B).
type TradeSource struct {
	Loader loader.TradeHistoryLoader
	Market model.Market
	Start  time.Time
}

func (s TradeSource) Input() model.Input {
	return model.TradeHistoryInput{Market: s.Market, Start: s.Start}
}

func (s TradeSource) Load(ctx context.Context, start, end time.Time) ([]TimedValue, error) {
	seg, err := s.Loader.LoadHistory(ctx, start, &end)
	if err != nil {
		return nil, err
	}
	all := seg.Trades()
	var out []TimedValue
	for i, t := range all {
		if t.Time.Before(start) || t.Time.After(end) {
			continue
		}
		snapshot := model.NewTradeHistorySegmentFromTrades(s.Market, seg.Start, all[:i+1])
		out = append(out, TimedValue{Time: t.Time, Value: snapshot})
	}
	return out, nil
}
