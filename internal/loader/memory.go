package loader

import (
	"context"
	"time"

	"backtestsim/internal/model"
)

// InMemoryCandleLoader serves a fixed, pre-built candle segment, the way
// a cached fixture would in tests — no network I/O, no caching policy.
type InMemoryCandleLoader struct {
	Segment *model.CandleHistorySegment
}

func (l InMemoryCandleLoader) Load(_ context.Context, start, end time.Time) (*model.CandleHistorySegment, error) {
	market := l.Segment.Market
	out := model.NewCandleHistorySegment(market, l.Segment.Length, start)
	var candles []model.Candle
	for _, c := range l.Segment.Candles() {
		if c.StartTime.Before(start) {
			continue
		}
		if !c.StartTime.Before(end) {
			break
		}
		candles = append(candles, c)
	}
	for _, c := range candles {
		if err := out.Append(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InMemoryTradeLoader serves a fixed, pre-built trade segment.
type InMemoryTradeLoader struct {
	Segment *model.TradeHistorySegment
}

func (l InMemoryTradeLoader) LoadHistory(_ context.Context, start time.Time, end *time.Time) (*model.TradeHistorySegment, error) {
	out := model.NewTradeHistorySegment(l.Segment.Market, start)
	for _, t := range l.Segment.Trades() {
		if t.Time.Before(start) {
			continue
		}
		if end != nil && !t.Time.Before(*end) {
			break
		}
		if err := out.Append(t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InMemoryConnector is a fixture ExchangeConnector backed by
// pre-populated candle/trade loaders, keyed by market.
type InMemoryConnector struct {
	Candles map[string]InMemoryCandleLoader
	Trades  map[string]InMemoryTradeLoader
}

func (c InMemoryConnector) CandleHistoryLoader(market model.Market, _ time.Duration) CandleHistoryLoader {
	return c.Candles[market.Key()]
}

func (c InMemoryConnector) TradeHistoryLoader(market model.Market) TradeHistoryLoader {
	return c.Trades[market.Key()]
}
