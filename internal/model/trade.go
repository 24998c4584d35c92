package model

import (
	"fmt"
	"time"
)

// Trade is one execution, own or observed. Quantity sign is the
// convention: positive is a buy, negative is a sell.
type Trade struct {
	ID       string
	Time     time.Time
	Market   Market
	Price    float64
	Quantity float64
	Fees     float64
	// OrderID is empty when the trade is not attributable to a known
	// simulated/tracked order.
	OrderID string
}

// TradeHistorySegment is an append-only sequence of trades ordered by
// (time, insertion order); every trade's time is >= the segment start.
type TradeHistorySegment struct {
	Market Market
	Start  time.Time

	trades []Trade
}

// NewTradeHistorySegment creates an empty segment.
func NewTradeHistorySegment(market Market, start time.Time) *TradeHistorySegment {
	return &TradeHistorySegment{Market: market, Start: start}
}

// Append adds a trade to the end of the segment, validating ordering.
func (s *TradeHistorySegment) Append(t Trade) error {
	if t.Time.Before(s.Start) {
		return fmt.Errorf("trade time %s precedes segment start %s", t.Time, s.Start)
	}
	if n := len(s.trades); n > 0 && t.Time.Before(s.trades[n-1].Time) {
		return fmt.Errorf("trade time %s is out of order relative to prior trade at %s", t.Time, s.trades[n-1].Time)
	}
	s.trades = append(s.trades, t)
	return nil
}

// Len returns the number of trades in the segment.
func (s *TradeHistorySegment) Len() int {
	if s == nil {
		return 0
	}
	return len(s.trades)
}

// At returns the trade at index i.
func (s *TradeHistorySegment) At(i int) Trade {
	return s.trades[i]
}

// Trades returns a defensive copy of the full trade slice.
func (s *TradeHistorySegment) Trades() []Trade {
	out := make([]Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Tail returns a defensive copy of the trades appended since index from.
func (s *TradeHistorySegment) Tail(from int) []Trade {
	if from >= len(s.trades) {
		return nil
	}
	out := make([]Trade, len(s.trades)-from)
	copy(out, s.trades[from:])
	return out
}

// NewTradeHistorySegmentFromTrades builds a segment over an
// already-validated trade slice without re-checking ordering. Used by
// internal/stream for cheap immutable growing-history snapshots; the
// caller must not mutate trades afterward.
func NewTradeHistorySegmentFromTrades(market Market, start time.Time, trades []Trade) *TradeHistorySegment {
	return &TradeHistorySegment{Market: market, Start: start, trades: trades}
}
