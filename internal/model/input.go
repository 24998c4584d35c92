package model

import (
	"fmt"
	"time"
)

// InputKind distinguishes the variants of Input. The numeric order is
// part of the deterministic (inputKind, inputKey) tie-break used by the
// timed input update stream (§4.B) — it must never be reordered once
// replays have been produced against it, since doing so would change
// event ordering for equal-timestamp events.
type InputKind int

const (
	KindTime InputKind = iota
	KindCandleHistory
	KindTradeHistory
	KindSimulatedOpenOrders
	KindOrderSnapshotHistory
	KindCompletedOperationRequests
)

func (k InputKind) String() string {
	switch k {
	case KindTime:
		return "Time"
	case KindCandleHistory:
		return "CandleHistory"
	case KindTradeHistory:
		return "TradeHistory"
	case KindSimulatedOpenOrders:
		return "SimulatedOpenOrders"
	case KindOrderSnapshotHistory:
		return "OrderSnapshotHistory"
	case KindCompletedOperationRequests:
		return "CompletedOperationRequestsInSession"
	default:
		return "Unknown"
	}
}

// Input identifies an external data source that the evaluation context
// can bind a value to. Key must be unique within Kind.
type Input interface {
	Kind() InputKind
	Key() string
}

// InputID is the canonical, comparable identity of an Input — used as a
// map key everywhere an Input needs to be looked up or compared.
type InputID struct {
	Kind InputKind
	Key  string
}

// IDOf returns the canonical identity of an Input.
func IDOf(in Input) InputID {
	return InputID{Kind: in.Kind(), Key: in.Key()}
}

func (id InputID) String() string {
	return fmt.Sprintf("%s(%s)", id.Kind, id.Key)
}

// Less implements the deterministic (inputKind, inputKey) tie-break
// order required by §4.B for events sharing the same timestamp.
func (id InputID) Less(other InputID) bool {
	if id.Kind != other.Kind {
		return id.Kind < other.Kind
	}
	return id.Key < other.Key
}

// TimeInput yields the current simulated time rounded to Resolution.
type TimeInput struct {
	Resolution time.Duration
}

func (TimeInput) Kind() InputKind { return KindTime }
func (t TimeInput) Key() string   { return t.Resolution.String() }

// CandleHistoryInput is an append-only candle sequence for a market.
type CandleHistoryInput struct {
	Market       Market
	CandleLength time.Duration
	Start        time.Time
}

func (CandleHistoryInput) Kind() InputKind { return KindCandleHistory }
func (c CandleHistoryInput) Key() string {
	return fmt.Sprintf("%s|%s|%d", c.Market.Key(), c.CandleLength, c.Start.UnixNano())
}

// TradeHistoryInput is an append-only own-trade sequence for a market.
type TradeHistoryInput struct {
	Market Market
	Start  time.Time
}

func (TradeHistoryInput) Kind() InputKind { return KindTradeHistory }
func (t TradeHistoryInput) Key() string {
	return fmt.Sprintf("%s|%d", t.Market.Key(), t.Start.UnixNano())
}

// SimulatedOpenOrdersInput is the set of currently open simulated orders.
type SimulatedOpenOrdersInput struct {
	Market Market
}

func (SimulatedOpenOrdersInput) Kind() InputKind { return KindSimulatedOpenOrders }
func (s SimulatedOpenOrdersInput) Key() string    { return s.Market.Key() }

// OrderSnapshotHistoryInput is the history of observed-order snapshots.
type OrderSnapshotHistoryInput struct {
	Market Market
}

func (OrderSnapshotHistoryInput) Kind() InputKind { return KindOrderSnapshotHistory }
func (o OrderSnapshotHistoryInput) Key() string    { return o.Market.Key() }

// CompletedOperationRequestsInSession is the ordered sequence of
// completed operation requests for the whole session; there is exactly
// one such input.
type CompletedOperationRequestsInSession struct{}

func (CompletedOperationRequestsInSession) Kind() InputKind { return KindCompletedOperationRequests }
func (CompletedOperationRequestsInSession) Key() string      { return "" }
