// Package loader declares the narrow interfaces the simulation core
// consumes to obtain candle and trade history, an in-memory reference
// implementation for tests, and a CSV-backed cache loader reading from
// the configured cacheDirectory (§6). Real exchange REST/WebSocket
// connectivity is out of scope (§1) and lives outside this module —
// only a pre-populated local cache is implemented here.
package loader

import (
	"context"
	"fmt"
	"time"

	"backtestsim/internal/model"
)

// CandleHistoryLoader returns the candles for a market/length over a
// half-open window, contiguous, aligned, and ordered (§6).
type CandleHistoryLoader interface {
	Load(ctx context.Context, start, end time.Time) (*model.CandleHistorySegment, error)
}

// TradeHistoryLoader returns own-trades for a market with time >= start
// and < end when end is non-nil (§6).
type TradeHistoryLoader interface {
	LoadHistory(ctx context.Context, start time.Time, end *time.Time) (*model.TradeHistorySegment, error)
}

// ExchangeConnector hands out loaders scoped to one exchange.
type ExchangeConnector interface {
	CandleHistoryLoader(market model.Market, candleLength time.Duration) CandleHistoryLoader
	TradeHistoryLoader(market model.Market) TradeHistoryLoader
}

// ExchangeConnectorProvider resolves an exchange id to a connector.
// Credentials, if any, are carried by the concrete provider and are
// never part of this module's contract.
type ExchangeConnectorProvider func(exchangeID string) (ExchangeConnector, error)

// UnsupportedExchange reports an exchange id for which no connector is
// registered (§7). Nothing in this module returns it: marketplace.New
// does not check the exchange id it is given.
type UnsupportedExchange struct {
	ExchangeID string
}

func (e UnsupportedExchange) Error() string {
	return fmt.Sprintf("loader: unsupported exchange %q", e.ExchangeID)
}
