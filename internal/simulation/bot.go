package simulation

import (
	"time"

	"backtestsim/internal/chartlog"
	"backtestsim/internal/model"
)

// Bot is the external collaborator the simulation replays against (§6):
// it contributes the markets to trade, its base candle length, the
// chart series it wants logged, and — per market — the eval whose value
// is the set of operations to dispatch this tick. The core treats Bot
// as a black box; internal/bot ships one illustrative implementation.
type Bot interface {
	Markets() []model.Market
	BasicCandleLength() time.Duration
	ChartDataSeriesConfigs() []chartlog.SeriesConfig
	// OperationsEval returns the eval whose value, when evaluated, is a
	// []model.Operation for market — the requests to dispatch this tick.
	OperationsEval(market model.Market) model.Eval
}
