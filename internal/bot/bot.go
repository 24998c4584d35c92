// Package bot ships one illustrative Bot implementation (§12): Trend, a
// minimal trend/range classifier that composes pkg/ta indicators into a
// MarketState and emits limit-order operations from it. It exists to
// exercise internal/simulation end to end, not as a strategy library —
// trimmed to the classification and order-emission core; adaptive
// risk-sizing machinery (position scale factors, drawdown throttling)
// is out of scope here.
package bot

import (
	"time"

	"backtestsim/internal/chartlog"
	"backtestsim/internal/evalctx"
	"backtestsim/internal/model"
	"backtestsim/pkg/ta"
)

// MarketState is the regime Trend classifies each tick into.
type MarketState string

const (
	StateInitial         MarketState = "INITIAL"
	StateStrongUpTrend   MarketState = "STRONG_UP_TREND"
	StateStrongDownTrend MarketState = "STRONG_DOWN_TREND"
	StateHighVolRanging  MarketState = "HIGH_VOL_RANGING"
	StateLowVolRanging   MarketState = "LOW_VOL_RANGING"
)

// Config parameterizes Trend for one market.
type Config struct {
	Market       model.Market
	CandleLength time.Duration
	HistoryStart time.Time

	RSIPeriod int
	SMAPeriod int
	ATRPeriod int

	// TrendRSIThreshold is the RSI level above which momentum counts as
	// a strong up-trend confirmation, and below 100-threshold for down.
	TrendRSIThreshold float64
	// VolATRThreshold is the ATR-over-price ratio above which a
	// non-trending market counts as high-vol rather than low-vol.
	VolATRThreshold float64

	OrderQuantity    float64
	AggregationRatio int
}

// Trend is a reference Bot: it classifies each market into MarketState
// from RSI/SMA/ATR and places a single resting limit order in the
// direction of a confirmed strong trend, canceling it once the trend
// breaks.
type Trend struct {
	cfg Config
}

// NewTrend builds a Trend bot for cfg.
func NewTrend(cfg Config) *Trend {
	return &Trend{cfg: cfg}
}

func (t *Trend) Markets() []model.Market { return []model.Market{t.cfg.Market} }

func (t *Trend) BasicCandleLength() time.Duration { return t.cfg.CandleLength }

func (t *Trend) candleInput() model.CandleHistoryInput {
	return model.CandleHistoryInput{Market: t.cfg.Market, CandleLength: t.cfg.CandleLength, Start: t.cfg.HistoryStart}
}

func (t *Trend) indicatorEvals() (rsi, sma, atr model.Eval) {
	source := evalctx.Ref(t.candleInput())
	return ta.RSIEval(source, t.cfg.RSIPeriod), ta.SMAEval(source, t.cfg.SMAPeriod), ta.ATREval(source, t.cfg.ATRPeriod)
}

// StateEval is the Derived eval computing MarketState from the
// configured indicators (exported so tests and chart logging can
// reference it directly).
func (t *Trend) StateEval() model.Eval {
	source := evalctx.Ref(t.candleInput())
	rsi, sma, atr := t.indicatorEvals()
	return evalctx.Derive("trend-market-state", []model.Eval{source, rsi, sma, atr}, func(values []any) (any, error) {
		seg, _ := values[0].(*model.CandleHistorySegment)
		candle, ok := seg.Last()
		if !ok {
			return StateInitial, nil
		}
		rsiVal, _ := values[1].(float64)
		smaVal, _ := values[2].(float64)
		atrVal, _ := values[3].(float64)

		return t.classify(candle.Close, rsiVal, smaVal, atrVal), nil
	})
}

func (t *Trend) classify(price, rsi, sma, atr float64) MarketState {
	if sma == 0 {
		return StateInitial
	}

	upTrend := price > sma && rsi >= t.cfg.TrendRSIThreshold
	downTrend := price < sma && rsi <= (100-t.cfg.TrendRSIThreshold)

	switch {
	case upTrend:
		return StateStrongUpTrend
	case downTrend:
		return StateStrongDownTrend
	}

	if price == 0 {
		return StateLowVolRanging
	}
	if atr/price >= t.cfg.VolATRThreshold {
		return StateHighVolRanging
	}
	return StateLowVolRanging
}

func (t *Trend) ChartDataSeriesConfigs() []chartlog.SeriesConfig {
	rsi, sma, atr := t.indicatorEvals()
	return []chartlog.SeriesConfig{{
		Market:           t.cfg.Market,
		AggregationRatio: t.cfg.AggregationRatio,
		CandleEndEvals: map[string]model.Eval{
			"rsi":   rsi,
			"sma":   sma,
			"atr":   atr,
			"state": t.StateEval(),
		},
	}}
}

// OperationsEval emits a single resting buy when the state is a
// confirmed up-trend and no buy is open, a single resting sell on a
// confirmed down-trend, and cancels any resting order once the trend
// that justified it breaks.
func (t *Trend) OperationsEval(market model.Market) model.Eval {
	source := evalctx.Ref(t.candleInput())
	state := t.StateEval()
	openOrders := evalctx.Ref(model.SimulatedOpenOrdersInput{Market: market})

	return evalctx.Derive("trend-operations", []model.Eval{source, state, openOrders}, func(values []any) (any, error) {
		seg, _ := values[0].(*model.CandleHistorySegment)
		candle, ok := seg.Last()
		if !ok {
			return []model.Operation(nil), nil
		}
		st, _ := values[1].(MarketState)
		open, _ := values[2].([]model.Order)

		var ops []model.Operation
		for _, o := range open {
			if st != StateStrongUpTrend && o.IsBuy() {
				ops = append(ops, model.CancelOrderOperation{Market: market, OrderID: o.ID})
			}
			if st != StateStrongDownTrend && !o.IsBuy() {
				ops = append(ops, model.CancelOrderOperation{Market: market, OrderID: o.ID})
			}
		}

		switch st {
		case StateStrongUpTrend:
			if !hasOpenBuy(open) {
				ops = append(ops, model.PlaceOrderOperation{Market: market, Price: candle.Close, Quantity: t.cfg.OrderQuantity})
			}
		case StateStrongDownTrend:
			if !hasOpenSell(open) {
				ops = append(ops, model.PlaceOrderOperation{Market: market, Price: candle.Close, Quantity: -t.cfg.OrderQuantity})
			}
		}

		return ops, nil
	})
}

func hasOpenBuy(open []model.Order) bool {
	for _, o := range open {
		if o.IsBuy() {
			return true
		}
	}
	return false
}

func hasOpenSell(open []model.Order) bool {
	for _, o := range open {
		if !o.IsBuy() {
			return true
		}
	}
	return false
}
