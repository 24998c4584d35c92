package simulation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestsim/internal/chartlog"
	"backtestsim/internal/evalctx"
	"backtestsim/internal/loader"
	"backtestsim/internal/marketplace"
	"backtestsim/internal/model"
	"backtestsim/internal/simulation"
	"backtestsim/internal/stream"
)

// placeOnceBot places a single buy limit order on the first tick and
// never issues further operations — just enough for the replay loop to
// have something concrete to dispatch.
type placeOnceBot struct {
	market model.Market
	fired  bool
}

func (b *placeOnceBot) Markets() []model.Market        { return []model.Market{b.market} }
func (b *placeOnceBot) BasicCandleLength() time.Duration { return time.Minute }
func (b *placeOnceBot) ChartDataSeriesConfigs() []chartlog.SeriesConfig {
	return []chartlog.SeriesConfig{{Market: b.market, AggregationRatio: 1}}
}

func (b *placeOnceBot) OperationsEval(market model.Market) model.Eval {
	candleInput := evalctx.Ref(model.CandleHistoryInput{Market: market, CandleLength: time.Minute, Start: time.Unix(0, 0).UTC()})
	return evalctx.Derive("place-once-ops", []model.Eval{candleInput}, func(values []any) (any, error) {
		if b.fired {
			return []model.Operation(nil), nil
		}
		b.fired = true
		return []model.Operation{model.PlaceOrderOperation{Market: market, Price: 100, Quantity: 1}}, nil
	})
}

func newEnv(t *testing.T, mkt model.Market, candles []model.Candle) (*simulation.Environment, *placeOnceBot) {
	t.Helper()

	candleLoader := loader.InMemoryCandleLoader{Segment: func() *model.CandleHistorySegment {
		seg := model.NewCandleHistorySegment(mkt, time.Minute, candles[0].StartTime)
		for _, c := range candles {
			require.NoError(t, seg.Append(c))
		}
		return seg
	}()}

	start := candles[0].StartTime
	end := candles[len(candles)-1].CloseTime()

	candleSource := stream.CandleSource{Loader: candleLoader, Market: mkt, CandleLength: time.Minute, Start: start}
	timeline, err := stream.Merge([]stream.Provider{candleSource}, start, end, time.Second)
	require.NoError(t, err)

	tradeInput := model.TradeHistoryInput{Market: mkt, Start: start}
	ctx := evalctx.New().UpdateInput(tradeInput, model.NewTradeHistorySegment(mkt, start))

	constraints := model.OrderConstraints{
		PricePrecision:    model.Precision{Mode: model.DigitsAfterSeparator, Digits: 8},
		QuantityPrecision: model.Precision{Mode: model.DigitsAfterSeparator, Digits: 8},
	}
	mp, err := marketplace.New(mkt, constraints, 0.001, 1, nil)
	require.NoError(t, err)

	bot := &placeOnceBot{market: mkt}
	env := simulation.New(
		ctx,
		map[model.Market]*marketplace.Marketplace{mkt: mp},
		map[model.Market]model.TradeHistoryInput{mkt: tradeInput},
		timeline,
		bot,
		nil,
	)
	return env, bot
}

func TestEnvironment_AdvanceFillsPlacedOrder(t *testing.T) {
	mkt := model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}
	start := time.Unix(0, 0).UTC()
	candles := []model.Candle{
		{StartTime: start, Open: 100, High: 101, Low: 95, Close: 100, QuoteVolume: 1000, Length: time.Minute},
		{StartTime: start.Add(time.Minute), Open: 100, High: 101, Low: 99, Close: 100, QuoteVolume: 1000, Length: time.Minute},
	}
	env, bot := newEnv(t, mkt, candles)
	_ = bot

	var lastErr error
	for {
		more, err := env.Advance()
		lastErr = err
		if !more {
			break
		}
		require.NoError(t, err)
	}
	require.NoError(t, lastErr)

	ops := env.CompletedOperations()
	require.Len(t, ops, 1)
	placed, ok := ops[0].Operation.(model.PlaceOrderOperation)
	require.True(t, ok)
	assert.Equal(t, float64(1), placed.Quantity)
	require.NoError(t, ops[0].Err)

	// The order placed on the first tick fills against the second candle.
	tradesValue, ok := env.Context().InputValue(model.TradeHistoryInput{Market: mkt, Start: start})
	require.True(t, ok)
	tradeSeg, ok := tradesValue.(*model.TradeHistorySegment)
	require.True(t, ok)
	require.Equal(t, 1, tradeSeg.Len())
	assert.Equal(t, float64(1), tradeSeg.At(0).Quantity)
	assert.True(t, tradeSeg.At(0).Time.Equal(candles[1].CloseTime()))

	snap, ok := env.Chart().Snapshot(mkt)
	require.True(t, ok)
	assert.False(t, snap.CloseTime.IsZero())
}
