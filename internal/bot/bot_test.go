package bot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestsim/internal/bot"
	"backtestsim/internal/evalctx"
	"backtestsim/internal/model"
)

func candles(mkt model.Market, start time.Time, closes []float64) *model.CandleHistorySegment {
	seg := model.NewCandleHistorySegment(mkt, time.Minute, start)
	for i, c := range closes {
		candle := model.Candle{
			StartTime: start.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			QuoteVolume: 100, Length: time.Minute,
		}
		_ = seg.Append(candle)
	}
	return seg
}

func newTrend(mkt model.Market, start time.Time) *bot.Trend {
	return bot.NewTrend(bot.Config{
		Market:            mkt,
		CandleLength:      time.Minute,
		HistoryStart:      start,
		RSIPeriod:         14,
		SMAPeriod:         5,
		ATRPeriod:         14,
		TrendRSIThreshold: 60,
		VolATRThreshold:   0.0005,
		OrderQuantity:     1,
		AggregationRatio:  1,
	})
}

func TestStateEval_StrongUpTrendOnRisingCloses(t *testing.T) {
	mkt := model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}
	start := time.Unix(0, 0).UTC()

	closes := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		closes = append(closes, float64(100+i*2))
	}
	in := model.CandleHistoryInput{Market: mkt, CandleLength: time.Minute, Start: start}
	ctx := evalctx.New().UpdateInput(in, candles(mkt, start, closes))

	tb := newTrend(mkt, start)
	value, _, err := ctx.Evaluate(tb.StateEval())
	require.NoError(t, err)
	assert.Equal(t, bot.StateStrongUpTrend, value)
}

func TestOperationsEval_PlacesThenCancelsOnTrendBreak(t *testing.T) {
	mkt := model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}
	start := time.Unix(0, 0).UTC()

	rising := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		rising = append(rising, float64(100+i*2))
	}
	in := model.CandleHistoryInput{Market: mkt, CandleLength: time.Minute, Start: start}
	ctx := evalctx.New().UpdateInput(in, candles(mkt, start, rising))
	ctx = ctx.UpdateInput(model.SimulatedOpenOrdersInput{Market: mkt}, []model.Order(nil))

	tb := newTrend(mkt, start)
	ops := tb.OperationsEval(mkt)

	value, ctx, err := ctx.Evaluate(ops)
	require.NoError(t, err)
	placed, ok := value.([]model.Operation)
	require.True(t, ok)
	require.Len(t, placed, 1)
	place, ok := placed[0].(model.PlaceOrderOperation)
	require.True(t, ok)
	assert.Equal(t, float64(1), place.Quantity)

	// A resting buy is now open; a sharp reversal flips the trend to a
	// confirmed down-trend, which must cancel the stale buy and place a
	// new resting sell.
	broken := append(append([]float64{}, rising...), 50, 40, 30, 20)
	ctx = ctx.UpdateInput(in, candles(mkt, start, broken))
	ctx = ctx.UpdateInput(model.SimulatedOpenOrdersInput{Market: mkt}, []model.Order{{ID: "o1", Market: mkt, FullQuantity: 1, Price: 100}})

	value, _, err = ctx.Evaluate(ops)
	require.NoError(t, err)
	after, ok := value.([]model.Operation)
	require.True(t, ok)
	require.NotEmpty(t, after)

	var sawCancel, sawNewSell bool
	for _, op := range after {
		switch o := op.(type) {
		case model.CancelOrderOperation:
			assert.Equal(t, "o1", o.OrderID)
			sawCancel = true
		case model.PlaceOrderOperation:
			assert.Negative(t, o.Quantity)
			sawNewSell = true
		}
	}
	assert.True(t, sawCancel, "stale buy must be canceled once the up-trend breaks")
	assert.True(t, sawNewSell, "a confirmed down-trend must place a new resting sell")
}
