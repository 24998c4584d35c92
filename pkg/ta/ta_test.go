package ta_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestsim/internal/evalctx"
	"backtestsim/internal/model"
	"backtestsim/pkg/ta"
)

func segmentInput(mkt model.Market, start time.Time) model.CandleHistoryInput {
	return model.CandleHistoryInput{Market: mkt, CandleLength: time.Minute, Start: start}
}

func buildSegment(mkt model.Market, start time.Time, closes []float64) *model.CandleHistorySegment {
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

func TestRSIEval_InsufficientHistoryReturnsZero(t *testing.T) {
	mkt := model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}
	start := time.Unix(0, 0).UTC()

	ctx := evalctx.New().UpdateInput(segmentInput(mkt, start), buildSegment(mkt, start, []float64{1, 2, 3}))
	source := evalctx.Ref(segmentInput(mkt, start))
	rsi := ta.RSIEval(source, 14)

	value, _, err := ctx.Evaluate(rsi)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}

func TestSMAEval_ComputesOverFullHistory(t *testing.T) {
	mkt := model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}
	start := time.Unix(0, 0).UTC()

	closes := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		closes = append(closes, float64(i+1))
	}
	ctx := evalctx.New().UpdateInput(segmentInput(mkt, start), buildSegment(mkt, start, closes))
	source := evalctx.Ref(segmentInput(mkt, start))
	sma := ta.SMAEval(source, 5)

	value, _, err := ctx.Evaluate(sma)
	require.NoError(t, err)
	// Last 5 closes are 26..30, average 28.
	assert.InDelta(t, 28.0, value, 1e-9)
}

func TestRSIEval_InvalidatesOnAppend(t *testing.T) {
	mkt := model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}
	start := time.Unix(0, 0).UTC()

	closes := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		closes = append(closes, float64(50+i))
	}
	in := segmentInput(mkt, start)
	ctx := evalctx.New().UpdateInput(in, buildSegment(mkt, start, closes))
	source := evalctx.Ref(in)
	rsi := ta.RSIEval(source, 14)

	first, ctx, err := ctx.Evaluate(rsi)
	require.NoError(t, err)

	extended := append(append([]float64{}, closes...), 10) // a sharp drop
	ctx = ctx.UpdateInput(in, buildSegment(mkt, start, extended))

	second, _, err := ctx.Evaluate(rsi)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "RSI must recompute after the underlying segment changes")
}
