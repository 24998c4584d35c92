package evalctx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestsim/internal/evalctx"
	"backtestsim/internal/model"
)

func btcusdt() model.Market {
	return model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}
}

func candleInput() model.CandleHistoryInput {
	return model.CandleHistoryInput{
		Market:       btcusdt(),
		CandleLength: time.Minute,
		Start:        time.Unix(0, 0).UTC(),
	}
}

func sumCloses(seq model.Sequence, from, to int) float64 {
	seg := seq.(*model.CandleHistorySegment)
	var total float64
	for i := from; i < to; i++ {
		total += seg.At(i).Close
	}
	return total
}

func appendCandle(t *testing.T, seg *model.CandleHistorySegment, start time.Time, close float64) *model.CandleHistorySegment {
	t.Helper()
	require.NoError(t, seg.Append(model.Candle{
		StartTime: start,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Length:    time.Minute,
	}))
	return seg
}

// Two contexts built from identical input bindings, in any order, must
// evaluate every eval to the same value (§8 property 1 — determinism).
func TestEvaluate_Deterministic(t *testing.T) {
	in := candleInput()
	seg := model.NewCandleHistorySegment(in.Market, time.Minute, in.Start)
	appendCandle(t, seg, in.Start, 100)
	appendCandle(t, seg, in.Start.Add(time.Minute), 110)

	ref := evalctx.Ref(in)
	sumEval := evalctx.Fold("sumCloses", ref, func() any { return float64(0) }, func(acc any, seq model.Sequence, from, to int) any {
		return acc.(float64) + sumCloses(seq, from, to)
	})

	c1 := evalctx.New().UpdateInput(in, seg)
	v1, _, err := c1.Evaluate(sumEval)
	require.NoError(t, err)

	c2 := evalctx.New().UpdateInput(in, seg)
	v2, _, err := c2.Evaluate(sumEval)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, float64(210), v1)
}

// UpdateInput must invalidate exactly the evals whose transitive
// dependency set contains the changed input, leaving unrelated evals'
// cached values reachable without recomputation (§8 property 2).
func TestUpdateInput_PrecisInvalidation(t *testing.T) {
	inA := candleInput()
	inB := model.CandleHistoryInput{Market: model.Market{ExchangeID: "test", Base: "ETH", Quote: "USDT"}, CandleLength: time.Minute, Start: inA.Start}

	segA := model.NewCandleHistorySegment(inA.Market, time.Minute, inA.Start)
	appendCandle(t, segA, inA.Start, 100)
	segB := model.NewCandleHistorySegment(inB.Market, time.Minute, inB.Start)
	appendCandle(t, segB, inB.Start, 5)

	callsA, callsB := 0, 0
	derivedA := evalctx.Derive("derivedA", []model.Eval{evalctx.Ref(inA)}, func(values []any) (any, error) {
		callsA++
		return values[0].(*model.CandleHistorySegment).Len(), nil
	})
	derivedB := evalctx.Derive("derivedB", []model.Eval{evalctx.Ref(inB)}, func(values []any) (any, error) {
		callsB++
		return values[0].(*model.CandleHistorySegment).Len(), nil
	})

	c := evalctx.New().UpdateInput(inA, segA).UpdateInput(inB, segB)
	_, c, err := c.Evaluate(derivedA)
	require.NoError(t, err)
	_, c, err = c.Evaluate(derivedB)
	require.NoError(t, err)
	assert.Equal(t, 1, callsA)
	assert.Equal(t, 1, callsB)

	segA2 := model.NewCandleHistorySegment(inA.Market, time.Minute, inA.Start)
	appendCandle(t, segA2, inA.Start, 100)
	appendCandle(t, segA2, inA.Start.Add(time.Minute), 200)
	c = c.UpdateInput(inA, segA2)

	_, c, err = c.Evaluate(derivedB)
	require.NoError(t, err)
	assert.Equal(t, 1, callsB, "derivedB must not recompute after inA changes")

	_, c, err = c.Evaluate(derivedA)
	require.NoError(t, err)
	assert.Equal(t, 2, callsA, "derivedA must recompute after its own input changes")
	_ = c
}

// A fold eval resumes from its cached tail on an extended sequence
// instead of recomputing from the start (§4.A Algorithm).
func TestFoldEval_ResumesFromCachedTail(t *testing.T) {
	in := candleInput()
	seg := model.NewCandleHistorySegment(in.Market, time.Minute, in.Start)
	appendCandle(t, seg, in.Start, 10)

	stepCalls := 0
	fold := evalctx.Fold("sum", evalctx.Ref(in), func() any { return float64(0) }, func(acc any, seq model.Sequence, from, to int) any {
		stepCalls++
		return acc.(float64) + sumCloses(seq, from, to)
	})

	c := evalctx.New().UpdateInput(in, seg)
	v, c, err := c.Evaluate(fold)
	require.NoError(t, err)
	assert.Equal(t, float64(10), v)
	assert.Equal(t, 1, stepCalls)

	appendCandle(t, seg, in.Start.Add(time.Minute), 20)
	c = c.UpdateInput(in, seg)

	v, _, err = c.Evaluate(fold)
	require.NoError(t, err)
	assert.Equal(t, float64(30), v)
	assert.Equal(t, 2, stepCalls, "resuming must call Step once more, not replay from zero")
}

func TestEvaluate_UnboundInputFails(t *testing.T) {
	in := candleInput()
	_, _, err := evalctx.New().Evaluate(evalctx.Ref(in))
	require.Error(t, err)
	var notBound evalctx.InputNotBound
	assert.ErrorAs(t, err, &notBound)
}

func TestEvaluate_UserFnErrorWrapped(t *testing.T) {
	in := candleInput()
	seg := model.NewCandleHistorySegment(in.Market, time.Minute, in.Start)
	appendCandle(t, seg, in.Start, 1)

	boom := evalctx.Derive("boom", []model.Eval{evalctx.Ref(in)}, func(values []any) (any, error) {
		return nil, assert.AnError
	})

	c := evalctx.New().UpdateInput(in, seg)
	_, _, err := c.Evaluate(boom)
	require.Error(t, err)
	var failure evalctx.EvalFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, assert.AnError, failure.Unwrap())
}
