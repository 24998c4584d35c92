// Package ta provides incremental indicator Evals — RSI, SMA, and ATR —
// each a FoldEval over a CandleHistorySegment eval (§3, §4.A) rather
// than a Derived eval that re-walks the whole segment on every
// invalidation. SMA's fold keeps a bounded period-sized window and
// calls talib.Sma over just that window, since a simple moving average
// of the last period closes never depends on anything older than the
// window itself. RSI and ATR use Wilder smoothing, which is already an
// O(1)-per-sample recurrence over the running average — the same
// recurrence talib.Rsi and talib.Atr apply internally when recomputing
// over a full slice — so their folds carry that recurrence's state
// (avgGain/avgLoss, avgTR, prevClose) forward instead of calling talib
// on ever-growing input, which would either recompute from scratch each
// time or, bounded to a window, silently diverge from the true
// whole-history Wilder average.
package ta

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"backtestsim/internal/evalctx"
	"backtestsim/internal/model"
)

func foldValue(name string, v any, dst any) error {
	// dst is a pointer to the expected accumulator type; used only for
	// the error message's %T, the real work is the caller's type switch.
	return fmt.Errorf("ta: %s fold did not evaluate to the expected accumulator (got %T, want %T)", name, v, dst)
}

// smaWindow is the SMA fold's accumulator: the trailing period closes,
// oldest first, and the average once the window is full.
type smaWindow struct {
	period int
	closes []float64
	value  float64
	ready  bool
}

func (w smaWindow) observe(close float64) smaWindow {
	next := w
	next.closes = append(append([]float64(nil), w.closes...), close)
	if len(next.closes) > next.period {
		next.closes = next.closes[len(next.closes)-next.period:]
	}
	if len(next.closes) == next.period {
		result := talib.Sma(next.closes, next.period)
		next.value = result[len(result)-1]
		next.ready = true
	}
	return next
}

// SMAEval returns a FoldEval computing the simple moving average over
// period closes of source, which must evaluate to a
// *model.CandleHistorySegment. The fold carries forward only the
// trailing period closes rather than the whole segment.
func SMAEval(source model.Eval, period int) model.Eval {
	name := fmt.Sprintf("sma(%d)", period)
	fold := evalctx.Fold(name+"-window", source, func() any {
		return smaWindow{period: period}
	}, func(acc any, seq model.Sequence, from, to int) any {
		w := acc.(smaWindow)
		seg := seq.(*model.CandleHistorySegment)
		for _, c := range seg.Tail(from) {
			w = w.observe(c.Close)
		}
		return w
	})
	return evalctx.Derive(name, []model.Eval{fold}, func(values []any) (any, error) {
		w, ok := values[0].(smaWindow)
		if !ok {
			return nil, foldValue(name, values[0], smaWindow{})
		}
		if !w.ready {
			return 0.0, nil
		}
		return w.value, nil
	})
}

// rsiWilder is the RSI fold's accumulator: Wilder's running average gain
// and average loss, updated one close at a time.
type rsiWilder struct {
	period           int
	hasPrev          bool
	prevClose        float64
	ready            bool
	count            int
	sumGain, sumLoss float64
	avgGain, avgLoss float64
	value            float64
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func (w rsiWilder) observe(close float64) rsiWilder {
	next := w
	if !next.hasPrev {
		next.hasPrev = true
		next.prevClose = close
		return next
	}

	diff := close - next.prevClose
	var gain, loss float64
	if diff > 0 {
		gain = diff
	} else {
		loss = -diff
	}

	if !next.ready {
		next.count++
		next.sumGain += gain
		next.sumLoss += loss
		if next.count == next.period {
			next.avgGain = next.sumGain / float64(next.period)
			next.avgLoss = next.sumLoss / float64(next.period)
			next.ready = true
			next.value = rsiFromAverages(next.avgGain, next.avgLoss)
		}
	} else {
		next.avgGain = (next.avgGain*float64(next.period-1) + gain) / float64(next.period)
		next.avgLoss = (next.avgLoss*float64(next.period-1) + loss) / float64(next.period)
		next.value = rsiFromAverages(next.avgGain, next.avgLoss)
	}

	next.prevClose = close
	return next
}

// RSIEval returns a FoldEval computing the Wilder RSI over period closes
// of source, which must evaluate to a *model.CandleHistorySegment.
func RSIEval(source model.Eval, period int) model.Eval {
	name := fmt.Sprintf("rsi(%d)", period)
	fold := evalctx.Fold(name+"-wilder", source, func() any {
		return rsiWilder{period: period}
	}, func(acc any, seq model.Sequence, from, to int) any {
		w := acc.(rsiWilder)
		seg := seq.(*model.CandleHistorySegment)
		for _, c := range seg.Tail(from) {
			w = w.observe(c.Close)
		}
		return w
	})
	return evalctx.Derive(name, []model.Eval{fold}, func(values []any) (any, error) {
		w, ok := values[0].(rsiWilder)
		if !ok {
			return nil, foldValue(name, values[0], rsiWilder{})
		}
		if !w.ready {
			return 0.0, nil
		}
		return w.value, nil
	})
}

// atrWilder is the ATR fold's accumulator: Wilder's running average true
// range, updated one candle at a time.
type atrWilder struct {
	period    int
	hasPrev   bool
	prevClose float64
	ready     bool
	count     int
	sumTR     float64
	avgTR     float64
	value     float64
}

func (w atrWilder) observe(high, low, close float64) atrWilder {
	next := w
	var tr float64
	if !next.hasPrev {
		tr = high - low
	} else {
		tr = math.Max(high-low, math.Max(math.Abs(high-next.prevClose), math.Abs(low-next.prevClose)))
	}

	if !next.ready {
		next.count++
		next.sumTR += tr
		if next.count == next.period {
			next.avgTR = next.sumTR / float64(next.period)
			next.ready = true
			next.value = next.avgTR
		}
	} else {
		next.avgTR = (next.avgTR*float64(next.period-1) + tr) / float64(next.period)
		next.value = next.avgTR
	}

	next.hasPrev = true
	next.prevClose = close
	return next
}

// ATREval returns a FoldEval computing the average true range over
// period candles of source, which must evaluate to a
// *model.CandleHistorySegment.
func ATREval(source model.Eval, period int) model.Eval {
	name := fmt.Sprintf("atr(%d)", period)
	fold := evalctx.Fold(name+"-wilder", source, func() any {
		return atrWilder{period: period}
	}, func(acc any, seq model.Sequence, from, to int) any {
		w := acc.(atrWilder)
		seg := seq.(*model.CandleHistorySegment)
		for _, c := range seg.Tail(from) {
			w = w.observe(c.High, c.Low, c.Close)
		}
		return w
	})
	return evalctx.Derive(name, []model.Eval{fold}, func(values []any) (any, error) {
		w, ok := values[0].(atrWilder)
		if !ok {
			return nil, foldValue(name, values[0], atrWilder{})
		}
		if !w.ready {
			return 0.0, nil
		}
		return w.value, nil
	})
}
