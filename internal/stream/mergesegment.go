package stream

import (
	"fmt"
	"time"

	"backtestsim/internal/model"
)

// MergeSegment reconciles a previously stored candle history with a
// freshly re-fetched, overlapping live segment (§8 S6, §12). The caller
// must fetch live starting no later than stored's last close time and no
// earlier than overlap before it; a live start outside that range is an
// error. The merged result keeps stored up to live's start, then
// live up to inspectionTime — the freshest data for any instant, with
// anything at or after inspectionTime dropped as not yet confirmed.
func MergeSegment(stored, live *model.CandleHistorySegment, inspectionTime time.Time, overlap time.Duration) (*model.CandleHistorySegment, error) {
	if live == nil {
		return stored, nil
	}
	if stored == nil {
		return truncateAt(live, inspectionTime), nil
	}
	if stored.Market.Key() != live.Market.Key() {
		return nil, fmt.Errorf("stream: cannot merge candle history for different markets %s and %s", stored.Market.Key(), live.Market.Key())
	}

	if last, ok := stored.Last(); ok {
		if gap := last.CloseTime().Sub(live.Start); gap < 0 || gap > overlap {
			return nil, fmt.Errorf("stream: live segment starting %s does not overlap stored history closing %s within %s", live.Start, last.CloseTime(), overlap)
		}
	}

	var kept []model.Candle
	for _, c := range stored.Candles() {
		if !c.CloseTime().Before(live.Start) {
			break
		}
		kept = append(kept, c)
	}
	for _, c := range live.Candles() {
		if !c.CloseTime().Before(inspectionTime) {
			break
		}
		kept = append(kept, c)
	}

	return model.NewCandleHistorySegmentFromCandles(stored.Market, live.Length, stored.Start, kept), nil
}

func truncateAt(seg *model.CandleHistorySegment, inspectionTime time.Time) *model.CandleHistorySegment {
	var kept []model.Candle
	for _, c := range seg.Candles() {
		if !c.CloseTime().Before(inspectionTime) {
			break
		}
		kept = append(kept, c)
	}
	return model.NewCandleHistorySegmentFromCandles(seg.Market, seg.Length, seg.Start, kept)
}
