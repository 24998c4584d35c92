package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestsim/internal/model"
	"backtestsim/internal/tracking"
)

func at(seconds int64) time.Time { return time.Unix(seconds, 0).UTC() }

func buyOrder(id string, full, filled float64) model.Order {
	return model.Order{ID: id, Market: model.Market{ExchangeID: "test", Base: "BTC", Quote: "USDT"}, FullQuantity: full, Price: 20000, FilledQuantity: filled}
}

// S1: order with no trades.
func TestAnalyze_NoTrades(t *testing.T) {
	order := buyOrder("o1", 1, 0)
	hist := model.NewSingleOrderObservationHistory(model.ObservationChange{Time: at(101), Order: &order})
	state := &model.BasicOrderTrackingState{
		OrderID:            "o1",
		OperationEvents:    []model.OrderTrackingEvent{model.Creation{Time: at(100), Order: order}},
		ObservationHistory: hist,
	}

	analysis := tracking.Analyze(state)
	require.NoError(t, analysis.ErrorState)
	require.NotNil(t, analysis.ReportingState)
	assert.Equal(t, float64(1), analysis.ReportingState.FullQuantity)
	assert.Equal(t, float64(0), analysis.ReportingState.FilledQuantity)
	assert.Empty(t, analysis.SyncReasons)
}

// S2: expecting a trade.
func TestAnalyze_ExpectingTrades(t *testing.T) {
	full := buyOrder("o1", 1, 0)
	partial := buyOrder("o1", 1, 0.4)
	hist := model.NewSingleOrderObservationHistory(model.ObservationChange{Time: at(101), Order: &partial})
	state := &model.BasicOrderTrackingState{
		OrderID:            "o1",
		OperationEvents:    []model.OrderTrackingEvent{model.Creation{Time: at(100), Order: full}},
		ObservationHistory: hist,
	}

	analysis := tracking.Analyze(state)
	require.NoError(t, analysis.ErrorState)

	var found *tracking.ExpectingTrades
	for _, r := range analysis.SyncReasons {
		if et, ok := r.(tracking.ExpectingTrades); ok {
			found = &et
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.Time.Equal(at(101)))
	assert.InDelta(t, 0.4, found.Delta, 1e-9)
}

// S3: overfill.
func TestAnalyze_Overfill(t *testing.T) {
	order := buyOrder("o1", 1, 0)
	trade := model.Trade{ID: "t1", Time: at(110), Market: order.Market, Price: 20000, Quantity: 1.5, OrderID: "o1"}
	state := &model.BasicOrderTrackingState{
		OrderID:         "o1",
		OperationEvents: []model.OrderTrackingEvent{model.Creation{Time: at(100), Order: order}},
		TradeEvents:     []model.Trade{trade},
	}

	analysis := tracking.Analyze(state)
	require.Error(t, analysis.ErrorState)
	var overfill tracking.Overfill
	require.ErrorAs(t, analysis.ErrorState, &overfill)
	assert.Equal(t, trade, overfill.LastTrade)
	assert.InDelta(t, 1.5, overfill.TotalFill, 1e-9)
	assert.InDelta(t, 1, overfill.MaxFill, 1e-9)
}

// S4: reappearing order.
func TestAnalyze_ReappearingOrder(t *testing.T) {
	present1 := buyOrder("o1", 1, 0)
	present2 := buyOrder("o1", 1, 0)
	hist := model.NewSingleOrderObservationHistory(model.ObservationChange{Time: at(100), Order: &present1})
	require.NoError(t, hist.Append(model.ObservationChange{Time: at(110), Order: nil}))
	require.NoError(t, hist.Append(model.ObservationChange{Time: at(120), Order: &present2}))

	state := &model.BasicOrderTrackingState{
		OrderID:            "o1",
		ObservationHistory: hist,
	}

	analysis := tracking.Analyze(state)
	require.Error(t, analysis.ErrorState)
	var reappear tracking.ReappearingOrderInconsistency
	require.ErrorAs(t, analysis.ErrorState, &reappear)
	assert.True(t, reappear.Observation.Time.Equal(at(120)))
}
