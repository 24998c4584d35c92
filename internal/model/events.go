package model

import (
	"fmt"
	"time"
)

// OrderTrackingEvent is the tagged union of everything that can happen
// to one simulated/observed order: a creation, a cancel, a new own
// trade, or a change in the observed snapshot. Modeled as a sealed
// interface with small concrete structs rather than a class hierarchy,
// per the sum-typed-events design note (§9).
type OrderTrackingEvent interface {
	EventTime() time.Time
	trackingEvent()
}

// Creation records that an order was placed.
type Creation struct {
	Time  time.Time
	Order Order
}

func (c Creation) EventTime() time.Time { return c.Time }
func (Creation) trackingEvent()         {}

// Cancel records that an order was canceled. AbsoluteRestQuantity, if
// present, asserts the absolute remaining quantity at cancel time.
type Cancel struct {
	Time                 time.Time
	OrderID              string
	AbsoluteRestQuantity *float64
}

func (c Cancel) EventTime() time.Time { return c.Time }
func (Cancel) trackingEvent()         {}

// NewTrade records an own trade against the order.
type NewTrade struct {
	Trade Trade
}

func (n NewTrade) EventTime() time.Time { return n.Trade.Time }
func (NewTrade) trackingEvent()         {}

// ObservationChange records a snapshot of the order as seen from an
// exchange feed. A nil Order means the order was observed absent;
// OrderID identifies which order the observation is about either way
// (it is redundant with Order.ID when Order is present).
type ObservationChange struct {
	Time    time.Time
	OrderID string
	Order   *Order
}

func (o ObservationChange) EventTime() time.Time { return o.Time }
func (ObservationChange) trackingEvent()         {}

// Present reports whether this observation shows the order as open.
func (o ObservationChange) Present() bool { return o.Order != nil }

// SingleOrderObservationHistory is a non-empty sequence of
// ObservationChange, strictly increasing in time.
type SingleOrderObservationHistory struct {
	changes []ObservationChange
}

// NewSingleOrderObservationHistory starts a history with its first
// observation.
func NewSingleOrderObservationHistory(first ObservationChange) *SingleOrderObservationHistory {
	return &SingleOrderObservationHistory{changes: []ObservationChange{first}}
}

// Append adds the next observation, which must strictly increase in time.
func (h *SingleOrderObservationHistory) Append(oc ObservationChange) error {
	if len(h.changes) > 0 {
		last := h.changes[len(h.changes)-1].Time
		if !oc.Time.After(last) {
			return fmt.Errorf("observation at %s does not strictly increase on prior observation at %s", oc.Time, last)
		}
	}
	h.changes = append(h.changes, oc)
	return nil
}

// Changes returns a defensive copy of the full observation sequence.
func (h *SingleOrderObservationHistory) Changes() []ObservationChange {
	out := make([]ObservationChange, len(h.changes))
	copy(out, h.changes)
	return out
}

// Latest returns the terminal observation.
func (h *SingleOrderObservationHistory) Latest() ObservationChange {
	return h.changes[len(h.changes)-1]
}

// BasicOrderTrackingState is the raw event accumulation for one order
// id: the operation events (Creation/Cancel), the observation history,
// and the own-trade events. internal/tracking derives error/sync state
// from this.
type BasicOrderTrackingState struct {
	OrderID            string
	OperationEvents    []OrderTrackingEvent // Creation and Cancel only
	ObservationHistory *SingleOrderObservationHistory
	TradeEvents        []Trade
}

// Creations returns the Creation events, in the order they were recorded.
func (s *BasicOrderTrackingState) Creations() []Creation {
	var out []Creation
	for _, e := range s.OperationEvents {
		if c, ok := e.(Creation); ok {
			out = append(out, c)
		}
	}
	return out
}

// Cancels returns the Cancel events, in the order they were recorded.
func (s *BasicOrderTrackingState) Cancels() []Cancel {
	var out []Cancel
	for _, e := range s.OperationEvents {
		if c, ok := e.(Cancel); ok {
			out = append(out, c)
		}
	}
	return out
}

// TotalTradeQuantity is the signed sum of all recorded trade quantities.
func (s *BasicOrderTrackingState) TotalTradeQuantity() float64 {
	var total float64
	for _, t := range s.TradeEvents {
		total += t.Quantity
	}
	return total
}

// LastTrade returns the most recently recorded trade and true, or the
// zero value and false if none were recorded.
func (s *BasicOrderTrackingState) LastTrade() (Trade, bool) {
	if len(s.TradeEvents) == 0 {
		return Trade{}, false
	}
	return s.TradeEvents[len(s.TradeEvents)-1], true
}
