package tracking

import (
	"fmt"

	"backtestsim/internal/model"
)

// InconsistentEvents is the first three consistency-rule violations
// (§4.E rules 1-3): a pair of recorded events whose full quantities or
// ordering cannot simultaneously be true of one real order.
type InconsistentEvents struct {
	Reason string
	First  any
	Second any
}

func (e InconsistentEvents) Error() string {
	return fmt.Sprintf("tracking: inconsistent events: %s", e.Reason)
}

// ReappearingOrderInconsistency is rule 4: an order observed present
// again after a present-then-absent transition.
type ReappearingOrderInconsistency struct {
	Observation model.ObservationChange
}

func (e ReappearingOrderInconsistency) Error() string {
	return fmt.Sprintf("tracking: order reappeared at %s after being observed absent", e.Observation.Time)
}

// Overfill is rule 5: recorded trades exceed the order's known capacity.
type Overfill struct {
	LastTrade model.Trade
	TotalFill float64
	MaxFill   float64
}

func (e Overfill) Error() string {
	return fmt.Sprintf("tracking: overfill, total %.8f exceeds max %.8f (last trade %s)", e.TotalFill, e.MaxFill, e.LastTrade.ID)
}
