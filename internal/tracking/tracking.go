// Package tracking implements the order tracking state machine (§4.E):
// per order id, it reconciles operation events, observations, and own
// trades into an error state and a set of sync reasons. Structurally
// it is a fixed sequence of condition checks over accumulated state,
// generalized from a single market-regime enum into a per-order
// consistency analysis with typed outputs.
package tracking

import (
	"math"

	"backtestsim/internal/model"
)

// Analysis is everything derived from one order's BasicOrderTrackingState
// (§4.E).
type Analysis struct {
	OrderWithFullQuantity model.Order
	HasFullQuantity       bool
	TotalTradeQuantity    float64
	ReportingState        *model.Order
	ErrorState            error
	SyncReasons           []SyncReason
}

// Analyze derives the full order-tracking analysis for one order id.
func Analyze(state *model.BasicOrderTrackingState) Analysis {
	all := observationChanges(state)
	presents := presentObservations(all)

	fullQty, hasFullQty := orderWithFullQuantity(state, presents)
	totalTrade := state.TotalTradeQuantity()

	var cancel *model.Cancel
	if cancels := state.Cancels(); len(cancels) > 0 {
		cancel = &cancels[0]
	}

	errState := checkConsistency(state, all, presents, fullQty, cancel)

	analysis := Analysis{
		OrderWithFullQuantity: fullQty,
		HasFullQuantity:       hasFullQty,
		TotalTradeQuantity:    totalTrade,
		ReportingState:        computeReportingState(all, cancel, totalTrade),
		ErrorState:            errState,
	}
	analysis.SyncReasons = computeSyncReasons(state, all, cancel, totalTrade, fullQty, hasFullQty)
	return analysis
}

func checkConsistency(state *model.BasicOrderTrackingState, all, presents []model.ObservationChange, fullQty model.Order, cancel *model.Cancel) error {
	checks := []func() error{
		func() error { return checkConsistentFullQuantity(presents) },
		func() error { return checkCreationMatchesObservations(state, presents) },
		func() error { return checkCancelsConsistent(state, presents) },
		func() error { return checkOrderDoesNotReappear(all) },
		func() error { return checkNotOverfilled(state, fullQty, cancel) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func observationChanges(state *model.BasicOrderTrackingState) []model.ObservationChange {
	if state.ObservationHistory == nil {
		return nil
	}
	return state.ObservationHistory.Changes()
}

func presentObservations(all []model.ObservationChange) []model.ObservationChange {
	var out []model.ObservationChange
	for _, oc := range all {
		if oc.Present() {
			out = append(out, oc)
		}
	}
	return out
}

func orderWithFullQuantity(state *model.BasicOrderTrackingState, presents []model.ObservationChange) (model.Order, bool) {
	if len(presents) > 0 {
		return *presents[0].Order, true
	}
	if creations := state.Creations(); len(creations) > 0 {
		return creations[0].Order, true
	}
	return model.Order{}, false
}

// rule 1.
func checkConsistentFullQuantity(presents []model.ObservationChange) error {
	for i := 1; i < len(presents); i++ {
		prev, cur := presents[i-1], presents[i]
		if prev.Order.FullQuantity != cur.Order.FullQuantity || math.Abs(prev.Order.OpenQuantity()) < math.Abs(cur.Order.OpenQuantity()) {
			return InconsistentEvents{
				Reason: "full quantity changed, or open quantity increased, across observations",
				First:  prev,
				Second: cur,
			}
		}
	}
	return nil
}

// rule 2.
func checkCreationMatchesObservations(state *model.BasicOrderTrackingState, presents []model.ObservationChange) error {
	creations := state.Creations()
	if len(creations) > 1 {
		return InconsistentEvents{Reason: "more than one Creation recorded", First: creations[0], Second: creations[1]}
	}
	if len(creations) == 1 && len(presents) > 0 {
		creation, first := creations[0], presents[0]
		if creation.Order.FullQuantity != first.Order.FullQuantity {
			return InconsistentEvents{Reason: "creation full quantity disagrees with an observation", First: creation, Second: first}
		}
	}
	return nil
}

// rule 3.
func checkCancelsConsistent(state *model.BasicOrderTrackingState, presents []model.ObservationChange) error {
	cancels := state.Cancels()
	if len(cancels) > 1 {
		return InconsistentEvents{Reason: "more than one Cancel recorded", First: cancels[0], Second: cancels[1]}
	}
	if len(cancels) == 0 || cancels[0].AbsoluteRestQuantity == nil {
		return nil
	}
	cancel := cancels[0]
	rest := math.Abs(*cancel.AbsoluteRestQuantity)

	for _, c := range state.Creations() {
		if c.Time.Before(cancel.Time) && math.Abs(c.Order.FullQuantity) < rest {
			return InconsistentEvents{Reason: "cancel absolute rest exceeds a prior creation's full quantity", First: c, Second: cancel}
		}
	}
	for _, oc := range presents {
		if oc.Time.Before(cancel.Time) && math.Abs(oc.Order.FullQuantity) < rest {
			return InconsistentEvents{Reason: "cancel absolute rest exceeds a prior observation's full quantity", First: oc, Second: cancel}
		}
	}
	return nil
}

// rule 4.
func checkOrderDoesNotReappear(all []model.ObservationChange) error {
	wasPresent := false
	seenAbsentAfterPresent := false
	for _, oc := range all {
		if wasPresent && !oc.Present() {
			seenAbsentAfterPresent = true
		}
		if seenAbsentAfterPresent && oc.Present() {
			return ReappearingOrderInconsistency{Observation: oc}
		}
		if oc.Present() {
			wasPresent = true
		}
	}
	return nil
}

// rule 5.
func checkNotOverfilled(state *model.BasicOrderTrackingState, fullQty model.Order, cancel *model.Cancel) error {
	maxFill := math.Abs(fullQty.FullQuantity)
	if cancel != nil && cancel.AbsoluteRestQuantity != nil {
		maxFill -= math.Abs(*cancel.AbsoluteRestQuantity)
	}
	total := math.Abs(state.TotalTradeQuantity())
	if total > maxFill {
		lastTrade, _ := state.LastTrade()
		return Overfill{LastTrade: lastTrade, TotalFill: total, MaxFill: maxFill}
	}
	return nil
}

func computeReportingState(all []model.ObservationChange, cancel *model.Cancel, totalTrade float64) *model.Order {
	if len(all) == 0 || cancel != nil {
		return nil
	}
	last := all[len(all)-1]
	if !last.Present() {
		return nil
	}
	if math.Abs(totalTrade) > math.Abs(last.Order.FullQuantity) {
		return nil
	}
	reduced := last.Order.ResetQuantity().ReduceQuantity(totalTrade)
	return &reduced
}

func computeSyncReasons(state *model.BasicOrderTrackingState, all []model.ObservationChange, cancel *model.Cancel, totalTrade float64, fullQty model.Order, hasFullQty bool) []SyncReason {
	var reasons []SyncReason

	neverObserved := len(all) == 0
	lastTrade, hasTrade := state.LastTrade()

	if neverObserved && hasTrade && cancel == nil {
		reasons = append(reasons, UnknownWhyOrderIsGone{Time: lastTrade.Time})
	}

	fromCancel, fromObservation := impliedCandidates(all, cancel, fullQty, hasFullQty)
	if winner, ok := selectImplied(fromCancel, fromObservation); ok && winner.magnitude > math.Abs(totalTrade) {
		delta := winner.magnitude - math.Abs(totalTrade)
		if hasFullQty && fullQty.FullQuantity < 0 {
			delta = -delta
		}
		reasons = append(reasons, ExpectingTrades{Time: winner.time, Delta: delta})
	}

	currentlyObserved := !neverObserved && all[len(all)-1].Present()
	if currentlyObserved {
		last := all[len(all)-1]
		if math.Abs(totalTrade) > math.Abs(last.Order.FilledQuantity) {
			expected := last.Order.ResetQuantity().ReduceQuantity(totalTrade)
			reasons = append(reasons, ExpectingObservationChange{Time: lastTrade.Time, Expected: &expected})
		} else if cancel != nil {
			reasons = append(reasons, ExpectingObservationChange{Time: cancel.Time, Expected: nil})
		}
	}

	fullyTraded := hasFullQty && math.Abs(totalTrade) >= math.Abs(fullQty.FullQuantity)
	if !currentlyObserved && !neverObserved && !fullyTraded && cancel == nil {
		reasons = append(reasons, UnknownWhyOrderIsGone{Time: all[len(all)-1].Time})
	}

	if cancel != nil && cancel.AbsoluteRestQuantity == nil {
		reasons = append(reasons, UnknownIfMoreTradesBeforeCancel{Time: cancel.Time})
	}

	return reasons
}

func impliedCandidates(all []model.ObservationChange, cancel *model.Cancel, fullQty model.Order, hasFullQty bool) (impliedCandidate, impliedCandidate) {
	var fromCancel, fromObservation impliedCandidate

	if cancel != nil && cancel.AbsoluteRestQuantity != nil && hasFullQty {
		fromCancel = impliedCandidate{
			magnitude: math.Abs(fullQty.FullQuantity) - math.Abs(*cancel.AbsoluteRestQuantity),
			time:      cancel.Time,
			valid:     true,
		}
	}
	if len(all) > 0 {
		last := all[len(all)-1]
		if last.Present() {
			fromObservation = impliedCandidate{
				magnitude: math.Abs(last.Order.FilledQuantity),
				time:      last.Time,
				valid:     true,
			}
		}
	}
	return fromCancel, fromObservation
}
