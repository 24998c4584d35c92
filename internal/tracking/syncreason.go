package tracking

import (
	"time"

	"backtestsim/internal/model"
)

// SyncReason is a non-error explanation for why an order's state is not
// yet settled (§4.E, GLOSSARY). Sealed interface over four variants.
type SyncReason interface {
	ReasonTime() time.Time
	syncReason()
}

// UnknownWhyOrderIsGone fires when an order has disappeared from the
// observation feed with no cancel to explain it.
type UnknownWhyOrderIsGone struct {
	Time time.Time
}

func (r UnknownWhyOrderIsGone) ReasonTime() time.Time { return r.Time }
func (UnknownWhyOrderIsGone) syncReason()             {}

// ExpectingTrades fires when the implied filled quantity (from a
// cancel's absolute rest or from the last observation) exceeds what own
// trades have materialized so far.
type ExpectingTrades struct {
	Time  time.Time
	Delta float64
}

func (r ExpectingTrades) ReasonTime() time.Time { return r.Time }
func (ExpectingTrades) syncReason()             {}

// ExpectingObservationChange fires when own trades or a cancel should
// have produced an observation update that hasn't arrived yet. Expected
// is nil when the expected change is disappearance (the order canceled).
type ExpectingObservationChange struct {
	Time     time.Time
	Expected *model.Order
}

func (r ExpectingObservationChange) ReasonTime() time.Time { return r.Time }
func (ExpectingObservationChange) syncReason()             {}

// UnknownIfMoreTradesBeforeCancel fires when an order was canceled
// without an absolute rest quantity, so late trades before the cancel
// cannot be ruled out.
type UnknownIfMoreTradesBeforeCancel struct {
	Time time.Time
}

func (r UnknownIfMoreTradesBeforeCancel) ReasonTime() time.Time { return r.Time }
func (UnknownIfMoreTradesBeforeCancel) syncReason()             {}

// impliedCandidate is one source of implied-but-unmaterialized fill
// magnitude: either derived from a cancel's absolute rest, or from the
// last observation's filled quantity.
type impliedCandidate struct {
	magnitude float64
	time      time.Time
	valid     bool
}

// selectImplied picks between two implied candidates per the tie-break
// rule in §4.E/§9 Open Questions: equal magnitude favors the earlier
// time (reproducing the "earlier time wins for cancel" rule verbatim
// per the Open Question decision); otherwise the greater magnitude
// wins.
func selectImplied(a, b impliedCandidate) (impliedCandidate, bool) {
	switch {
	case a.valid && !b.valid:
		return a, true
	case !a.valid && b.valid:
		return b, true
	case !a.valid && !b.valid:
		return impliedCandidate{}, false
	case a.magnitude == b.magnitude:
		if !a.time.After(b.time) {
			return a, true
		}
		return b, true
	case a.magnitude > b.magnitude:
		return a, true
	default:
		return b, true
	}
}
