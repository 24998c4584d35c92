// Package simulation implements the simulation environment (§4.C): it
// owns the evaluation context and the per-market marketplaces, drives
// the replay loop by consuming the timed update stream, and dispatches
// the bot's order operations each tick. The tick shape — update TA,
// check state, generate a signal, execute it — is generalized from a
// live, per-instance goroutine loop into Environment.Advance()'s
// single-threaded tick.
package simulation

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"backtestsim/internal/chartlog"
	"backtestsim/internal/evalctx"
	"backtestsim/internal/marketplace"
	"backtestsim/internal/model"
	"backtestsim/internal/stream"
)

// Environment owns the context and the per-market marketplaces (§3
// ownership rules); it is the sole mutator of the context during the
// replay loop.
type Environment struct {
	ctx          *evalctx.Context
	marketplaces map[string]*marketplace.Marketplace
	marketOrder  []model.Market
	tradeInputs  map[string]model.TradeHistoryInput
	timeline     *stream.Timeline
	bot          Bot
	chart        *chartlog.Logger
	logger       *zap.SugaredLogger

	observations map[string]map[string]*model.SingleOrderObservationHistory
	tracking     map[string]*model.BasicOrderTrackingState
	completed    []model.CompletedOperationRequest
}

// New constructs an Environment. ctx must already carry an initial
// binding for every market's TradeHistoryInput (an empty segment
// aligned to the simulation's trade-history start) — the environment
// only ever appends to it.
func New(ctx *evalctx.Context, marketplaces map[model.Market]*marketplace.Marketplace, tradeInputs map[model.Market]model.TradeHistoryInput, timeline *stream.Timeline, bot Bot, logger *zap.SugaredLogger) *Environment {
	order := make([]model.Market, 0, len(marketplaces))
	mps := make(map[string]*marketplace.Marketplace, len(marketplaces))
	trades := make(map[string]model.TradeHistoryInput, len(tradeInputs))
	for mkt, mp := range marketplaces {
		order = append(order, mkt)
		mps[mkt.Key()] = mp
		if in, ok := tradeInputs[mkt]; ok {
			trades[mkt.Key()] = in
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Key() < order[j].Key() })

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Environment{
		ctx:          ctx,
		marketplaces: mps,
		marketOrder:  order,
		tradeInputs:  trades,
		timeline:     timeline,
		bot:          bot,
		chart:        chartlog.New(bot.ChartDataSeriesConfigs()),
		logger:       logger,
		observations: map[string]map[string]*model.SingleOrderObservationHistory{},
		tracking:     map[string]*model.BasicOrderTrackingState{},
	}
}

// Context returns the environment's current context.
func (e *Environment) Context() *evalctx.Context { return e.ctx }

// Chart returns the environment's chart data logger.
func (e *Environment) Chart() *chartlog.Logger { return e.chart }

// CompletedOperations returns a defensive copy of every operation
// dispatched so far, in dispatch order.
func (e *Environment) CompletedOperations() []model.CompletedOperationRequest {
	out := make([]model.CompletedOperationRequest, len(e.completed))
	copy(out, e.completed)
	return out
}

// TrackingState returns the accumulated BasicOrderTrackingState for an
// order id, or false if no events have been recorded for it.
func (e *Environment) TrackingState(orderID string) (*model.BasicOrderTrackingState, bool) {
	st, ok := e.tracking[orderID]
	return st, ok
}

// Evaluate evaluates e through the owned context (§4.C).
func (e *Environment) Evaluate(ev model.Eval) (any, error) {
	v, next, err := e.ctx.Evaluate(ev)
	if err != nil {
		return nil, err
	}
	e.ctx = next
	return v, nil
}

// Advance consumes the next timed update event, applies it to the
// context, then runs marketplace matching and bot operation dispatch
// for every market in deterministic order (§4.C tick ordering). Returns
// false once the timeline is exhausted. Per-market errors from the same
// tick are aggregated with multierr so a caller sees every failure, not
// just the first.
func (e *Environment) Advance() (bool, error) {
	event, ok := e.timeline.Next()
	if !ok {
		return false, nil
	}

	e.ctx = e.ctx.UpdateInput(event.Input, event.Value)

	var errs error
	for _, mkt := range e.marketOrder {
		if err := e.processMarketUpdate(mkt, event); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("market %s: %w", mkt, err))
		}
	}
	for _, mkt := range e.marketOrder {
		if err := e.dispatchOperations(mkt, event.Time); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("market %s: %w", mkt, err))
		}
	}

	return true, errs
}

// Run drives Advance until the timeline is exhausted or onTick returns
// true. When onTick stops the loop, Run returns that tick's aggregated
// error. When the timeline runs dry, Run returns nil: the Advance call
// that finds it exhausted reports no error, so earlier ticks' errors
// reach the caller only through onTick.
func (e *Environment) Run(onTick func(tickErr error) (stop bool)) error {
	for {
		more, err := e.Advance()
		if onTick != nil && onTick(err) {
			return err
		}
		if !more {
			return err
		}
	}
}

func (e *Environment) processMarketUpdate(mkt model.Market, event stream.Event) error {
	ch, ok := event.Input.(model.CandleHistoryInput)
	if !ok || ch.Market != mkt {
		return nil
	}
	segment, ok := event.Value.(*model.CandleHistorySegment)
	if !ok {
		return nil
	}
	candle, ok := segment.Last()
	if !ok {
		return nil
	}

	mp := e.marketplaces[mkt.Key()]
	if mp == nil {
		return nil
	}

	trades, trackingEvents, err := mp.ProcessCandle(candle)
	if err != nil {
		return err
	}
	if err := e.applyMarketplaceOutput(mkt, trades, trackingEvents); err != nil {
		return err
	}

	if ch.CandleLength == e.bot.BasicCandleLength() {
		if err := e.chart.OnBaseCandle(mkt, candle.StartTime, candle.CloseTime(), e.Evaluate); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) dispatchOperations(mkt model.Market, at time.Time) error {
	mp := e.marketplaces[mkt.Key()]
	if mp == nil {
		return nil
	}
	eval := e.bot.OperationsEval(mkt)
	if eval == nil {
		return nil
	}

	value, err := e.Evaluate(eval)
	if err != nil {
		return err
	}
	ops, ok := value.([]model.Operation)
	if !ok {
		return fmt.Errorf("simulation: operations eval for %s returned %T, want []model.Operation", mkt, value)
	}

	var errs error
	for _, op := range ops {
		opErr, trackErr := e.dispatchOne(mkt, at, op)
		e.completed = append(e.completed, model.CompletedOperationRequest{Time: at, Operation: op, Err: opErr})
		if opErr != nil {
			e.logger.Debugw("operation rejected", "market", mkt, "error", opErr)
		}
		if trackErr != nil {
			errs = multierr.Append(errs, trackErr)
		}
	}

	e.ctx = e.ctx.UpdateInput(model.CompletedOperationRequestsInSession{}, e.CompletedOperations())
	return errs
}

// dispatchOne executes a single operation against the market's
// marketplace. opErr is the marketplace's ordinary rejection of the
// operation itself (e.g. a constraint violation) — recorded on the
// completed-operation log and logged at debug level, never treated as a
// tick failure, since a bot proposing an order the marketplace refuses
// is expected traffic. trackErr is a failure updating tracking state
// from the marketplace's resulting events (e.g. an out-of-order
// observation) and is returned to the tick's aggregated error instead,
// since it signals a consistency violation in data this repo exists to
// detect, not a routine rejection.
func (e *Environment) dispatchOne(mkt model.Market, at time.Time, op model.Operation) (opErr, trackErr error) {
	mp := e.marketplaces[mkt.Key()]

	switch o := op.(type) {
	case model.PlaceOrderOperation:
		_, events, err := mp.PlaceOrder(marketplace.PlaceOrderSpec{Price: o.Price, Quantity: o.Quantity}, at)
		if err != nil {
			return err, nil
		}
		return nil, e.applyMarketplaceOutput(mkt, nil, events)
	case model.CancelOrderOperation:
		events, err := mp.CancelOrder(o.OrderID, at, o.AbsoluteRestQuantity)
		if err != nil {
			return err, nil
		}
		return nil, e.applyMarketplaceOutput(mkt, nil, events)
	default:
		return fmt.Errorf("simulation: unsupported operation type %T", op), nil
	}
}

// applyMarketplaceOutput folds trades and tracking events into the
// environment's state. It returns an aggregated error if any
// ObservationChange failed to append to its order's history (§9's
// strictly-increasing-in-time invariant) rather than discarding it —
// two inputs landing on the same timed-merge instant (§4.B tie-break)
// can both produce an observation for the same order, and a caller must
// see that instead of losing the event silently.
func (e *Environment) applyMarketplaceOutput(mkt model.Market, trades []model.Trade, events []model.OrderTrackingEvent) error {
	if len(trades) > 0 {
		e.appendTrades(mkt, trades)
	}

	var errs error
	for _, ev := range events {
		switch v := ev.(type) {
		case model.Creation:
			e.trackingFor(v.Order.ID).OperationEvents = append(e.trackingFor(v.Order.ID).OperationEvents, v)
		case model.Cancel:
			e.trackingFor(v.OrderID).OperationEvents = append(e.trackingFor(v.OrderID).OperationEvents, v)
		case model.NewTrade:
			st := e.trackingFor(v.Trade.OrderID)
			st.TradeEvents = append(st.TradeEvents, v.Trade)
		case model.ObservationChange:
			if err := e.applyObservation(mkt, v); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	mp := e.marketplaces[mkt.Key()]
	e.ctx = e.ctx.UpdateInput(model.SimulatedOpenOrdersInput{Market: mkt}, mp.OpenOrders())
	e.ctx = e.ctx.UpdateInput(model.OrderSnapshotHistoryInput{Market: mkt}, e.observations[mkt.Key()])
	return errs
}

func (e *Environment) appendTrades(mkt model.Market, trades []model.Trade) {
	in, ok := e.tradeInputs[mkt.Key()]
	if !ok {
		return
	}
	current, _ := e.ctx.InputValue(in)
	seg, _ := current.(*model.TradeHistorySegment)
	if seg == nil {
		seg = model.NewTradeHistorySegment(mkt, in.Start)
	}
	all := append(seg.Trades(), trades...)
	newSeg := model.NewTradeHistorySegmentFromTrades(mkt, seg.Start, all)
	e.ctx = e.ctx.UpdateInput(in, newSeg)
}

func (e *Environment) applyObservation(mkt model.Market, oc model.ObservationChange) error {
	if oc.OrderID == "" {
		return nil
	}

	byOrder, ok := e.observations[mkt.Key()]
	if !ok {
		byOrder = map[string]*model.SingleOrderObservationHistory{}
		e.observations[mkt.Key()] = byOrder
	}

	var err error
	if hist, ok := byOrder[oc.OrderID]; ok {
		err = hist.Append(oc)
	} else {
		byOrder[oc.OrderID] = model.NewSingleOrderObservationHistory(oc)
	}

	st := e.trackingFor(oc.OrderID)
	st.ObservationHistory = byOrder[oc.OrderID]
	if err != nil {
		return fmt.Errorf("order %s: %w", oc.OrderID, err)
	}
	return nil
}

func (e *Environment) trackingFor(orderID string) *model.BasicOrderTrackingState {
	st, ok := e.tracking[orderID]
	if !ok {
		st = &model.BasicOrderTrackingState{OrderID: orderID}
		e.tracking[orderID] = st
	}
	return st
}
