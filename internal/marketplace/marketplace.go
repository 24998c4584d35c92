// Package marketplace implements the candle-simulator marketplace and
// matcher (§4.D): a per-market simulated order book that matches orders
// against OHLC candle data and emits synthetic trades and tracking
// events. Structurally it is an account/position simulator fed live
// tickers, turned into a multi-order, multi-market book matched against
// candle highs and lows instead of a single leveraged position matched
// against ticks. It holds no lock; the replay loop drives it from one
// goroutine.
package marketplace

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"backtestsim/internal/model"
)

// PlaceOrderSpec is the caller-supplied intent for a new order; Price
// and Quantity are quantized to the market's constraints before the
// order is accepted.
type PlaceOrderSpec struct {
	Price    float64
	Quantity float64 // signed: positive buy, negative sell
}

// Marketplace is a single market's simulated order book. It holds no
// reference to the evaluation context — internal/simulation applies the
// trades and tracking events it returns to the context on the caller's
// behalf, since the context is exclusively owned by the environment.
type Marketplace struct {
	market          model.Market
	constraints     model.OrderConstraints
	feeLevel        float64
	volumeReduction float64
	logger          *zap.SugaredLogger

	openOrders map[string]model.Order
	ids        *idSequence
}

// New constructs a Marketplace. volumeReduction must be in (0, 1].
func New(market model.Market, constraints model.OrderConstraints, feeLevel, volumeReduction float64, logger *zap.SugaredLogger) (*Marketplace, error) {
	if volumeReduction <= 0 || volumeReduction > 1 {
		return nil, fmt.Errorf("marketplace: volumeReduction must be in (0,1], got %v", volumeReduction)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Marketplace{
		market:          market,
		constraints:     constraints,
		feeLevel:        feeLevel,
		volumeReduction: volumeReduction,
		logger:          logger.With("market", market.Key()),
		openOrders:      map[string]model.Order{},
		ids:             newIDSequence(market),
	}, nil
}

// PlaceOrder quantizes and admits a new order (§4.D placeOrder).
func (m *Marketplace) PlaceOrder(spec PlaceOrderSpec, t time.Time) (model.Order, []model.OrderTrackingEvent, error) {
	price := model.Quantize(spec.Price, m.constraints.PricePrecision)
	quantity := model.QuantizeDown(spec.Quantity, m.constraints.QuantityPrecision)
	if quantity == 0 {
		return model.Order{}, nil, InvalidOrder{Reason: "quantity rounds to zero after quantization"}
	}
	if sign(quantity) != sign(spec.Quantity) {
		return model.Order{}, nil, InvalidOrder{Reason: "quantized quantity sign disagrees with requested side"}
	}

	order := model.Order{
		ID:           m.ids.nextOrderID(),
		Market:       m.market,
		FullQuantity: quantity,
		Price:        price,
	}
	m.openOrders[order.ID] = order

	m.logger.Debugw("order placed", "orderId", order.ID, "price", price, "quantity", quantity)

	return order, []model.OrderTrackingEvent{
		model.Creation{Time: t, Order: order},
		model.ObservationChange{Time: t, OrderID: order.ID, Order: &order},
	}, nil
}

// CancelOrder removes an open order and emits its tracking events
// (§4.D cancelOrder).
func (m *Marketplace) CancelOrder(orderID string, t time.Time, absoluteRest *float64) ([]model.OrderTrackingEvent, error) {
	if _, ok := m.openOrders[orderID]; !ok {
		return nil, InvalidOrder{Reason: fmt.Sprintf("order %s is not open", orderID)}
	}
	delete(m.openOrders, orderID)

	m.logger.Debugw("order canceled", "orderId", orderID)

	return []model.OrderTrackingEvent{
		model.Cancel{Time: t, OrderID: orderID, AbsoluteRestQuantity: absoluteRest},
		model.ObservationChange{Time: t, OrderID: orderID, Order: nil},
	}, nil
}

// OpenOrders returns the currently open orders in deterministic
// ascending order by id — the scan order §4.D requires for matching.
func (m *Marketplace) OpenOrders() []model.Order {
	out := make([]model.Order, 0, len(m.openOrders))
	for _, o := range m.openOrders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ProcessCandle runs the matching algorithm (§4.D steps 1-5) for every
// open order against one candle, returning the trades and tracking
// events produced.
func (m *Marketplace) ProcessCandle(candle model.Candle) ([]model.Trade, []model.OrderTrackingEvent, error) {
	budget := candle.QuoteVolume * m.volumeReduction
	closeTime := candle.CloseTime()

	var trades []model.Trade
	var events []model.OrderTrackingEvent

	for _, order := range m.OpenOrders() {
		if budget <= 0 {
			break
		}
		if !priceInRange(order, candle) {
			continue
		}

		maxQuantity := budget / order.Price
		fillQuantity := math.Min(math.Abs(order.OpenQuantity()), maxQuantity)
		fillQuantity = model.QuantizeDown(fillQuantity, m.constraints.QuantityPrecision)
		if fillQuantity <= 0 {
			continue
		}

		quoteCost := fillQuantity * order.Price
		fee := math.Abs(quoteCost) * m.feeLevel
		budget -= quoteCost

		signedFill := fillQuantity
		if !order.IsBuy() {
			signedFill = -fillQuantity
		}

		trade := model.Trade{
			ID:       m.ids.nextTradeID(),
			Time:     closeTime,
			Market:   m.market,
			Price:    order.Price,
			Quantity: signedFill,
			Fees:     fee,
			OrderID:  order.ID,
		}
		trades = append(trades, trade)
		events = append(events, model.NewTrade{Trade: trade})

		updated := order.ReduceQuantity(fillQuantity)
		if updated.OpenQuantity() == 0 {
			delete(m.openOrders, order.ID)
			events = append(events, model.ObservationChange{Time: closeTime, OrderID: order.ID, Order: nil})
		} else {
			m.openOrders[order.ID] = updated
		}
	}

	return trades, events, nil
}

func priceInRange(order model.Order, candle model.Candle) bool {
	if order.IsBuy() {
		return candle.Low <= order.Price
	}
	return candle.High >= order.Price
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
