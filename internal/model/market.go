// Package model defines the value types shared by every component of the
// backtesting core: inputs, candles, trades, orders, markets, and the
// tagged order-tracking events. Nothing here owns mutable state — the
// context (internal/evalctx) owns input bindings, and the marketplace
// (internal/marketplace) owns order books.
package model

import "fmt"

// Market identifies one trading pair on one exchange.
type Market struct {
	ExchangeID string
	Base       string
	Quote      string
}

// TradingPair renders the market's pair as "BASE-QUOTE".
func (m Market) TradingPair() string {
	return m.Base + "-" + m.Quote
}

// Key is a stable identity suitable for map keys and deterministic ordering.
func (m Market) Key() string {
	return fmt.Sprintf("%s:%s", m.ExchangeID, m.TradingPair())
}

func (m Market) String() string {
	return m.Key()
}

// PrecisionMode selects how a price or quantity is quantized.
type PrecisionMode int

const (
	// DigitsAfterSeparator rounds to a fixed number of decimal places.
	DigitsAfterSeparator PrecisionMode = iota
	// SignificantDigits rounds to a fixed number of significant digits.
	SignificantDigits
	// StepMultiple rounds to the nearest multiple of a step size.
	StepMultiple
)

// Precision describes one quantization rule.
type Precision struct {
	Mode PrecisionMode
	// Digits is used by DigitsAfterSeparator and SignificantDigits.
	Digits int
	// Step is used by StepMultiple.
	Step float64
}

// OrderConstraints bundles the price and quantity precision for a market.
type OrderConstraints struct {
	PricePrecision    Precision
	QuantityPrecision Precision
}
