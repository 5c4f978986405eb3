// Package domain defines the core types shared across the cryptofolio
// system: target distributions, ticker snapshots, purchase records, and
// orders.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Weights and prices go over the wire as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// QuoteCurrency is the quote side of every tradable pair. Prices, notional
// values, and the funding balance are all denominated in it.
const QuoteCurrency = "USDT"

// Distribution maps an asset symbol (uppercase, exchange-tradable) to its
// target percentage weight. A valid distribution has non-negative weights
// summing to 100 when rounded to 2 decimal places.
type Distribution map[string]decimal.Decimal

// WeightSum returns the sum of all weights.
func (d Distribution) WeightSum() decimal.Decimal {
	sum := decimal.Zero
	for _, w := range d {
		sum = sum.Add(w)
	}
	return sum
}

// Clone returns a deep copy of the distribution.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, len(d))
	for sym, w := range d {
		out[sym] = w
	}
	return out
}

// Ticker is a per-asset market snapshot: last trade price and daily percent
// change. It marshals to the wire format [last, change_percent].
type Ticker struct {
	Last          decimal.Decimal
	ChangePercent decimal.Decimal
}

// MarshalJSON encodes the ticker as a two-element JSON array.
func (t Ticker) MarshalJSON() ([]byte, error) {
	return encodePair(t.Last, t.ChangePercent), nil
}

// UnmarshalJSON decodes a [last, change_percent] JSON array.
func (t *Ticker) UnmarshalJSON(data []byte) error {
	last, change, err := decodePair(data)
	if err != nil {
		return fmt.Errorf("decoding ticker: %w", err)
	}
	t.Last, t.ChangePercent = last, change
	return nil
}

// PurchaseLine is the per-asset quantity and quantity-weighted average price
// accumulated over one calendar day. It marshals to the wire format
// [quantity, average_price].
type PurchaseLine struct {
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
}

// MarshalJSON encodes the line as a two-element JSON array.
func (l PurchaseLine) MarshalJSON() ([]byte, error) {
	return encodePair(l.Quantity, l.AveragePrice), nil
}

// UnmarshalJSON decodes a [quantity, average_price] JSON array.
func (l *PurchaseLine) UnmarshalJSON(data []byte) error {
	qty, price, err := decodePair(data)
	if err != nil {
		return fmt.Errorf("decoding purchase line: %w", err)
	}
	l.Quantity, l.AveragePrice = qty, price
	return nil
}

// PurchaseRecord maps asset symbols to their accumulated purchase lines for
// one calendar day.
type PurchaseRecord map[string]PurchaseLine

// Clone returns a deep copy of the record.
func (r PurchaseRecord) Clone() PurchaseRecord {
	out := make(PurchaseRecord, len(r))
	for sym, line := range r {
		out[sym] = line
	}
	return out
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is a limit order as handed to the execution gateway.
type Order struct {
	ID        string
	Asset     string
	Side      OrderSide
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	CreatedAt time.Time
}

// encodePair renders two decimals as a JSON array of plain numbers.
// decimal.String always yields a valid JSON number literal.
func encodePair(a, b decimal.Decimal) []byte {
	return []byte("[" + a.String() + "," + b.String() + "]")
}

// decodePair parses a two-element JSON number array.
func decodePair(data []byte) (decimal.Decimal, decimal.Decimal, error) {
	var pair []json.Number
	if err := json.Unmarshal(data, &pair); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if len(pair) != 2 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("expected 2 elements, got %d", len(pair))
	}
	a, err := decimal.NewFromString(pair[0].String())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	b, err := decimal.NewFromString(pair[1].String())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return a, b, nil
}
