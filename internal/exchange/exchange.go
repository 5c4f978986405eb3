// Package exchange defines the Exchange interface and provides the Gate.io
// spot implementation plus an in-memory simulator.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptofolio/internal/domain"
)

// Exchange abstracts the spot exchange: market data, account balances, and
// order placement.
//
// Tickers must be fetched fresh per operation: prices are the basis of
// fund-sufficiency and order-size checks, so implementations must not cache.
// PlaceLimitOrder is fire-and-forget: callers do not await fills and
// implementations must not retry.
type Exchange interface {
	// Name returns the exchange identifier (e.g. "gateio", "simulator").
	Name() string

	// Tickers returns the last price and daily percent change for every
	// tradable asset, keyed by asset symbol with the quote suffix stripped.
	Tickers(ctx context.Context) (map[string]domain.Ticker, error)

	// Balances returns the available balance per currency, including the
	// quote currency.
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)

	// PlaceLimitOrder submits a limit order for asset against the quote
	// currency.
	PlaceLimitOrder(ctx context.Context, asset string, price, quantity decimal.Decimal, side domain.OrderSide) error
}
