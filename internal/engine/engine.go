// Package engine implements the allocation engine: it validates a target
// distribution against live prices, converts a cash amount into per-asset
// limit orders, and merges the result into the purchase ledger.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"cryptofolio/internal/domain"
	"cryptofolio/internal/exchange"
	"cryptofolio/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// Engine coordinates the exchange and the ledger for allocation requests.
// It holds no mutable state of its own; the ledger owns all shared state.
type Engine struct {
	exchange      exchange.Exchange
	ledger        *ledger.Ledger
	minOrderValue decimal.Decimal
	log           *slog.Logger
}

// New creates an Engine. minOrderValue is the smallest acceptable per-asset
// notional in quote currency; a slice exactly at the threshold passes.
func New(ex exchange.Exchange, led *ledger.Ledger, minOrderValue decimal.Decimal, log *slog.Logger) *Engine {
	return &Engine{
		exchange:      ex,
		ledger:        led,
		minOrderValue: minOrderValue,
		log:           log.With("component", "engine"),
	}
}

// Balance is one row of the portfolio summary: total value in quote currency
// and share of the whole portfolio, in percent.
type Balance struct {
	Value   decimal.Decimal
	Percent decimal.Decimal
}

// MarshalJSON encodes the balance as the wire pair [value, percent].
func (b Balance) MarshalJSON() ([]byte, error) {
	return []byte("[" + b.Value.String() + "," + b.Percent.String() + "]"), nil
}

// Allocate converts amount (quote currency) into per-asset limit buys
// following dist, then records the purchases in the ledger.
//
// Validation runs in order, first failure wins: positive amount, weights
// summing to 100 (rounded to 2 places), every asset tradable, every slice at
// or above the minimum order value. When replace is set the distribution is
// persisted before the funds check, so a replacement survives an underfunded
// request. With simulate set no orders are sent; the intended purchases are
// recorded in the simulated ledger namespace instead.
//
// Orders are fire-and-forget. Failed placements are excluded from the ledger
// write and reported through a *PartialExecutionError.
func (e *Engine) Allocate(ctx context.Context, dist domain.Distribution, amount decimal.Decimal, replace, simulate bool) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validateWeights(dist); err != nil {
		return err
	}

	tickers, err := e.exchange.Tickers(ctx)
	if err != nil {
		return fmt.Errorf("fetching tickers: %w", err)
	}

	assets := sortedAssets(dist)
	for _, asset := range assets {
		tick, ok := tickers[asset]
		if !ok || !tick.Last.IsPositive() {
			return &UnknownAssetError{Asset: asset}
		}
	}
	for _, asset := range assets {
		if e.notional(amount, dist[asset]).LessThan(e.minOrderValue) {
			return &OrderTooSmallError{Asset: asset}
		}
	}

	if replace {
		if err := e.ledger.SetDistribution(ctx, dist); err != nil {
			return fmt.Errorf("replacing distribution: %w", err)
		}
	}

	balances, err := e.exchange.Balances(ctx)
	if err != nil {
		return fmt.Errorf("fetching balances: %w", err)
	}
	required := decimal.Zero
	for _, asset := range assets {
		required = required.Add(e.notional(amount, dist[asset]))
	}
	if balances[domain.QuoteCurrency].LessThan(required) {
		return ErrInsufficientFunds
	}

	record := domain.PurchaseRecord{}
	failed := map[string]error{}
	for _, asset := range assets {
		price := tickers[asset].Last
		funds := e.notional(amount, dist[asset])
		quantity := funds.Div(price)

		if !simulate {
			if err := e.exchange.PlaceLimitOrder(ctx, asset, price, quantity, domain.OrderSideBuy); err != nil {
				e.log.Error("order placement failed", "asset", asset, "quantity", quantity, "price", price, "error", err)
				failed[asset] = err
				continue
			}
		}

		e.log.Info("buying", "asset", asset, "quantity", quantity, "price", price, "funds", funds, "simulated", simulate)
		record[asset] = domain.PurchaseLine{Quantity: quantity, AveragePrice: price}
	}

	if len(record) > 0 {
		if err := e.ledger.AddPurchase(ctx, record, simulate); err != nil {
			return fmt.Errorf("recording purchases: %w", err)
		}
	}

	if len(failed) > 0 {
		return &PartialExecutionError{Failed: failed}
	}
	return nil
}

// Deallocate is the sell-down counterpart of Allocate. Real sell semantics
// (proportions, dust thresholds, tax lots) are an open product decision, so
// it deliberately reports ErrNotImplemented.
func (e *Engine) Deallocate(_ context.Context) error {
	return ErrNotImplemented
}

// PortfolioBalances values every held currency at its current USDT price and
// returns the per-asset totals with their share of the portfolio. Holdings
// worth less than the minimum order value are bucketed under "Others". The
// quote currency itself is valued at 1.
func (e *Engine) PortfolioBalances(ctx context.Context) (map[string]Balance, error) {
	tickers, err := e.exchange.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching tickers: %w", err)
	}
	balances, err := e.exchange.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching balances: %w", err)
	}

	values := map[string]decimal.Decimal{}
	total := decimal.Zero
	for currency, quantity := range balances {
		price := decimal.NewFromInt(1)
		if currency != domain.QuoteCurrency {
			tick, ok := tickers[currency]
			if !ok {
				e.log.Warn("no ticker for held asset, skipping", "asset", currency)
				continue
			}
			price = tick.Last
		}

		value := price.Mul(quantity)
		bucket := currency
		if value.LessThan(e.minOrderValue) {
			bucket = "Others"
		}
		values[bucket] = values[bucket].Add(value)
		total = total.Add(value)
	}

	out := make(map[string]Balance, len(values))
	if total.IsZero() {
		return out, nil
	}
	for bucket, value := range values {
		out[bucket] = Balance{
			Value:   value,
			Percent: value.Mul(hundred).Div(total),
		}
	}
	return out, nil
}

// notional is the quote-currency spend for one asset: amount * weight / 100.
func (e *Engine) notional(amount, weight decimal.Decimal) decimal.Decimal {
	return amount.Mul(weight).Div(hundred)
}

// validateWeights checks that all weights are non-negative and sum to 100
// when rounded to 2 decimal places.
func validateWeights(dist domain.Distribution) error {
	for _, w := range dist {
		if w.IsNegative() {
			return ErrWeightsDoNotSum
		}
	}
	if !dist.WeightSum().Round(2).Equal(hundred) {
		return ErrWeightsDoNotSum
	}
	return nil
}

// sortedAssets returns the distribution's asset symbols in lexical order so
// validation errors and order placement are deterministic.
func sortedAssets(dist domain.Distribution) []string {
	assets := make([]string, 0, len(dist))
	for asset := range dist {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
