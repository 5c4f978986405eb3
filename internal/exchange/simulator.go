package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptofolio/internal/domain"
)

// Compile-time interface check.
var _ Exchange = (*Simulator)(nil)

// Simulator implements Exchange in memory for paper trading and tests. It
// serves seeded tickers, tracks balances through the orders it accepts, and
// keeps a journal of every order without making external calls.
type Simulator struct {
	mu       sync.Mutex
	tickers  map[string]domain.Ticker
	balances map[string]decimal.Decimal
	orders   []domain.Order
}

// NewSimulator creates a Simulator seeded with the given tickers and
// balances.
func NewSimulator(tickers map[string]domain.Ticker, balances map[string]decimal.Decimal) *Simulator {
	s := &Simulator{
		tickers:  make(map[string]domain.Ticker, len(tickers)),
		balances: make(map[string]decimal.Decimal, len(balances)),
	}
	for sym, t := range tickers {
		s.tickers[sym] = t
	}
	for cur, b := range balances {
		s.balances[cur] = b
	}
	return s
}

// Name returns "simulator".
func (s *Simulator) Name() string { return "simulator" }

// Tickers returns a copy of the seeded ticker set.
func (s *Simulator) Tickers(_ context.Context) (map[string]domain.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Ticker, len(s.tickers))
	for sym, t := range s.tickers {
		out[sym] = t
	}
	return out, nil
}

// Balances returns a copy of the current balances.
func (s *Simulator) Balances(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(s.balances))
	for cur, b := range s.balances {
		out[cur] = b
	}
	return out, nil
}

// PlaceLimitOrder journals the order and settles it immediately at the limit
// price, moving quote balance into the asset for buys and back for sells.
func (s *Simulator) PlaceLimitOrder(_ context.Context, asset string, price, quantity decimal.Decimal, side domain.OrderSide) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost := price.Mul(quantity)
	switch side {
	case domain.OrderSideBuy:
		if s.balances[domain.QuoteCurrency].LessThan(cost) {
			return fmt.Errorf("simulator: insufficient %s for %s buy", domain.QuoteCurrency, asset)
		}
		s.balances[domain.QuoteCurrency] = s.balances[domain.QuoteCurrency].Sub(cost)
		s.balances[asset] = s.balances[asset].Add(quantity)
	case domain.OrderSideSell:
		if s.balances[asset].LessThan(quantity) {
			return fmt.Errorf("simulator: insufficient %s to sell", asset)
		}
		s.balances[asset] = s.balances[asset].Sub(quantity)
		s.balances[domain.QuoteCurrency] = s.balances[domain.QuoteCurrency].Add(cost)
	default:
		return fmt.Errorf("simulator: unknown order side %q", side)
	}

	s.orders = append(s.orders, domain.Order{
		ID:        uuid.NewString(),
		Asset:     asset,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	})
	return nil
}

// Orders returns a copy of the order journal.
func (s *Simulator) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// SetTicker updates or adds a ticker.
func (s *Simulator) SetTicker(asset string, t domain.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers[asset] = t
}
