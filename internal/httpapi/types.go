// Package httpapi exposes the allocation assistant over HTTP: market data,
// the purchase ledger, portfolio balances, and the buy endpoint. Every route
// is guarded by a shared-secret "code" query parameter.
package httpapi

import (
	"encoding/json"

	"cryptofolio/internal/domain"
	"cryptofolio/internal/ledger"
)

// TickersResponse is the GET /tickers payload: current market data plus the
// stored target distribution.
type TickersResponse struct {
	Tickers      map[string]domain.Ticker `json:"tickers"`
	Distribution domain.Distribution      `json:"distribution"`
}

// purchasesEntry encodes one ledger entry as the wire pair [day, record].
type purchasesEntry ledger.Entry

func (e purchasesEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Day, e.Record})
}
