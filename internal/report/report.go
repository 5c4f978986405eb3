// Package report exports purchase history from the ledger into Parquet
// files for offline analysis.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"cryptofolio/internal/ledger"
)

// PurchaseRow is the Parquet schema for one asset line of one ledger day.
type PurchaseRow struct {
	Day          int64   `parquet:"day,timestamp(millisecond)"` // UTC midnight, Unix ms
	Symbol       string  `parquet:"symbol"`
	Quantity     float64 `parquet:"quantity"`
	AveragePrice float64 `parquet:"average_price"`
	Simulated    bool    `parquet:"simulated"`
}

// ExportPurchases flattens one ledger namespace into rows sorted by day then
// symbol and writes them to a Parquet file at path. The file is replaced
// wholesale; the ledger is the source of truth.
func ExportPurchases(ctx context.Context, led *ledger.Ledger, simulated bool, path string) (int, error) {
	entries, err := led.ListPurchases(ctx, simulated)
	if err != nil {
		return 0, fmt.Errorf("listing purchases: %w", err)
	}

	var rows []PurchaseRow
	for _, e := range entries {
		symbols := make([]string, 0, len(e.Record))
		for sym := range e.Record {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		for _, sym := range symbols {
			line := e.Record[sym]
			rows = append(rows, PurchaseRow{
				Day:          e.Day * 1000,
				Symbol:       sym,
				Quantity:     line.Quantity.InexactFloat64(),
				AveragePrice: line.AveragePrice.InexactFloat64(),
				Simulated:    simulated,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(rows), nil
}
