package engine

import (
	"errors"
	"sort"
	"strings"
)

// Allocation input errors. All are detected before any order is placed and
// leave no state behind, except that a requested distribution replacement is
// persisted before the funds check (see Allocate).
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrWeightsDoNotSum   = errors.New("distribution weights must be non-negative and sum to 100")
	ErrInsufficientFunds = errors.New("not enough USDT available")
	ErrNotImplemented    = errors.New("sell-down is not implemented")
)

// UnknownAssetError reports a distribution asset with no tradable USDT pair.
type UnknownAssetError struct {
	Asset string
}

func (e *UnknownAssetError) Error() string {
	return e.Asset + " missing in exchange"
}

// OrderTooSmallError reports an allocation slice below the minimum order
// value.
type OrderTooSmallError struct {
	Asset string
}

func (e *OrderTooSmallError) Error() string {
	return "amount for " + e.Asset + " too small"
}

// PartialExecutionError reports that some orders failed to place. Orders that
// did place are already merged into the ledger; the failed assets are not.
type PartialExecutionError struct {
	Failed map[string]error
}

func (e *PartialExecutionError) Error() string {
	assets := make([]string, 0, len(e.Failed))
	for asset := range e.Failed {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return "partial execution: orders failed for " + strings.Join(assets, ", ")
}
