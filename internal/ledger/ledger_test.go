package ledger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptofolio/internal/domain"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), slog.Default())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLoadDistributionEmpty(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	dist, err := l.LoadDistribution(ctx)
	if err != nil {
		t.Fatalf("LoadDistribution returned error: %v", err)
	}
	if len(dist) != 0 {
		t.Errorf("initial distribution has %d entries, want 0", len(dist))
	}

	// The empty distribution must now be the canonical persisted state.
	again, err := l.LoadDistribution(ctx)
	if err != nil {
		t.Fatalf("second LoadDistribution returned error: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second load has %d entries, want 0", len(again))
	}
}

func TestDistributionRoundTrip(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	want := domain.Distribution{"BTC": dec("60"), "ETH": dec("40")}
	if err := l.SetDistribution(ctx, want); err != nil {
		t.Fatalf("SetDistribution returned error: %v", err)
	}

	got, err := l.LoadDistribution(ctx)
	if err != nil {
		t.Fatalf("LoadDistribution returned error: %v", err)
	}
	if len(got) != 2 || !got["BTC"].Equal(dec("60")) || !got["ETH"].Equal(dec("40")) {
		t.Errorf("LoadDistribution = %v, want %v", got, want)
	}

	// Deep-copy isolation: mutating the returned value must not affect the
	// stored cache.
	got["BTC"] = dec("1")
	delete(got, "ETH")

	again, err := l.LoadDistribution(ctx)
	if err != nil {
		t.Fatalf("LoadDistribution returned error: %v", err)
	}
	if !again["BTC"].Equal(dec("60")) || !again["ETH"].Equal(dec("40")) {
		t.Errorf("cache was mutated through returned copy: %v", again)
	}
}

func TestDistributionSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l, err := Open(dbPath, slog.Default())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := l.SetDistribution(ctx, domain.Distribution{"BTC": dec("100")}); err != nil {
		t.Fatalf("SetDistribution returned error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	l2, err := Open(dbPath, slog.Default())
	if err != nil {
		t.Fatalf("reopening returned error: %v", err)
	}
	defer l2.Close()

	dist, err := l2.LoadDistribution(ctx)
	if err != nil {
		t.Fatalf("LoadDistribution returned error: %v", err)
	}
	if !dist["BTC"].Equal(dec("100")) {
		t.Errorf("distribution after reopen = %v, want BTC=100", dist)
	}
}

func TestAddPurchaseWeightedMerge(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	l.now = func() time.Time { return time.Date(2023, 5, 10, 14, 30, 0, 0, time.UTC) }

	first := domain.PurchaseRecord{"A": {Quantity: dec("2"), AveragePrice: dec("10")}}
	second := domain.PurchaseRecord{"A": {Quantity: dec("2"), AveragePrice: dec("20")}}

	if err := l.AddPurchase(ctx, first, false); err != nil {
		t.Fatalf("AddPurchase returned error: %v", err)
	}
	if err := l.AddPurchase(ctx, second, false); err != nil {
		t.Fatalf("AddPurchase returned error: %v", err)
	}

	entries, err := l.ListPurchases(ctx, false)
	if err != nil {
		t.Fatalf("ListPurchases returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListPurchases returned %d entries, want 1", len(entries))
	}

	line := entries[0].Record["A"]
	if !line.Quantity.Equal(dec("4")) {
		t.Errorf("merged quantity = %s, want 4", line.Quantity)
	}
	if !line.AveragePrice.Equal(dec("15")) {
		t.Errorf("merged average price = %s, want 15", line.AveragePrice)
	}

	wantDay := time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC).Unix()
	if entries[0].Day != wantDay {
		t.Errorf("entry day = %d, want %d", entries[0].Day, wantDay)
	}
}

func TestMergeCommutative(t *testing.T) {
	a := domain.PurchaseRecord{"A": {Quantity: dec("2"), AveragePrice: dec("10")}}
	b := domain.PurchaseRecord{
		"A": {Quantity: dec("2"), AveragePrice: dec("20")},
		"B": {Quantity: dec("1"), AveragePrice: dec("5")},
	}

	ab := mergeRecords(a, b)
	ba := mergeRecords(b, a)

	for _, sym := range []string{"A", "B"} {
		if !ab[sym].Quantity.Equal(ba[sym].Quantity) {
			t.Errorf("%s quantity differs by merge order: %s vs %s", sym, ab[sym].Quantity, ba[sym].Quantity)
		}
		if !ab[sym].AveragePrice.Equal(ba[sym].AveragePrice) {
			t.Errorf("%s price differs by merge order: %s vs %s", sym, ab[sym].AveragePrice, ba[sym].AveragePrice)
		}
	}
	if !ab["A"].Quantity.Equal(dec("4")) || !ab["A"].AveragePrice.Equal(dec("15")) {
		t.Errorf("merged A = %v, want (4, 15)", ab["A"])
	}
	if !ab["B"].Quantity.Equal(dec("1")) || !ab["B"].AveragePrice.Equal(dec("5")) {
		t.Errorf("merged B = %v, want (1, 5)", ab["B"])
	}
}

func TestMergeZeroQuantityGuard(t *testing.T) {
	a := domain.PurchaseRecord{"A": {Quantity: dec("0"), AveragePrice: dec("0")}}
	b := domain.PurchaseRecord{"A": {Quantity: dec("0"), AveragePrice: dec("0")}}

	merged := mergeRecords(a, b)
	if !merged["A"].Quantity.IsZero() || !merged["A"].AveragePrice.IsZero() {
		t.Errorf("merged zero-quantity line = %v, want (0, 0)", merged["A"])
	}
}

func TestNamespaceSeparation(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	l.now = func() time.Time { return time.Date(2023, 5, 10, 9, 0, 0, 0, time.UTC) }

	real := domain.PurchaseRecord{"BTC": {Quantity: dec("1"), AveragePrice: dec("100")}}
	mock := domain.PurchaseRecord{"ETH": {Quantity: dec("2"), AveragePrice: dec("50")}}

	if err := l.AddPurchase(ctx, real, false); err != nil {
		t.Fatalf("AddPurchase(real) returned error: %v", err)
	}
	if err := l.AddPurchase(ctx, mock, true); err != nil {
		t.Fatalf("AddPurchase(mock) returned error: %v", err)
	}

	realEntries, err := l.ListPurchases(ctx, false)
	if err != nil {
		t.Fatalf("ListPurchases(false) returned error: %v", err)
	}
	if len(realEntries) != 1 {
		t.Fatalf("real namespace has %d entries, want 1", len(realEntries))
	}
	if _, ok := realEntries[0].Record["ETH"]; ok {
		t.Error("simulated purchase leaked into real namespace")
	}

	mockEntries, err := l.ListPurchases(ctx, true)
	if err != nil {
		t.Fatalf("ListPurchases(true) returned error: %v", err)
	}
	if len(mockEntries) != 1 {
		t.Fatalf("simulated namespace has %d entries, want 1", len(mockEntries))
	}
	if _, ok := mockEntries[0].Record["BTC"]; ok {
		t.Error("real purchase leaked into simulated namespace")
	}
}

func TestListPurchasesExcludesDistribution(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.SetDistribution(ctx, domain.Distribution{"BTC": dec("100")}); err != nil {
		t.Fatalf("SetDistribution returned error: %v", err)
	}

	for _, simulated := range []bool{false, true} {
		entries, err := l.ListPurchases(ctx, simulated)
		if err != nil {
			t.Fatalf("ListPurchases(%v) returned error: %v", simulated, err)
		}
		if len(entries) != 0 {
			t.Errorf("ListPurchases(%v) = %d entries, want 0 (distribution key must never surface)", simulated, len(entries))
		}
	}
}

func TestListPurchasesSortedByDay(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	days := []time.Time{
		time.Date(2023, 5, 12, 8, 0, 0, 0, time.UTC),
		time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC),
		time.Date(2023, 5, 11, 8, 0, 0, 0, time.UTC),
	}
	for _, day := range days {
		l.now = func() time.Time { return day }
		rec := domain.PurchaseRecord{"BTC": {Quantity: dec("1"), AveragePrice: dec("10")}}
		if err := l.AddPurchase(ctx, rec, false); err != nil {
			t.Fatalf("AddPurchase returned error: %v", err)
		}
	}

	entries, err := l.ListPurchases(ctx, false)
	if err != nil {
		t.Fatalf("ListPurchases returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListPurchases returned %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Day >= entries[i].Day {
			t.Errorf("entries not sorted ascending: day[%d]=%d >= day[%d]=%d", i-1, entries[i-1].Day, i, entries[i].Day)
		}
	}
}

func TestAddPurchaseNewAssetSameDay(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	l.now = func() time.Time { return time.Date(2023, 5, 10, 9, 0, 0, 0, time.UTC) }

	if err := l.AddPurchase(ctx, domain.PurchaseRecord{"BTC": {Quantity: dec("1"), AveragePrice: dec("100")}}, false); err != nil {
		t.Fatalf("AddPurchase returned error: %v", err)
	}
	if err := l.AddPurchase(ctx, domain.PurchaseRecord{"ETH": {Quantity: dec("3"), AveragePrice: dec("20")}}, false); err != nil {
		t.Fatalf("AddPurchase returned error: %v", err)
	}

	entries, err := l.ListPurchases(ctx, false)
	if err != nil {
		t.Fatalf("ListPurchases returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("same-day purchases produced %d entries, want 1", len(entries))
	}
	rec := entries[0].Record
	if !rec["BTC"].Quantity.Equal(dec("1")) || !rec["ETH"].Quantity.Equal(dec("3")) {
		t.Errorf("merged record = %v, want both assets preserved", rec)
	}
}

func TestDayKey(t *testing.T) {
	noon := time.Date(2023, 5, 10, 12, 34, 56, 0, time.UTC)
	midnight := time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)

	if got, want := dayKey(noon, false), dayKey(midnight, false); got != want {
		t.Errorf("dayKey(noon) = %s, want %s", got, want)
	}
	if got := dayKey(noon, true); got != dayKey(noon, false)+"_mock" {
		t.Errorf("simulated dayKey = %s, want %s", got, dayKey(noon, false)+"_mock")
	}
}
