// Package ledger implements the durable purchase ledger: a concurrency-safe
// key-value store holding the current target distribution and one aggregated
// purchase record per calendar day, split into real and simulated namespaces.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"cryptofolio/internal/domain"
)

const (
	distKey    = "dist"
	mockSuffix = "_mock"
)

// Entry is one day of aggregated purchases.
type Entry struct {
	Day    int64 // UNIX timestamp at UTC midnight
	Record domain.PurchaseRecord
}

// Ledger owns the embedded store and the in-memory distribution cache. All
// access is serialized through one mutex: lock hold time is bounded by one
// read + merge + write, and no network calls happen under the lock.
type Ledger struct {
	mu   sync.Mutex
	db   *sql.DB
	dist domain.Distribution // nil until first load
	now  func() time.Time
	log  *slog.Logger
}

// Open opens (or creates) the ledger database at dbPath.
func Open(dbPath string, log *slog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %s: %w", pragma, err)
		}
	}

	// Single KV table. Keys are either the distribution key or a
	// decimal-string UNIX-day timestamp, optionally suffixed for the
	// simulated namespace. Values are JSON.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entries table: %w", err)
	}

	return &Ledger{
		db:  db,
		now: time.Now,
		log: log,
	}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// LoadDistribution returns a deep copy of the current target distribution.
// On first call with an empty store it persists an empty distribution as the
// canonical initial state.
func (l *Ledger) LoadDistribution(ctx context.Context) (domain.Distribution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dist == nil {
		raw, ok, err := l.get(ctx, distKey)
		if err != nil {
			return nil, fmt.Errorf("loading distribution: %w", err)
		}
		if !ok {
			if err := l.put(ctx, distKey, "{}"); err != nil {
				return nil, fmt.Errorf("initializing distribution: %w", err)
			}
			l.dist = domain.Distribution{}
		} else {
			var dist domain.Distribution
			if err := json.Unmarshal([]byte(raw), &dist); err != nil {
				return nil, fmt.Errorf("decoding distribution: %w", err)
			}
			l.dist = dist
		}
	}

	return l.dist.Clone(), nil
}

// SetDistribution replaces the cached distribution and durably persists it.
func (l *Ledger) SetDistribution(ctx context.Context, dist domain.Distribution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(dist)
	if err != nil {
		return fmt.Errorf("encoding distribution: %w", err)
	}
	if err := l.put(ctx, distKey, string(data)); err != nil {
		return fmt.Errorf("persisting distribution: %w", err)
	}
	l.dist = dist.Clone()
	return nil
}

// AddPurchase merges record into today's entry for the real or simulated
// namespace using per-asset weighted-average accounting, then writes the
// merged result back. The read-merge-write happens under the ledger lock so
// concurrent allocations cannot lose updates.
func (l *Ledger) AddPurchase(ctx context.Context, record domain.PurchaseRecord, simulated bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := dayKey(l.now(), simulated)

	merged := record.Clone()
	raw, ok, err := l.get(ctx, key)
	if err != nil {
		return fmt.Errorf("reading purchase entry %s: %w", key, err)
	}
	if ok {
		var prev domain.PurchaseRecord
		if err := json.Unmarshal([]byte(raw), &prev); err != nil {
			return fmt.Errorf("decoding purchase entry %s: %w", key, err)
		}
		merged = mergeRecords(prev, record)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding purchase entry: %w", err)
	}
	if err := l.put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("persisting purchase entry %s: %w", key, err)
	}

	l.log.Debug("purchase recorded", "key", key, "assets", len(merged), "simulated", simulated)
	return nil
}

// ListPurchases scans all stored keys, excludes the distribution entry,
// filters by namespace, and returns entries sorted ascending by day.
func (l *Ledger) ListPurchases(ctx context.Context, simulated bool) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx, "SELECT k, v FROM entries")
	if err != nil {
		return nil, fmt.Errorf("scanning ledger: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		if key == distKey {
			continue
		}
		isMock := strings.HasSuffix(key, mockSuffix)
		if isMock != simulated {
			continue
		}
		day, err := strconv.ParseInt(strings.TrimSuffix(key, mockSuffix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed ledger key %q: %w", key, err)
		}
		var record domain.PurchaseRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decoding ledger entry %s: %w", key, err)
		}
		entries = append(entries, Entry{Day: day, Record: record})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning ledger: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Day < entries[j].Day })
	return entries, nil
}

// mergeRecords combines two same-day records. For each asset present on
// either side the quantities add and the price becomes the quantity-weighted
// average, rounded to 4 places. Assets with zero combined quantity keep a
// zero price instead of dividing by zero. The operation is commutative and
// associative per asset (up to rounding).
func mergeRecords(prev, next domain.PurchaseRecord) domain.PurchaseRecord {
	merged := make(domain.PurchaseRecord, len(prev)+len(next))
	for sym, line := range prev {
		merged[sym] = line
	}
	for sym, line := range next {
		existing, ok := merged[sym]
		if !ok {
			merged[sym] = line
			continue
		}
		quantity := existing.Quantity.Add(line.Quantity)
		price := decimal.Zero
		if quantity.IsPositive() {
			worth := existing.Quantity.Mul(existing.AveragePrice).
				Add(line.Quantity.Mul(line.AveragePrice))
			price = worth.Div(quantity).Round(4)
		}
		merged[sym] = domain.PurchaseLine{Quantity: quantity, AveragePrice: price}
	}
	return merged
}

// dayKey renders the ledger key for the calendar day containing t: the UNIX
// timestamp of UTC midnight, suffixed for the simulated namespace.
func dayKey(t time.Time, simulated bool) string {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
	key := strconv.FormatInt(day, 10)
	if simulated {
		key += mockSuffix
	}
	return key
}

func (l *Ledger) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := l.db.QueryRowContext(ctx, "SELECT v FROM entries WHERE k = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (l *Ledger) put(ctx context.Context, key, value string) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO entries (k, v, updated_at) VALUES (?, ?, ?) ON CONFLICT(k) DO UPDATE SET v=excluded.v, updated_at=excluded.updated_at",
		key, value, l.now().Unix(),
	)
	return err
}
