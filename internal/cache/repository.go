package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/datafeed/internal/domain"
)

// AllTables lists all cache tables for cleanup operations.
var AllTables = []string{
	"price_history",
	"fundamentals",
}

// validTables is a set for O(1) table name validation.
var validTables = func() map[string]bool {
	m := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		m[t] = true
	}
	return m
}()

// validateTable ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func validateTable(table string) error {
	if !validTables[table] {
		return fmt.Errorf("invalid table name: %s", table)
	}
	return nil
}

// Options tunes the repository's TTL policy. Zero values fall back to
// defaults.
type Options struct {
	FundamentalsTTL time.Duration // default 7 days
	CloseBuffer     time.Duration // propagation buffer past market close, default 1h
}

// Repository provides typed cache operations for price history and
// fundamentals. Writes are upserts; reads distinguish fresh from stale.
type Repository struct {
	db              *sql.DB
	fundamentalsTTL time.Duration
	closeBuffer     time.Duration

	now func() time.Time // overridable in tests
}

// NewRepository creates a cache repository over an opened cache database.
func NewRepository(db *sql.DB, opts Options) *Repository {
	if opts.FundamentalsTTL <= 0 {
		opts.FundamentalsTTL = 7 * 24 * time.Hour
	}
	if opts.CloseBuffer <= 0 {
		opts.CloseBuffer = time.Hour
	}
	return &Repository{
		db:              db,
		fundamentalsTTL: opts.FundamentalsTTL,
		closeBuffer:     opts.CloseBuffer,
		now:             time.Now,
	}
}

// StorePriceHistory upserts a daily series for its symbol. The entry
// expires at the next market close plus the propagation buffer.
func (r *Repository) StorePriceHistory(h *domain.PriceHistory) error {
	if h == nil || h.Symbol == "" {
		return fmt.Errorf("price history requires a symbol")
	}
	if !h.Period.Valid() {
		return fmt.Errorf("price history for %s has invalid period %q", h.Symbol, h.Period)
	}

	payload, err := encodeBars(h.Bars)
	if err != nil {
		return err
	}

	now := r.now()
	expiresAt := NextDailyExpiry(now, r.closeBuffer)

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO price_history
		 (symbol, payload, source, period, row_count, schema_version, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Symbol, payload, h.Source, string(h.Period), len(h.Bars),
		priceHistoryCodecVersion, now.Unix(), expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store price history for %s: %w", h.Symbol, err)
	}
	return nil
}

// FreshPriceHistory returns the cached series for symbol if it is unexpired,
// its codec version matches, and its period covers the requested one.
// Returns nil, nil on a miss. The returned series keeps its cached period;
// trimming to the requested window is the caller's concern.
func (r *Repository) FreshPriceHistory(symbol string, period domain.Period) (*domain.PriceHistory, error) {
	return r.readPriceHistory(symbol, period, true)
}

// StalePriceHistory returns the cached series for symbol regardless of
// expiry. Used only as the last resort when every live source has failed.
// Returns nil, nil when the symbol was never cached.
func (r *Repository) StalePriceHistory(symbol string, period domain.Period) (*domain.PriceHistory, error) {
	return r.readPriceHistory(symbol, period, false)
}

func (r *Repository) readPriceHistory(symbol string, period domain.Period, freshOnly bool) (*domain.PriceHistory, error) {
	query := `SELECT payload, source, period, schema_version FROM price_history WHERE symbol = ?`
	args := []interface{}{symbol}
	if freshOnly {
		query += ` AND expires_at > ?`
		args = append(args, r.now().Unix())
	}

	var (
		payload      []byte
		source       string
		cachedPeriod string
		version      int
	)
	err := r.db.QueryRow(query, args...).Scan(&payload, &source, &cachedPeriod, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price history for %s: %w", symbol, err)
	}

	// Rows written under older codec semantics read as misses
	if version != priceHistoryCodecVersion {
		return nil, nil
	}
	if !domain.Period(cachedPeriod).Covers(period) {
		return nil, nil
	}

	bars, err := decodeBars(payload)
	if err != nil {
		return nil, fmt.Errorf("cached price history for %s is corrupt: %w", symbol, err)
	}

	return &domain.PriceHistory{
		Symbol: symbol,
		Period: domain.Period(cachedPeriod),
		Source: source,
		Bars:   bars,
	}, nil
}

// StoreFundamentals upserts a fundamentals snapshot for its symbol with the
// multi-day TTL.
func (r *Repository) StoreFundamentals(f *domain.Fundamentals) error {
	if f == nil || f.Symbol == "" {
		return fmt.Errorf("fundamentals require a symbol")
	}

	payload, err := encodeFundamentals(f)
	if err != nil {
		return err
	}

	now := r.now()
	expiresAt := now.Add(r.fundamentalsTTL)

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO fundamentals
		 (symbol, payload, source, schema_version, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Symbol, string(payload), f.Source, fundamentalsCodecVersion, now.Unix(), expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store fundamentals for %s: %w", f.Symbol, err)
	}
	return nil
}

// FreshFundamentals returns the cached snapshot for symbol if it is
// unexpired and its codec version matches. Returns nil, nil on a miss.
func (r *Repository) FreshFundamentals(symbol string) (*domain.Fundamentals, error) {
	return r.readFundamentals(symbol, true)
}

// StaleFundamentals returns the cached snapshot regardless of expiry.
// Returns nil, nil when the symbol was never cached.
func (r *Repository) StaleFundamentals(symbol string) (*domain.Fundamentals, error) {
	return r.readFundamentals(symbol, false)
}

func (r *Repository) readFundamentals(symbol string, freshOnly bool) (*domain.Fundamentals, error) {
	query := `SELECT payload, schema_version FROM fundamentals WHERE symbol = ?`
	args := []interface{}{symbol}
	if freshOnly {
		query += ` AND expires_at > ?`
		args = append(args, r.now().Unix())
	}

	var (
		payload string
		version int
	)
	err := r.db.QueryRow(query, args...).Scan(&payload, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fundamentals for %s: %w", symbol, err)
	}

	// A normalization change bumps the codec version; old rows must not be
	// served under new semantics
	if version != fundamentalsCodecVersion {
		return nil, nil
	}

	return decodeFundamentals([]byte(payload))
}

// Delete removes a specific entry.
func (r *Repository) Delete(table, symbol string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE symbol = ?", table)
	if _, err := r.db.Exec(query, symbol); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// DeleteExpiredBefore removes rows whose expiry predates the cutoff.
// Rows expired more recently stay readable as stale fallbacks.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpiredBefore(table string, cutoff time.Time) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)
	result, err := r.db.Exec(query, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}
	return deleted, nil
}

// DeleteAllExpiredBefore applies DeleteExpiredBefore to every cache table.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpiredBefore(cutoff time.Time) (map[string]int64, error) {
	results := make(map[string]int64)

	for _, table := range AllTables {
		deleted, err := r.DeleteExpiredBefore(table, cutoff)
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}
	return results, nil
}

// EntryCounts returns the number of rows per cache table, for diagnostics.
func (r *Repository) EntryCounts() (map[string]int64, error) {
	counts := make(map[string]int64, len(AllTables))

	for _, table := range AllTables {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		var count int64
		if err := r.db.QueryRow(query).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}
