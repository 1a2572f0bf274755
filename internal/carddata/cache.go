package carddata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const DefaultCacheTTL = 7 * 24 * time.Hour

// DefaultMissTTL bounds how long a not-found lookup is remembered. It is kept
// short so a newly printed card shows up within minutes.
const DefaultMissTTL = 10 * time.Minute

// Cache is a Provider that keeps resolved cards and rulings in a local sqlite
// database and falls through to an upstream Provider on a miss or expiry.
type Cache struct {
	db       *sql.DB
	upstream Provider
	ttl      time.Duration
	missTTL  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

type CacheOptions struct {
	TTL time.Duration
	// MissTTL is how long ErrNotFound is answered locally. Zero means
	// DefaultMissTTL; negative disables miss caching.
	MissTTL time.Duration
	Logger  *slog.Logger
}

func OpenCache(path string, upstream Provider, opts CacheOptions) (*Cache, error) {
	if upstream == nil {
		return nil, errors.New("nil upstream provider")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("missing cache path")
	}
	p := filepath.Clean(strings.TrimSpace(path))
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	missTTL := opts.MissTTL
	if missTTL == 0 {
		missTTL = DefaultMissTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{db: db, upstream: upstream, ttl: ttl, missTTL: missTTL, now: time.Now, log: logger}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) ResolveCard(ctx context.Context, name string) (Card, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := lookupKey(name)
	if key == "" {
		return Card{}, errors.New("missing card name")
	}

	var card Card
	hit, err := c.load(ctx, `SELECT card_json, fetched_at_unix_ms FROM cards WHERE lookup_key = ?`, key, &card)
	if err != nil {
		c.log.Warn("card cache read failed", "name", name, "error", err)
	}
	if hit {
		return card, nil
	}
	if c.recentMiss(ctx, key) {
		return Card{}, ErrNotFound
	}

	card, err = c.upstream.ResolveCard(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.recordMiss(ctx, key)
		}
		return Card{}, err
	}
	// Store under both the query and the canonical name so later exact
	// lookups hit regardless of how the card was first asked for.
	for _, k := range uniqueKeys(key, lookupKey(card.Name)) {
		if err := c.store(ctx, `INSERT OR REPLACE INTO cards(lookup_key, card_json, fetched_at_unix_ms) VALUES(?, ?, ?)`, k, card); err != nil {
			c.log.Warn("card cache write failed", "name", card.Name, "error", err)
		}
	}
	return card, nil
}

func (c *Cache) RulingsFor(ctx context.Context, card Card) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := strings.TrimSpace(card.ID)
	if key == "" {
		key = lookupKey(card.Name)
	}
	if key == "" {
		return c.upstream.RulingsFor(ctx, card)
	}

	var rulings []string
	hit, err := c.load(ctx, `SELECT rulings_json, fetched_at_unix_ms FROM rulings WHERE card_key = ?`, key, &rulings)
	if err != nil {
		c.log.Warn("rulings cache read failed", "card", card.Name, "error", err)
	}
	if hit {
		return rulings, nil
	}

	rulings, err = c.upstream.RulingsFor(ctx, card)
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, `INSERT OR REPLACE INTO rulings(card_key, rulings_json, fetched_at_unix_ms) VALUES(?, ?, ?)`, key, rulings); err != nil {
		c.log.Warn("rulings cache write failed", "card", card.Name, "error", err)
	}
	return rulings, nil
}

func (c *Cache) recentMiss(ctx context.Context, key string) bool {
	if c.missTTL < 0 {
		return false
	}
	var at int64
	err := c.db.QueryRowContext(ctx, `SELECT missed_at_unix_ms FROM misses WHERE lookup_key = ?`, key).Scan(&at)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("miss cache read failed", "key", key, "error", err)
		}
		return false
	}
	return c.now().Sub(time.UnixMilli(at)) <= c.missTTL
}

func (c *Cache) recordMiss(ctx context.Context, key string) {
	if c.missTTL < 0 {
		return
	}
	_, err := c.db.ExecContext(ctx, `INSERT OR REPLACE INTO misses(lookup_key, missed_at_unix_ms) VALUES(?, ?)`, key, c.now().UnixMilli())
	if err != nil {
		c.log.Warn("miss cache write failed", "key", key, "error", err)
	}
}

// Purge removes entries older than their TTL and reports how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	if c == nil || c.db == nil {
		return 0, errors.New("cache not initialized")
	}
	now := c.now()
	missTTL := c.missTTL
	if missTTL < 0 {
		missTTL = 0
	}
	cutoffs := []struct {
		table, column string
		before        int64
	}{
		{"cards", "fetched_at_unix_ms", now.Add(-c.ttl).UnixMilli()},
		{"rulings", "fetched_at_unix_ms", now.Add(-c.ttl).UnixMilli()},
		{"misses", "missed_at_unix_ms", now.Add(-missTTL).UnixMilli()},
	}
	var total int64
	for _, cut := range cutoffs {
		res, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, cut.table, cut.column), cut.before)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (c *Cache) load(ctx context.Context, query string, key string, out any) (bool, error) {
	var payload string
	var fetchedAt int64
	err := c.db.QueryRowContext(ctx, query, key).Scan(&payload, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if c.now().Sub(time.UnixMilli(fetchedAt)) > c.ttl {
		return false, nil
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) store(ctx context.Context, stmt string, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, stmt, key, string(payload), c.now().UnixMilli())
	return err
}

func uniqueKeys(keys ...string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == k {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	// Schema versions:
	// - v1: cards and rulings tables keyed by lookup key
	// - v2: misses table for not-found lookups
	const targetVersion = 2

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if v < 1 {
		if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS cards (
  lookup_key TEXT PRIMARY KEY,
  card_json TEXT NOT NULL,
  fetched_at_unix_ms INTEGER NOT NULL
);
`); err != nil {
			return fmt.Errorf("create cards v1: %w", err)
		}
		if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS rulings (
  card_key TEXT PRIMARY KEY,
  rulings_json TEXT NOT NULL,
  fetched_at_unix_ms INTEGER NOT NULL
);
`); err != nil {
			return fmt.Errorf("create rulings v1: %w", err)
		}
	}
	if v < 2 {
		if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS misses (
  lookup_key TEXT PRIMARY KEY,
  missed_at_unix_ms INTEGER NOT NULL
);
`); err != nil {
			return fmt.Errorf("create misses v2: %w", err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d;", targetVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}
