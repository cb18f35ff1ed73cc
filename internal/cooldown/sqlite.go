package cooldown

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists cooldown records in a small local SQLite database.
//
// SQLite serializes writers, but the cooldown check is a read-then-write, so
// the store additionally holds a striped in-process lock per (ticker, tier)
// key for the duration of CheckAndSet. Overlapping ticks of the same tier run
// in one process, so this is sufficient to keep the check exclusive.
type SQLiteStore struct {
	db    *sql.DB
	locks [64]sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cooldown store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping cooldown store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS cooldowns (
			ticker            TEXT NOT NULL,
			tier              TEXT NOT NULL,
			last_triggered_at INTEGER NOT NULL,
			last_reasons      TEXT NOT NULL,
			PRIMARY KEY (ticker, tier)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create cooldowns table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) lockFor(ticker, tier string) *sync.Mutex {
	var h uint32
	for _, c := range ticker + "|" + tier {
		h = h*31 + uint32(c)
	}
	return &s.locks[h%uint32(len(s.locks))]
}

func (s *SQLiteStore) GetLast(ctx context.Context, ticker, tier string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_triggered_at, last_reasons FROM cooldowns WHERE ticker = ? AND tier = ?`,
		ticker, tier)

	var unixTS int64
	var reasonsJSON string
	if err := row.Scan(&unixTS, &reasonsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cooldown %s/%s: %w", ticker, tier, err)
	}

	var reasons []string
	_ = json.Unmarshal([]byte(reasonsJSON), &reasons)
	return &Record{
		Ticker:          ticker,
		Tier:            tier,
		LastTriggeredAt: time.Unix(unixTS, 0).UTC(),
		LastReasons:     reasons,
	}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, ticker, tier string, reasons []string, now time.Time) error {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (ticker, tier, last_triggered_at, last_reasons)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ticker, tier) DO UPDATE SET
			last_triggered_at = excluded.last_triggered_at,
			last_reasons      = excluded.last_reasons`,
		ticker, tier, now.Unix(), string(reasonsJSON))
	if err != nil {
		return fmt.Errorf("upsert cooldown %s/%s: %w", ticker, tier, err)
	}
	return nil
}

func (s *SQLiteStore) CheckAndSet(ctx context.Context, ticker, tier string, reasons []string, now time.Time, window time.Duration) (bool, error) {
	mu := s.lockFor(ticker, tier)
	mu.Lock()
	defer mu.Unlock()

	last, err := s.GetLast(ctx, ticker, tier)
	if err != nil {
		return false, err
	}
	if last != nil && now.Sub(last.LastTriggeredAt) < window {
		return false, nil
	}
	if err := s.Upsert(ctx, ticker, tier, reasons, now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) TriggeredSince(ctx context.Context, tier string, since time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, last_triggered_at, last_reasons
		FROM cooldowns
		WHERE tier = ? AND last_triggered_at > ?
		ORDER BY last_triggered_at DESC`,
		tier, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("list recent triggers for %s: %w", tier, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var unixTS int64
		var reasonsJSON string
		if err := rows.Scan(&r.Ticker, &unixTS, &reasonsJSON); err != nil {
			return nil, err
		}
		r.Tier = tier
		r.LastTriggeredAt = time.Unix(unixTS, 0).UTC()
		_ = json.Unmarshal([]byte(reasonsJSON), &r.LastReasons)
		out = append(out, r)
	}
	return out, rows.Err()
}
