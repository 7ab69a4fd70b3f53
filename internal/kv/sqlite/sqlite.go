// Package sqlite is a kv backend over the kv table created by internal/db.
// Writes are announced through the kv_events table, which every process
// sharing the database file polls.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/diamondinv/internal/kv"
)

const (
	DefaultPollInterval = time.Second
	// eventsRetained bounds kv_events; listeners only need the recent tail.
	eventsRetained = 1000
)

type Store struct {
	db           *sql.DB
	pollInterval time.Duration
	logger       *slog.Logger
}

func New(db *sql.DB, pollInterval time.Duration, logger *slog.Logger) *Store {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, pollInterval: pollInterval, logger: logger.With("component", "kv.sqlite")}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv WHERE key = ?
	`, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get value: %w", err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv WHERE key = ?
	`, key)
	if err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

// Close is a no-op; the *sql.DB belongs to the caller.
func (s *Store) Close() error { return nil }

func (s *Store) Publish(ctx context.Context, c kv.Change) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_events (key, source) VALUES (?, ?)
	`, c.Key, c.Source)
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	if seq%eventsRetained == 0 {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM kv_events WHERE seq <= ?
		`, seq-eventsRetained); err != nil {
			s.logger.Warn("failed to prune change events", "error", err)
		}
	}
	return nil
}

// Listen polls kv_events for rows newer than the ones present when it was
// called.
func (s *Store) Listen(ctx context.Context, fn func(kv.Change)) error {
	last, err := s.latestSeq(ctx)
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				changes, next, err := s.changesSince(ctx, last)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("failed to poll change events", "error", err)
					}
					continue
				}
				last = next
				for _, c := range changes {
					fn(c)
				}
			}
		}
	}()
	return nil
}

func (s *Store) latestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM kv_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read latest change: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) changesSince(ctx context.Context, after int64) ([]kv.Change, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, key, source FROM kv_events WHERE seq > ? ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, after, fmt.Errorf("failed to list changes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close rows", "error", err)
		}
	}()

	var changes []kv.Change
	last := after
	for rows.Next() {
		var c kv.Change
		if err := rows.Scan(&last, &c.Key, &c.Source); err != nil {
			return nil, after, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, after, fmt.Errorf("error iterating changes: %w", err)
	}
	return changes, last, nil
}
