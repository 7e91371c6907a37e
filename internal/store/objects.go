package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ObjectStore is the durable byte store every persisted component writes to.
//
// Get returns (nil, false, nil) for an absent key. Writes are visible to
// subsequent reads of the same key immediately; they are durable once Sync
// returns.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	// Scan calls fn for every key with the given prefix in ascending key order.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	Sync(ctx context.Context) error
}

var _ ObjectStore = (*Store)(nil)

// Get returns the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM objects WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get object %q: %w", key, err)
	}
	return value, true, nil
}

// Put inserts or replaces the object stored under key. A nil value is
// stored as an empty one.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objects (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// Scan visits every object whose key starts with prefix, ordered by key.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM objects
		WHERE key >= ? AND key < ?
		ORDER BY key COLLATE BINARY ASC
	`, prefix, prefixEnd(prefix))
	if err != nil {
		return fmt.Errorf("scan objects %q: %w", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan object row: %w", err)
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate objects: %w", err)
	}
	return nil
}

// prefixEnd returns the smallest string greater than every string with the
// given prefix, or a string above all printable keys for an empty prefix.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return "\xff\xff\xff\xff"
}
