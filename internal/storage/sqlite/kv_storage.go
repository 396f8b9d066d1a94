package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/interfaces"
)

// KVStorage implements the KeyValueStorage interface for SQLite
type KVStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex // Prevents SQLITE_BUSY errors on concurrent writes
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a value by key. Expired entries read as missing.
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var (
		value     string
		expiresAt sql.NullInt64
	)
	query := `SELECT value, expires_at FROM kv_pairs WHERE key = ?`

	err := s.db.db.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("key '%s' not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	if expiresAt.Valid && time.Now().Unix() >= expiresAt.Int64 {
		return "", fmt.Errorf("key '%s' not found", key)
	}

	return value, nil
}

// Set inserts or updates a key/value pair without expiry
func (s *KVStorage) Set(ctx context.Context, key, value, description string) error {
	return s.set(ctx, key, value, description, nil)
}

// SetWithTTL inserts or updates a key/value pair that expires after ttl
func (s *KVStorage) SetWithTTL(ctx context.Context, key, value, description string, ttl time.Duration) error {
	expires := time.Now().Add(ttl).Unix()
	return s.set(ctx, key, value, description, &expires)
}

func (s *KVStorage) set(ctx context.Context, key, value, description string, expiresAt *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	query := `
		INSERT INTO kv_pairs (key, value, description, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			description = excluded.description,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	var expires interface{}
	if expiresAt != nil {
		expires = *expiresAt
	}

	_, err := s.db.db.ExecContext(ctx, query, key, value, description, expires, now, now)
	if err != nil {
		return fmt.Errorf("failed to set key/value: %w", err)
	}

	return nil
}

// Delete removes a key/value pair
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx, `DELETE FROM kv_pairs WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("key '%s' not found", key)
	}

	return nil
}

// List returns all unexpired key/value pairs ordered by updated_at DESC
func (s *KVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	query := `
		SELECT key, value, COALESCE(description, ''), created_at, updated_at
		FROM kv_pairs
		WHERE expires_at IS NULL OR expires_at > ?
		ORDER BY updated_at DESC
	`

	rows, err := s.db.db.QueryContext(ctx, query, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}
	defer rows.Close()

	var pairs []interfaces.KeyValuePair
	for rows.Next() {
		var pair interfaces.KeyValuePair
		var createdAt, updatedAt int64

		err := rows.Scan(&pair.Key, &pair.Value, &pair.Description, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		pair.CreatedAt = time.Unix(createdAt, 0)
		pair.UpdatedAt = time.Unix(updatedAt, 0)
		pairs = append(pairs, pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if pairs == nil {
		pairs = []interfaces.KeyValuePair{}
	}

	return pairs, nil
}
