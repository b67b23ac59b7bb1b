package anchor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/ironclad/go/internal/sqlutil"
)

const createAnchorTable = `
CREATE TABLE IF NOT EXISTS timer_anchors (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresKV stores values in the timer_anchors table. It works with any
// database/sql Postgres driver (lib/pq or pgx stdlib).
type PostgresKV struct {
	db *sql.DB
}

// NewPostgresKV creates a PostgresKV over an open database handle
func NewPostgresKV(db *sql.DB) *PostgresKV {
	return &PostgresKV{db: db}
}

// EnsureSchema creates the timer_anchors table if it does not exist
func (p *PostgresKV) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createAnchorTable); err != nil {
		return fmt.Errorf("failed to create timer_anchors table: %w", err)
	}
	return nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM timer_anchors WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get anchor %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresKV) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO timer_anchors (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set anchor %s: %w", key, err)
	}
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM timer_anchors WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete anchor %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent inserts value unless key exists and returns the stored value.
func (p *PostgresKV) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	stored, err := sqlutil.RunValue(ctx, p.db, func(tx *sql.Tx) (string, error) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timer_anchors (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING`, key, value); err != nil {
			return "", err
		}

		var stored string
		if err := tx.QueryRowContext(ctx, `SELECT value FROM timer_anchors WHERE key = $1`, key).Scan(&stored); err != nil {
			return "", err
		}
		return stored, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to ensure anchor %s: %w", key, err)
	}
	return stored, nil
}
