package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Schema creates the history table. One row per recorded value.
const Schema = `
CREATE TABLE IF NOT EXISTS restake_history (
	id           BIGSERIAL PRIMARY KEY,
	kind         TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	metric       TEXT NOT NULL,
	value        DOUBLE PRECISION NOT NULL,
	data_quality TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS restake_history_metric_ts ON restake_history (kind, metric, recorded_at);`

const insertRow = `
	INSERT INTO restake_history (kind, subject, metric, value, data_quality, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// PostgresSink appends records to the restake_history table
type PostgresSink struct {
	db      *sqlx.DB
	timeout time.Duration
}

// OpenPostgres connects to dsn and ensures the schema exists
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect history database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	sink := NewPostgresSink(db, 10*time.Second)
	if err := sink.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSink wraps an open database
func NewPostgresSink(db *sqlx.DB, timeout time.Duration) *PostgresSink {
	return &PostgresSink{db: db, timeout: timeout}
}

// EnsureSchema creates the history table if needed
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Write inserts every value of every record in one transaction
func (s *PostgresSink) Write(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertRow)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		for _, key := range r.Keys() {
			if _, err := stmt.ExecContext(ctx, r.Kind, r.Subject, key, r.Values[key], r.DataQuality, r.RecordedAt); err != nil {
				return fmt.Errorf("failed to insert %s/%s: %w", r.Kind, key, err)
			}
		}
	}

	return tx.Commit()
}

// Close closes the database
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
