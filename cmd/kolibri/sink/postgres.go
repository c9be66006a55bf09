// Package sink provides the Postgres implementation of the downstream
// record store: flat records are upserted by their hash id, payload as
// JSONB.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SanteonNL/kolibri/cmd/kolibri/emitter"
	"github.com/SanteonNL/kolibri/cmd/kolibri/mapping"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const createTableStmt = `
CREATE TABLE IF NOT EXISTS flat_records (
	hash_id       TEXT PRIMARY KEY,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	payload       JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertStmt = `
INSERT INTO flat_records (hash_id, resource_type, resource_id, payload, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (hash_id) DO UPDATE
SET payload = EXCLUDED.payload, updated_at = now()`

// PostgresSink upserts flat records into a single table keyed by hash id,
// which is what makes re-extraction idempotent.
type PostgresSink struct {
	db  *sqlx.DB
	log zerolog.Logger
}

func NewPostgresSink(db *sqlx.DB, log zerolog.Logger) *PostgresSink {
	return &PostgresSink{
		db:  db,
		log: log.With().Str("component", "postgres_sink").Logger(),
	}
}

// EnsureSchema creates the record table when it does not exist yet.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableStmt); err != nil {
		return fmt.Errorf("failed to create flat_records table: %w", err)
	}
	return nil
}

// Write upserts one record. The column values are stored as a JSONB
// payload; schema evolution of a typed table is out of scope here.
func (s *PostgresSink) Write(ctx context.Context, record *mapping.FlatRecord) error {
	payload, err := json.Marshal(record.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal record payload: %w", err)
	}

	hashID, _ := record.Values[emitter.HashColumn].(string)
	if hashID == "" {
		return fmt.Errorf("record %s/%s has no hash id", record.ResourceType, record.ResourceID)
	}

	if _, err := s.db.ExecContext(ctx, upsertStmt,
		hashID, record.ResourceType, record.ResourceID, payload); err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", hashID, err)
	}
	return nil
}
