package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the DDL for the certification tables. Kept as IF NOT EXISTS
// statements so Migrate can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS requests (
		request_id       TEXT PRIMARY KEY,
		proveedor_rut    TEXT NOT NULL,
		proveedor_nombre TEXT,
		monto_contrato   NUMERIC,
		objeto_contrato  TEXT,
		status           TEXT NOT NULL DEFAULT 'processing',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_executions (
		request_id           TEXT PRIMARY KEY REFERENCES requests(request_id),
		status               TEXT NOT NULL DEFAULT 'processing',
		ingest_timestamp     TIMESTAMPTZ,
		hash_ingest          TEXT,
		risk_timestamp       TIMESTAMPTZ,
		riesgo               TEXT,
		hash_riesgo          TEXT,
		compliance_timestamp TIMESTAMPTZ,
		cumplimiento         BOOLEAN,
		hash_compliance      TEXT,
		timestamp_final      TIMESTAMPTZ,
		hash_final           TEXT,
		hitl_required        BOOLEAN NOT NULL DEFAULT false,
		hitl_reason          TEXT,
		hitl_decision        TEXT,
		hitl_reviewer        TEXT,
		hitl_reviewed_at     TIMESTAMPTZ,
		hitl_notes           TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS certificates (
		certificado_id TEXT PRIMARY KEY,
		request_id     TEXT NOT NULL UNIQUE REFERENCES requests(request_id),
		hash_final     TEXT NOT NULL,
		firma_digital  TEXT,
		issued_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         BIGSERIAL PRIMARY KEY,
		request_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		actor      TEXT,
		details    JSONB,
		timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_request ON audit_log (request_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_hitl_pending ON workflow_executions (hitl_required) WHERE hitl_decision IS NULL`,
}

// Migrate creates the certification tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
