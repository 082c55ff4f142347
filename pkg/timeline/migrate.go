package timeline

import (
	"context"
	"database/sql"
	"fmt"
)

// postgresSchema mirrors §3's data model: one row per span, with the
// frequently-filtered fields promoted to columns and the full span kept in
// span_json for lossless round-tripping.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS timeline_spans (
	id                   TEXT PRIMARY KEY,
	created_at           TIMESTAMPTZ NOT NULL,
	timestamp            TIMESTAMPTZ NOT NULL,
	logline_id           TEXT NOT NULL,
	author               TEXT NOT NULL,
	title                TEXT NOT NULL,
	status               TEXT NOT NULL,
	contract_id          TEXT,
	workflow_id          TEXT,
	flow_id              TEXT,
	caused_by            TEXT,
	signature            TEXT,
	verification_status  TEXT,
	tenant_id            TEXT,
	organization_id      TEXT,
	user_id              TEXT,
	span_type            TEXT,
	visibility           TEXT,
	processed            BOOLEAN NOT NULL DEFAULT FALSE,
	span_json            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_timeline_spans_tenant ON timeline_spans (tenant_id);
CREATE INDEX IF NOT EXISTS idx_timeline_spans_logline ON timeline_spans (logline_id);
CREATE INDEX IF NOT EXISTS idx_timeline_spans_created_at ON timeline_spans (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_timeline_spans_timestamp ON timeline_spans (timestamp DESC);
`

// Migrate applies the timeline schema. Safe to call on every startup; every
// statement is idempotent (CREATE ... IF NOT EXISTS).
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("timeline: apply schema: %w", err)
	}
	return nil
}
