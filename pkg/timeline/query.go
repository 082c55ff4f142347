package timeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
)

const insertSpanSQL = `
INSERT INTO timeline_spans (
	id, created_at, timestamp, logline_id, author, title, status, contract_id, workflow_id,
	flow_id, caused_by, signature, verification_status, tenant_id,
	organization_id, user_id, span_type, visibility, processed, span_json
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
`

const selectColumns = `id, created_at, span_json`

const selectSpanByIDSQL = `SELECT ` + selectColumns + ` FROM timeline_spans WHERE id = $1`

const bumpReplayCountPostgresSQL = `UPDATE timeline_spans SET span_json = jsonb_set(span_json::jsonb, '{replay_count}', to_jsonb($1::int))::text WHERE id = $2`

// modernc.org/sqlite ships the json1 extension built in; json_set is its
// equivalent of Postgres's jsonb_set for an already-text JSON column.
const bumpReplayCountSQLiteSQL = `UPDATE timeline_spans SET span_json = json_set(span_json, '$.replay_count', ?) WHERE id = ?`

func bumpReplayCountSQL(dialect Dialect) string {
	if dialect == DialectSQLite {
		return bumpReplayCountSQLiteSQL
	}
	return bumpReplayCountPostgresSQL
}

// rebind rewrites Postgres-style "$N" placeholders to sqlite's "?" when
// dialect is DialectSQLite; Postgres queries pass through unchanged.
func rebind(query string, dialect Dialect) string {
	if dialect != DialectSQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			i++
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	return scanInto(row)
}

func scanEntryRows(rows *sql.Rows) (Entry, error) {
	return scanInto(rows)
}

func scanInto(row rowScanner) (Entry, error) {
	var (
		id        string
		createdAt time.Time
		spanJSON  []byte
	)
	if err := row.Scan(&id, &createdAt, &spanJSON); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("timeline: scan row: %w", err)
	}

	var sp span.Span
	if err := json.Unmarshal(spanJSON, &sp); err != nil {
		return Entry{}, fmt.Errorf("timeline: decode stored span %s: %w", id, err)
	}
	return Entry{Span: sp, CreatedAt: createdAt}, nil
}

// buildListQuery constructs a parameterised SELECT honoring every Query
// filter field, ordered by timestamp DESC per §4.2.
func buildListQuery(q Query) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if q.LoglineID != "" {
		add("logline_id = $%d", q.LoglineID)
	}
	if q.ContractID != "" {
		add("contract_id = $%d", q.ContractID)
	}
	if q.WorkflowID != "" {
		add("workflow_id = $%d", q.WorkflowID)
	}
	if q.TenantID != "" {
		add("tenant_id = $%d", q.TenantID)
	}
	if q.OrganizationID != nil {
		add("organization_id = $%d", q.OrganizationID.String())
	}
	if q.UserID != nil {
		add("user_id = $%d", q.UserID.String())
	}
	if q.SpanType != "" {
		add("span_type = $%d", string(q.SpanType))
	}
	if q.Visibility != "" {
		add("visibility = $%d", string(q.Visibility))
	}

	query := "SELECT " + selectColumns + " FROM timeline_spans"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func nullableString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullableUUID(v *uuid.UUID) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullableVerification(v *span.VerificationStatus) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func nullableType(v *span.Type) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func nullableVisibility(v *span.Visibility) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}
