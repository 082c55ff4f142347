// Package timeline implements the append-only, tenant-isolated span store:
// append, get, list, search, stats and integrity verification, plus the
// broadcast-on-append fan-out consumed by the service mesh.
package timeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/identity"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
)

var (
	// ErrDuplicateID is returned by Append when a span with the same ID
	// already exists in the store.
	ErrDuplicateID = errors.New("timeline: span id already exists")
	// ErrNotFound is returned by Get when no span with the given id exists.
	ErrNotFound = errors.New("timeline: span not found")
	// ErrCrossTenant is returned when a caller-supplied tenant filter does
	// not match the tenant embedded in the requested span.
	ErrCrossTenant = errors.New("timeline: cross-tenant access denied")
	// ErrValidation is returned by Append when a span's payload fails its
	// tenant's registered schema.
	ErrValidation = errors.New("timeline: payload failed schema validation")
)

// Entry is a span as persisted: the span plus the server-assigned
// created_at ordering timestamp.
type Entry struct {
	Span      span.Span `json:"span"`
	CreatedAt time.Time `json:"created_at"`
}

// Query filters a List call. Zero values mean "no filter" for that field.
type Query struct {
	LoglineID      string
	ContractID     string
	WorkflowID     string
	TenantID       string
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
	SpanType       span.Type
	Visibility     span.Visibility
	Limit          int
	Offset         int
}

// Stats summarises the contents of a tenant's (or the whole store's) timeline.
type Stats struct {
	Total           int            `json:"total"`
	Signed          int            `json:"signed"`
	ContractBearing int            `json:"contract_bearing"`
	ByStatus        map[string]int `json:"by_status"`
	UniqueAuthors   []string       `json:"unique_authors"`
}

// broadcastCapacity bounds the per-subscriber channel so a slow subscriber
// cannot make Append block; it is dropped instead, per §4.2.
const broadcastCapacity = 256

// Dialect selects the placeholder/DDL rewriting a Store applies to the
// queries in query.go/migrate.go.
type Dialect string

const (
	// DialectPostgres is the production backend (lib/pq, $N placeholders).
	DialectPostgres Dialect = "postgres"
	// DialectSQLite is the CGO-free test/dev backend (modernc.org/sqlite,
	// ? placeholders), registered from store_sqlite_test.go.
	DialectSQLite Dialect = "sqlite"
)

// Store is the append-only, tenant-isolated span store. It is safe for
// concurrent use and owns the broadcast fan-out to mesh subscribers.
type Store struct {
	db      *sql.DB
	dialect Dialect
	schemas *SchemaRegistry

	mu          sync.RWMutex
	subscribers map[int]chan Entry
	nextSubID   int
}

// New wraps an already-opened *sql.DB (Postgres via lib/pq, or the sqlite
// test backend — see store_sqlite_test.go) as a timeline Store. The caller
// owns the DB's lifecycle and must have applied the schema in migrate.go.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, subscribers: make(map[int]chan Entry)}
}

// SetSchemaRegistry attaches a payload-validation registry: every span
// appended afterwards has its Data validated against its tenant's
// registered schema, if any (§9, "Dynamic typing of span payload"). Passing
// nil disables validation.
func (s *Store) SetSchemaRegistry(registry *SchemaRegistry) {
	s.schemas = registry
}

// Subscribe registers a broadcast channel for every successfully appended
// entry. Callers must call the returned cancel function to unregister.
func (s *Store) Subscribe() (<-chan Entry, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Entry, broadcastCapacity)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (s *Store) broadcast(entry Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- entry:
		default:
			// Slow subscriber: drop the entry rather than block the
			// writer, and log a warning through the default slog logger.
			slog.Warn("timeline: dropping entry for slow subscriber", "span_id", entry.Span.ID)
		}
	}
}

// Append persists span, assigning created_at, and broadcasts the stored
// entry to subscribers. Duplicate IDs are rejected as ErrDuplicateID.
func (s *Store) Append(ctx context.Context, sp *span.Span) (Entry, error) {
	if s.schemas != nil {
		if err := s.validatePayload(sp); err != nil {
			return Entry{}, err
		}
	}

	createdAt := time.Now().UTC()

	spanJSON, err := json.Marshal(sp)
	if err != nil {
		return Entry{}, fmt.Errorf("timeline: marshal span for storage: %w", err)
	}

	_, err = s.db.ExecContext(ctx, rebind(insertSpanSQL, s.dialect),
		sp.ID.String(), createdAt, sp.Timestamp, sp.LoglineID, sp.Author, sp.Title, string(sp.Status),
		nullableString(sp.ContractID), nullableString(sp.WorkflowID), nullableString(sp.FlowID),
		nullableUUID(sp.CausedBy), nullableString(sp.Signature),
		nullableVerification(sp.VerificationStatus), nullableString(sp.TenantID),
		nullableUUID(sp.OrganizationID), nullableUUID(sp.UserID),
		nullableType(sp.SpanType), nullableVisibility(sp.Visibility),
		sp.Processed, spanJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Entry{}, ErrDuplicateID
		}
		return Entry{}, fmt.Errorf("timeline: append span %s: %w", sp.ID, err)
	}

	entry := Entry{Span: *sp, CreatedAt: createdAt}
	s.broadcast(entry)
	return entry, nil
}

// validatePayload runs sp.Data through the tenant's registered schema, if
// any. A span with no tenant or no payload validates against the registry's
// default (empty-object) view, mirroring the upstream builder's
// unwrap_or_else(Value::Object) fallback.
func (s *Store) validatePayload(sp *span.Span) error {
	tenant := ""
	if sp.TenantID != nil {
		tenant = *sp.TenantID
	}

	payload := any(map[string]any{})
	if len(sp.Data) > 0 {
		if err := json.Unmarshal(sp.Data, &payload); err != nil {
			return fmt.Errorf("timeline: decode payload for schema validation: %w", err)
		}
	}
	if err := s.schemas.Validate(tenant, payload); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	return nil
}

// Get retrieves a single span by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := s.db.QueryRowContext(ctx, rebind(selectSpanByIDSQL, s.dialect), id.String())
	return scanEntry(row)
}

// List returns entries matching query, ordered by timestamp DESC.
func (s *Store) List(ctx context.Context, query Query) ([]Entry, error) {
	sqlQuery, args := buildListQuery(query)
	rows, err := s.db.QueryContext(ctx, rebind(sqlQuery, s.dialect), args...)
	if err != nil {
		return nil, fmt.Errorf("timeline: list spans: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats summarises the timeline, optionally scoped to one tenant.
func (s *Store) Stats(ctx context.Context, tenantID string) (Stats, error) {
	query := Query{TenantID: tenantID, Limit: 0}
	entries, err := s.listAll(ctx, query)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByStatus: make(map[string]int)}
	authors := make(map[string]struct{})
	for _, entry := range entries {
		stats.Total++
		if entry.Span.Signature != nil {
			stats.Signed++
		}
		if entry.Span.ContractID != nil {
			stats.ContractBearing++
		}
		stats.ByStatus[string(entry.Span.Status)]++
		if entry.Span.UserID != nil {
			authors[entry.Span.UserID.String()] = struct{}{}
		}
	}
	for author := range authors {
		stats.UniqueAuthors = append(stats.UniqueAuthors, author)
	}
	sort.Strings(stats.UniqueAuthors)
	return stats, nil
}

// listAll is List without a limit, used internally by Stats/VerifyIntegrity.
func (s *Store) listAll(ctx context.Context, query Query) ([]Entry, error) {
	query.Limit = 0
	query.Offset = 0
	return s.List(ctx, query)
}

// VerifyIntegrity returns true iff every persisted span with a non-null
// signature still verifies against its stored identity's public key.
func (s *Store) VerifyIntegrity(ctx context.Context, identities map[string]identity.Identity) (bool, error) {
	entries, err := s.listAll(ctx, Query{})
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if entry.Span.Signature == nil || entry.Span.UserID == nil {
			continue
		}
		id, ok := identities[entry.Span.UserID.String()]
		if !ok {
			return false, nil
		}
		payload, err := entry.Span.CanonicalBytesForSigning()
		if err != nil {
			return false, fmt.Errorf("timeline: canonicalise span %s for verification: %w", entry.Span.ID, err)
		}
		ok, err = identity.VerifyHex(id, payload, *entry.Span.Signature)
		if err != nil || !ok {
			return false, nil
		}
	}
	return true, nil
}

// RegisterReplay inserts newSpan with replay_from=originalID, bumps the
// original span's replay_count, and returns the stored replay entry.
func (s *Store) RegisterReplay(ctx context.Context, originalID uuid.UUID, newSpan *span.Span) (Entry, error) {
	original, err := s.Get(ctx, originalID)
	if err != nil {
		return Entry{}, fmt.Errorf("timeline: replay source %s: %w", originalID, err)
	}

	replayFrom := originalID
	newSpan.ReplayFrom = &replayFrom
	newSpan.Title = "[replay] " + newSpan.Title

	entry, err := s.Append(ctx, newSpan)
	if err != nil {
		return Entry{}, err
	}

	count := uint32(1)
	if original.Span.ReplayCount != nil {
		count = *original.Span.ReplayCount + 1
	}
	if _, err := s.db.ExecContext(ctx, bumpReplayCountSQL(s.dialect), count, originalID.String()); err != nil {
		return Entry{}, fmt.Errorf("timeline: bump replay_count on %s: %w", originalID, err)
	}
	return entry, nil
}

func isUniqueViolation(err error) bool {
	// lib/pq surfaces unique-violation as *pq.Error with Code "23505"; the
	// sqlite test backend returns a message containing "UNIQUE constraint".
	// Matching on both substrings avoids an import-time dependency on the
	// pq driver's error type from this file.
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}
