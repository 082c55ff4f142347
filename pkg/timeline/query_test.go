package timeline

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
)

func TestBuildListQueryAddsFiltersInOrder(t *testing.T) {
	query, args := buildListQuery(Query{TenantID: "tenant-a", Limit: 10, Offset: 5})
	require.Contains(t, query, "tenant_id = $1")
	require.Contains(t, query, "ORDER BY timestamp DESC")
	require.Contains(t, query, "LIMIT $2")
	require.Contains(t, query, "OFFSET $3")
	require.Equal(t, []any{"tenant-a", 10, 5}, args)
}

func TestRebindRewritesPlaceholdersForSQLite(t *testing.T) {
	rebound := rebind("SELECT * FROM t WHERE a = $1 AND b = $2", DialectSQLite)
	require.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", rebound)

	unchanged := rebind("SELECT * FROM t WHERE a = $1", DialectPostgres)
	require.Equal(t, "SELECT * FROM t WHERE a = $1", unchanged)
}

func TestGetMapsNoRowsToErrNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres)

	mock.ExpectQuery("SELECT id, created_at, span_json FROM timeline_spans WHERE id = \\$1").
		WillReturnError(sql.ErrNoRows)

	_, err = store.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMapsUniqueViolationToErrDuplicateID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres)

	mock.ExpectExec("INSERT INTO timeline_spans").
		WillReturnError(&pqLikeError{})

	_, err = store.Append(context.Background(), span.New("node-1", "demo"))
	require.ErrorIs(t, err, ErrDuplicateID)
	require.NoError(t, mock.ExpectationsWereMet())
}

type pqLikeError struct{}

func (e *pqLikeError) Error() string { return "pq: duplicate key value violates unique constraint" }
