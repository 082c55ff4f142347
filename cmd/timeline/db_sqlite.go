//go:build sqlite

package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/timeline"
)

// openStore opens the CGO-free sqlite dev/test backend. Built with
// -tags sqlite; DATABASE_URL is a sqlite DSN (a file path, or ":memory:").
func openStore(ctx context.Context, databaseURL string) (*timeline.Store, func() error, error) {
	db, err := sql.Open("sqlite", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := timeline.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}
	return timeline.New(db, timeline.DialectSQLite), db.Close, nil
}
