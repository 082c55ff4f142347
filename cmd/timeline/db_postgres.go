//go:build !sqlite

package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/timeline"
)

// openStore opens the production Postgres-backed timeline store and
// applies its schema. The default build of cmd/timeline always targets
// Postgres; pass -tags sqlite for the CGO-free dev/test backend.
func openStore(ctx context.Context, databaseURL string) (*timeline.Store, func() error, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := timeline.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}
	return timeline.New(db, timeline.DialectPostgres), db.Close, nil
}
