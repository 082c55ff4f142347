// Command timeline runs the LogLine timeline service: the append-only,
// tenant-isolated span store exposed over REST per spec §4.2/§6.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/cmdutil"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/timeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := cmdutil.NewLogger("logline-timeline")
	cfg := config.ServiceFromEnv("timeline", "0.0.0.0:8082")

	ctx := context.Background()
	store, closeDB, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("open timeline store", "error", err)
		return 1
	}
	defer closeDB()

	if schemasDir := os.Getenv("TIMELINE_SCHEMAS_DIR"); schemasDir != "" {
		schemas := timeline.NewSchemaRegistry()
		if err := timeline.LoadSchemas(schemas, schemasDir); err != nil {
			logger.Error("load payload schemas", "error", err, "dir", schemasDir)
			return 1
		}
		store.SetSchemaRegistry(schemas)
		logger.Info("loaded payload schemas", "dir", schemasDir)
	}

	identity := mesh.NewServiceIdentity("logline-timeline")
	meshServer := mesh.NewServer(identity, mesh.LoggingDispatch(logger), logger)

	api := timeline.NewHTTPAPI(store, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws/service", meshServer)
	mux.Handle("/", api.Mux())

	return cmdutil.ServeUntilSignal(cfg.BindAddress, mux, logger)
}
