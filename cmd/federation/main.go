// Command federation runs the LogLine federation service: peer registry,
// trust-level derivation and periodic pull-sync against trusted peers,
// exposed over REST per spec §4.8/§6.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/cmdutil"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/federation"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/timeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := cmdutil.NewLogger("logline-federation")
	cfg := config.ServiceFromEnv("federation", "0.0.0.0:8084")

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("open timeline database", "error", err)
		return 1
	}
	defer db.Close()
	if err := timeline.Migrate(ctx, db); err != nil {
		logger.Error("migrate timeline schema", "error", err)
		return 1
	}
	store := timeline.New(db, timeline.DialectPostgres)

	registryPath := os.Getenv("FEDERATION_PEERS_PATH")
	var registry *federation.Registry
	if registryPath != "" {
		registry, err = federation.LoadRegistry(registryPath)
		if err != nil {
			logger.Error("load peer registry", "error", err, "path", registryPath)
			return 1
		}
	} else {
		registry = federation.NewRegistry()
	}

	trustDir := os.Getenv("FEDERATION_TRUST_DIR")
	if trustDir == "" {
		trustDir = "./trust"
	}
	trust, err := federation.NewTrustStore(trustDir)
	if err != nil {
		logger.Error("open trust store", "error", err)
		return 1
	}

	sync := federation.NewSyncManager(store, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go periodicSync(runCtx, sync, registry, logger)

	identity := mesh.NewServiceIdentity("logline-federation")
	meshServer := mesh.NewServer(identity, mesh.LoggingDispatch(logger), logger)

	api := federation.NewHTTPAPI(store, registry, trust, sync, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws/service", meshServer)
	mux.Handle("/", api.Mux())

	return cmdutil.ServeUntilSignal(cfg.BindAddress, mux, logger)
}

// periodicSync pulls trusted peer timelines on a fixed interval until ctx
// is cancelled, logging (but not failing the service on) a bad round.
func periodicSync(ctx context.Context, sync *federation.SyncManager, registry *federation.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := sync.SyncWithPeers(ctx, registry)
			if err != nil {
				logger.Error("federation sync round failed", "error", err)
				continue
			}
			logger.Info("federation sync round complete",
				"successful_peers", report.SuccessfulPeers,
				"failed_peers", report.FailedPeers,
				"spans_received", report.TotalSpansReceived,
			)
			if err := registry.Save(); err != nil {
				logger.Error("save peer registry", "error", err)
			}
		}
	}
}
