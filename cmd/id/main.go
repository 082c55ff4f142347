// Command id runs the LogLine identity service: Ed25519 key pair
// generation, persistence and signature verification exposed over REST
// per spec §4.1/§6.
package main

import (
	"net/http"
	"os"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/cmdutil"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/identity"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := cmdutil.NewLogger("logline-id")
	cfg := config.ServiceFromEnv("id", "0.0.0.0:8083")

	keyDir := os.Getenv("IDENTITY_KEY_DIR")
	if keyDir == "" {
		keyDir = "./keys"
	}

	identityMesh := mesh.NewServiceIdentity("logline-id")
	meshServer := mesh.NewServer(identityMesh, mesh.LoggingDispatch(logger), logger)

	api := identity.NewHTTPAPI(keyDir, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws/service", meshServer)
	mux.Handle("/", api.Mux())

	return cmdutil.ServeUntilSignal(cfg.BindAddress, mux, logger)
}
