// Command rules runs the LogLine rule engine service: a versioned,
// per-tenant declarative rule store with span enforcement evaluation
// exposed over REST per spec §4.3/§6.
package main

import (
	"net/http"
	"os"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/cmdutil"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/rules"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := cmdutil.NewLogger("logline-rules")
	cfg := config.ServiceFromEnv("rules", "0.0.0.0:8081")

	store := rules.NewStore()

	if rulesPath := os.Getenv("RULES_PATH"); rulesPath != "" {
		tenantID := cfg.TenantID
		if tenantID == "" {
			tenantID = "default"
		}
		loaded, err := rules.LoadRules(rulesPath)
		if err != nil {
			logger.Error("load initial rules", "error", err, "path", rulesPath)
			return 1
		}
		store.LoadInitial(tenantID, loaded)
		logger.Info("loaded initial rules", "tenant", tenantID, "count", len(loaded))
	}

	identity := mesh.NewServiceIdentity("logline-rules", string(mesh.RuleEvaluationRequest))
	meshServer := mesh.NewServer(identity, ruleEvaluationDispatch(store, logger), logger)

	api := rules.NewHTTPAPI(store, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws/service", meshServer)
	mux.Handle("/", api.Mux())

	return cmdutil.ServeUntilSignal(cfg.BindAddress, mux, logger)
}
