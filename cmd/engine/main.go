// Command engine runs the LogLine execution runtime: the priority-aware,
// tenant-fair task scheduler and worker pool, exposed over REST per
// spec §4.4/§6.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/cmdutil"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/engine"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/resilience"
)

// echoHandler executes a task by returning its own payload as the result.
// It stands in for the tenant-supplied business logic the upstream
// protocol leaves abstract: the scheduler, lifecycle tracking and worker
// pool around it are what this service actually exists to exercise.
func echoHandler(ctx context.Context, task engine.Task) ([]byte, error) {
	if task.Payload == nil {
		return []byte("null"), nil
	}
	return task.Payload, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	logger := cmdutil.NewLogger("logline-engine")
	cfg := config.ServiceFromEnv("engine", "0.0.0.0:8090")

	runtime := engine.NewRuntime(engine.HandlerFunc(echoHandler), cfg.Workers)

	ctx, cancelRuntime := context.WithCancel(context.Background())
	runtimeErrCh := make(chan error, 1)
	go func() {
		runtimeErrCh <- runtime.Start(ctx)
	}()

	identity := mesh.NewServiceIdentity("logline-engine", string(mesh.RuleExecutionResult))
	meshServer := mesh.NewServer(identity, resultLoggingDispatch(logger), logger)

	var peers []mesh.Peer
	if timelineURL := os.Getenv("TIMELINE_URL"); timelineURL != "" {
		peers = append(peers, mesh.Peer{Name: "logline-timeline", URL: config.DeriveWSURL(timelineURL)})
	}
	if rulesURL := os.Getenv("RULES_URL"); rulesURL != "" {
		peers = append(peers, mesh.Peer{Name: "logline-rules", URL: config.DeriveWSURL(rulesURL)})
	}
	meshHandler := &spanToRuleEvaluationHandler{identity: identity, logger: logger}
	meshClient := mesh.New(identity, peers, meshHandler, resilience.New(resilience.DefaultConfig(), logger), logger)
	meshClient.Spawn(ctx)

	api := engine.NewHTTPAPI(runtime.Handle(), logger)
	mux := http.NewServeMux()
	mux.Handle("/ws/service", meshServer)
	mux.Handle("/", api.Mux())

	code := cmdutil.ServeUntilSignal(cfg.BindAddress, mux, logger)

	runtime.Shutdown()
	cancelRuntime()
	<-runtimeErrCh

	return code
}
