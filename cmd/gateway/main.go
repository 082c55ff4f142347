// Command gateway runs the LogLine gateway: the client-facing REST/WS
// front door that authenticates, rate-limits, proxies to every backend
// service, and bridges the service mesh out to connected browser/CLI
// clients, per spec §4.7/§6.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/cmdutil"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/gateway"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/resilience"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := cmdutil.NewLogger("logline-gateway")

	cfg, err := config.GatewayFromEnv()
	if err != nil {
		logger.Error("load gateway config", "error", err)
		return 1
	}

	identity := mesh.NewServiceIdentity("logline-gateway",
		string(mesh.SpanCreated), string(mesh.RuleExecutionResult))

	var peers []mesh.Peer
	for _, target := range cfg.Services() {
		if target.WSURL == "" {
			continue
		}
		peers = append(peers, mesh.Peer{Name: target.ServiceName, URL: target.WSURL})
	}

	res := resilience.New(resilience.Config{
		CircuitBreakerThreshold: cfg.Resilience.CircuitBreakerThreshold,
		CircuitBreakerReset:     cfg.Resilience.CircuitBreakerReset,
		RetryBackoff:            cfg.Resilience.RetryBackoff,
		RetryAttempts:           cfg.Resilience.RetryAttempts,
		DeadLetterCapacity:      cfg.Resilience.DeadLetterCapacity,
	}, logger)

	handler := &gatewayMeshHandler{identity: identity, logger: logger}
	client := mesh.New(identity, peers, handler, res, logger)

	server := gateway.NewServer(cfg, client.Handle(), logger)
	handler.registry = server.Registry

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Spawn(ctx)

	return cmdutil.ServeUntilSignal(cfg.BindAddress, server, logger)
}

// gatewayMeshHandler bridges mesh-originated messages out to every
// connected browser/CLI client via the gateway's own client registry, the
// mirror image of WS.readClientMessages forwarding the other way.
type gatewayMeshHandler struct {
	identity mesh.ServiceIdentity
	registry *mesh.ClientRegistry
	logger   *slog.Logger
}

func (h *gatewayMeshHandler) Identity() mesh.ServiceIdentity { return h.identity }

func (h *gatewayMeshHandler) OnEstablished(client *mesh.ClientHandle, peer mesh.Peer) error {
	h.logger.Info("mesh peer connected", "peer", peer.Name)
	return nil
}

func (h *gatewayMeshHandler) OnMessage(client *mesh.ClientHandle, peer mesh.Peer, msg mesh.ServiceMessage) error {
	if h.registry == nil {
		return nil
	}
	data, err := mesh.Encode(msg)
	if err != nil {
		return err
	}
	h.registry.Broadcast(data)
	return nil
}

func (h *gatewayMeshHandler) OnLost(peer mesh.Peer) error {
	h.logger.Warn("mesh peer disconnected", "peer", peer.Name)
	return nil
}

