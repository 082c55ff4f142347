package main

import (
	"log/slog"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
)

// resultLoggingDispatch answers the engine's inbound mesh endpoint: the
// only message it expects there is a RuleExecutionResult flowing back on
// the same connection the engine itself dialed out on, so this only logs
// it (correlating it against a live task belongs to a future iteration
// that threads request_id through to a pending task).
func resultLoggingDispatch(logger *slog.Logger) mesh.Dispatch {
	return func(conn *mesh.ServerConn, msg mesh.ServiceMessage) error {
		if msg.Type != mesh.RuleExecutionResult {
			return nil
		}
		logger.Info("received rule execution result", "tenant", msg.TenantID, "request_id", msg.RequestID)
		return nil
	}
}

// spanToRuleEvaluationHandler implements mesh.Handler for the engine's
// outbound client: it forwards every SpanCreated carrying a tenant id that
// it observes from a peer on to the rules service as a
// RuleEvaluationRequest, the inter-service routing rule the engine's mesh
// handler performs. A SpanCreated without a tenant id is ignored.
type spanToRuleEvaluationHandler struct {
	identity mesh.ServiceIdentity
	logger   *slog.Logger
}

func (h *spanToRuleEvaluationHandler) Identity() mesh.ServiceIdentity { return h.identity }

func (h *spanToRuleEvaluationHandler) OnEstablished(client *mesh.ClientHandle, peer mesh.Peer) error {
	h.logger.Info("mesh peer connected", "peer", peer.Name)
	return nil
}

func (h *spanToRuleEvaluationHandler) OnMessage(client *mesh.ClientHandle, peer mesh.Peer, msg mesh.ServiceMessage) error {
	if msg.Type != mesh.SpanCreated || msg.TenantID == "" {
		return nil
	}
	request := mesh.ServiceMessage{
		Type:      mesh.RuleEvaluationRequest,
		RequestID: msg.SpanID,
		TenantID:  msg.TenantID,
		Payload:   msg.Payload,
	}
	return client.SendTo("logline-rules", request)
}

func (h *spanToRuleEvaluationHandler) OnLost(peer mesh.Peer) error {
	h.logger.Warn("mesh peer disconnected", "peer", peer.Name)
	return nil
}
