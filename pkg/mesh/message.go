// Package mesh implements the WebSocket-based service mesh LogLine services
// use to push span/rule events to each other without polling: a typed
// envelope, a reconnecting client, and a router dispatching inbound
// messages to a per-service handler.
package mesh

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType tags the payload carried by a ServiceMessage envelope.
type MessageType string

const (
	// SpanCreated announces a freshly appended span to interested peers
	// (timeline and rules, per the default Router).
	SpanCreated MessageType = "span_created"
	// RuleEvaluationRequest asks the rules service to evaluate a span.
	RuleEvaluationRequest MessageType = "rule_evaluation_request"
	// RuleExecutionResult carries a rule engine's outcome back to the
	// engine runtime that requested it.
	RuleExecutionResult MessageType = "rule_execution_result"
	// ServiceHello is exchanged once per connection during the mesh
	// handshake and never routed further.
	ServiceHello MessageType = "service_hello"
	// ConnectionLost is a synthetic local event, never sent over the
	// wire, raised when a peer's connection drops.
	ConnectionLost MessageType = "connection_lost"
	// HealthCheckPing/Pong keep idle mesh connections alive.
	HealthCheckPing MessageType = "health_check_ping"
	HealthCheckPong MessageType = "health_check_pong"
)

// ServiceMessage is the sum type carried over every mesh connection. Only
// the fields relevant to Type are populated; json.RawMessage keeps the
// envelope agnostic to the payload's concrete shape.
type ServiceMessage struct {
	Type        MessageType     `json:"type"`
	SpanID      *uuid.UUID      `json:"span_id,omitempty"`
	TenantID    string          `json:"tenant_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RequestID   *uuid.UUID      `json:"request_id,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
}

// WebSocketEnvelope is the outer frame written to the socket: an event name
// plus the marshaled ServiceMessage, matching the wire shape every LogLine
// service mesh client speaks.
type WebSocketEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Encode marshals msg into a WebSocketEnvelope ready to write to a
// connection.
func Encode(msg ServiceMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("mesh: marshal service message: %w", err)
	}
	envelope := WebSocketEnvelope{Event: string(msg.Type), Payload: payload}
	return json.Marshal(envelope)
}

// Decode parses a raw frame back into a ServiceMessage.
func Decode(raw []byte) (ServiceMessage, error) {
	var envelope WebSocketEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ServiceMessage{}, fmt.Errorf("mesh: decode envelope: %w", err)
	}
	var msg ServiceMessage
	if err := json.Unmarshal(envelope.Payload, &msg); err != nil {
		return ServiceMessage{}, fmt.Errorf("mesh: decode service message: %w", err)
	}
	return msg, nil
}

// Router maps a ServiceMessage to the peer service names it should be
// forwarded to, mirroring each LogLine service's fixed interest list.
type Router struct{}

// NewRouter constructs the default LogLine mesh routing table.
func NewRouter() Router { return Router{} }

// Targets returns the peer service names msg should be forwarded to.
func (Router) Targets(msg ServiceMessage) []string {
	switch msg.Type {
	case SpanCreated:
		return []string{"logline-timeline", "logline-rules"}
	case RuleEvaluationRequest:
		return []string{"logline-rules"}
	case RuleExecutionResult:
		return []string{"logline-engine"}
	default:
		return nil
	}
}
