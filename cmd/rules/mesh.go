package main

import (
	"encoding/json"
	"log/slog"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/rules"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
)

// ruleEvaluationDispatch answers a RuleEvaluationRequest received on the
// service mesh by evaluating the carried span against the tenant's active
// rule set and replying with a RuleExecutionResult on the same connection,
// the mesh-server counterpart of handleEvaluate over REST.
func ruleEvaluationDispatch(store *rules.Store, logger *slog.Logger) mesh.Dispatch {
	return func(conn *mesh.ServerConn, msg mesh.ServiceMessage) error {
		if msg.Type != mesh.RuleEvaluationRequest {
			return nil
		}

		var s span.Span
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			logger.Warn("mesh rule evaluation request carried an unparsable span", "error", err)
			return err
		}

		engine := rules.NewEngine(store.Active(msg.TenantID))
		outcome, err := engine.Apply(&s)
		if err != nil {
			return err
		}

		output, err := json.Marshal(outcome)
		if err != nil {
			return err
		}
		return conn.Send(mesh.ServiceMessage{
			Type:      mesh.RuleExecutionResult,
			RequestID: msg.RequestID,
			TenantID:  msg.TenantID,
			Payload:   output,
		})
	}
}
