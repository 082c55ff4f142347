package mesh

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	spanID := uuid.New()
	msg := ServiceMessage{Type: SpanCreated, SpanID: &spanID, TenantID: "tenant-a"}

	raw, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, SpanCreated, decoded.Type)
	require.Equal(t, "tenant-a", decoded.TenantID)
	require.Equal(t, spanID, *decoded.SpanID)
}

func TestRouterTargetsByMessageType(t *testing.T) {
	router := NewRouter()

	require.ElementsMatch(t, []string{"logline-timeline", "logline-rules"}, router.Targets(ServiceMessage{Type: SpanCreated}))
	require.Equal(t, []string{"logline-rules"}, router.Targets(ServiceMessage{Type: RuleEvaluationRequest}))
	require.Equal(t, []string{"logline-engine"}, router.Targets(ServiceMessage{Type: RuleExecutionResult}))
	require.Nil(t, router.Targets(ServiceMessage{Type: ServiceHello}))
}

func TestClientRegistryBroadcastDropsOnFullChannel(t *testing.T) {
	registry := NewClientRegistry()
	id, ch := registry.Register()
	require.Equal(t, 1, registry.Count())

	registry.Broadcast([]byte("hello"))
	received := <-ch
	require.Equal(t, "hello", string(received))

	// The channel holds 64 payloads; the 65th broadcast is dropped rather
	// than blocking.
	for i := 0; i < 65; i++ {
		registry.Broadcast([]byte("fill"))
	}
	require.Len(t, ch, 64, "broadcast to a full channel must drop instead of blocking")
	for len(ch) > 0 {
		<-ch
	}

	registry.Unregister(id)
	require.Equal(t, 0, registry.Count())
	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unregister")
}
