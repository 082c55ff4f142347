package span

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/identity"
)

func TestHashDeterministic(t *testing.T) {
	s := New("alice", "demo")
	h1, err := s.Hash()
	require.NoError(t, err)

	clone := *s
	h2, err := clone.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashRoundTripsThroughSerialisation(t *testing.T) {
	s := New("alice", "demo")
	h1, err := s.Hash()
	require.NoError(t, err)

	raw, err := s.CanonicalBytesForSigning()
	require.NoError(t, err)

	var decoded Span
	require.NoError(t, json.Unmarshal(raw, &decoded))
	h2, err := decoded.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestSignatureRoundTrip(t *testing.T) {
	kp, err := identity.Generate("alice-node", "alice", "", false)
	require.NoError(t, err)

	s := New(kp.UUID.String(), "demo span")
	payload, err := s.CanonicalBytesForSigning()
	require.NoError(t, err)

	sig := identity.Sign(kp, payload)
	ok, err := identity.Verify(kp.Identity, payload, sig)
	require.NoError(t, err)
	require.True(t, ok)

	// Tamper with the span after signing: the canonical bytes change, so
	// verification against the original signature must fail.
	s.Title = "tampered"
	tamperedPayload, err := s.CanonicalBytesForSigning()
	require.NoError(t, err)
	ok, err = identity.Verify(kp.Identity, tamperedPayload, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddTagIsIdempotentAndSorted(t *testing.T) {
	s := New("alice", "demo")
	s.AddTag("b")
	s.AddTag("a")
	s.AddTag("b")
	require.Equal(t, []string{"a", "b"}, s.Tags)
}

func TestAddMetadataInsertsAndReplaces(t *testing.T) {
	s := New("alice", "demo")
	require.NoError(t, s.AddMetadata("k", "v1"))
	require.NoError(t, s.AddMetadata("k", "v2"))
	require.JSONEq(t, `{"k":"v2"}`, string(s.Metadata))
}
