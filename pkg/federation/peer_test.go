package federation_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/federation"
)

const validPublicKey = "ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34"

func TestNewPeerRejectsMalformedLoglineID(t *testing.T) {
	_, err := federation.NewPeer("not-a-logline-id", validPublicKey, "100.64.0.1", federation.TrustObserver)
	require.Error(t, err)
}

func TestNewPeerRejectsBadPublicKeyLength(t *testing.T) {
	_, err := federation.NewPeer("logline-id://peer-a", "short", "100.64.0.1", federation.TrustObserver)
	require.Error(t, err)
}

func TestNewPeerRejectsInvalidIP(t *testing.T) {
	_, err := federation.NewPeer("logline-id://peer-a", validPublicKey, "not-an-ip", federation.TrustObserver)
	require.Error(t, err)
}

func TestNewPeerSucceedsWithValidFields(t *testing.T) {
	peer, err := federation.NewPeer("logline-id://peer-a", validPublicKey, "100.64.0.1", federation.TrustTrusted)
	require.NoError(t, err)
	require.Equal(t, federation.PeerOffline, peer.Status)
}

func TestRegistryTrustedFiltersByLevel(t *testing.T) {
	registry := federation.NewRegistry()
	trusted, err := federation.NewPeer("logline-id://peer-trusted", validPublicKey, "100.64.0.1", federation.TrustTrusted)
	require.NoError(t, err)
	observer, err := federation.NewPeer("logline-id://peer-observer", validPublicKey, "100.64.0.2", federation.TrustObserver)
	require.NoError(t, err)

	registry.Put(trusted)
	registry.Put(observer)

	names := make([]string, 0, 1)
	for _, p := range registry.Trusted() {
		names = append(names, p.LoglineID)
	}
	require.ElementsMatch(t, []string{"logline-id://peer-trusted"}, names)
}

func TestRegistrySaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "federation.json")
	registry, err := federation.LoadRegistry(path)
	require.NoError(t, err)

	peer, err := federation.NewPeer("logline-id://peer-a", validPublicKey, "100.64.0.1", federation.TrustTrusted)
	require.NoError(t, err)
	registry.Put(peer)
	require.NoError(t, registry.Save())

	reloaded, err := federation.LoadRegistry(path)
	require.NoError(t, err)
	got, ok := reloaded.Get("logline-id://peer-a")
	require.True(t, ok)
	require.Equal(t, federation.TrustTrusted, got.TrustLevel)
}
