package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSignVerify(t *testing.T) {
	kp, err := Generate("alice-node", "Alice", "", false)
	require.NoError(t, err)

	msg := []byte("Hello, LogLine!")
	sig := Sign(kp, msg)

	ok, err := Verify(kp.Identity, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify(kp.Identity, []byte("Wrong message!"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	kp, err := Generate("bob-node", "Bob", "", false)
	require.NoError(t, err)

	sig := Sign(kp, []byte("payload"))
	sig[0] ^= 0xFF

	ok, err := Verify(kp.Identity, []byte("payload"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyRejectsBadSignatureLength(t *testing.T) {
	kp, err := Generate("carol-node", "Carol", "", false)
	require.NoError(t, err)

	_, err = Verify(kp.Identity, []byte("payload"), []byte{1, 2, 3})
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kp, err := Generate("dave-node", "Dave", "tenant-1", false)
	require.NoError(t, err)

	require.NoError(t, Save(kp, dir))

	loaded, err := Load(dir, "Dave")
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey, loaded.PublicKey)
	require.Equal(t, kp.TenantID, loaded.TenantID)

	sig := Sign(loaded, []byte("round trip"))
	ok, err := Verify(kp.Identity, []byte("round trip"), sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLoadDetectsTamperedPublicKey(t *testing.T) {
	dir := t.TempDir()
	kp, err := Generate("erin-node", "Erin", "", false)
	require.NoError(t, err)
	require.NoError(t, Save(kp, dir))

	path := filepath.Join(dir, "Erin.key.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored storedKeyPair
	require.NoError(t, json.Unmarshal(raw, &stored))
	stored.PublicKey = "tampered-" + stored.PublicKey
	tampered, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	_, err = Load(dir, "Erin")
	require.Error(t, err)
}
