package federation_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/federation"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/timeline"
)

func openSQLiteStore(t *testing.T) *timeline.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, timeline.Migrate(context.Background(), db))
	return timeline.New(db, timeline.DialectSQLite)
}

func signedSpanLine(t *testing.T, title string) string {
	t.Helper()
	sp := span.New("logline-id://peer-a", title)
	sp.Sign(strings.Repeat("ab", 64))
	raw, err := json.Marshal(sp)
	require.NoError(t, err)
	return string(raw)
}

func TestSyncWithPeersImportsNewSpansAndSkipsDuplicates(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()

	line1 := signedSpanLine(t, "first span")
	line2 := signedSpanLine(t, "second span")
	requestCount := 0

	peerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		require.Equal(t, "/timeline.ndjson", r.URL.Path)
		require.Equal(t, "logline-id://peer-a", r.Header.Get("X-LogLine-ID"))
		_, _ = w.Write([]byte(line1 + "\n" + line2 + "\n"))
	}))
	defer peerServer.Close()

	registry := federation.NewRegistry()
	peer, err := federation.NewPeer("logline-id://peer-a", validPublicKey, "127.0.0.1", federation.TrustTrusted)
	require.NoError(t, err)
	registry.Put(peer)

	manager := federation.NewSyncManager(store, nil, federation.WithPeerTimelineURL(func(*federation.Peer) string {
		return peerServer.URL + "/timeline.ndjson"
	}))

	report, err := manager.SyncWithPeers(ctx, registry)
	require.NoError(t, err)
	require.Equal(t, 1, report.SuccessfulPeers)
	require.Equal(t, uint64(2), report.TotalSpansReceived)

	updated, ok := registry.Get("logline-id://peer-a")
	require.True(t, ok)
	require.Equal(t, federation.PeerOnline, updated.Status)
	require.NotNil(t, updated.LastSync)
	require.Equal(t, uint64(2), updated.SpansReceived)

	entries, err := store.List(ctx, timeline.Query{Limit: 0})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Span.Metadata, &metadata))
	require.Equal(t, "logline-id://peer-a", metadata["federation_source"])
	require.NotEmpty(t, metadata["federation_imported_at"])

	// Second sync round must skip both spans as duplicates.
	report2, err := manager.SyncWithPeers(ctx, registry)
	require.NoError(t, err)
	require.Equal(t, 1, report2.SuccessfulPeers)
	require.Equal(t, uint64(0), report2.TotalSpansReceived)
	require.Equal(t, 2, requestCount)
}

func TestSyncWithPeersMarksUnreachablePeerFailed(t *testing.T) {
	store := openSQLiteStore(t)
	registry := federation.NewRegistry()
	peer, err := federation.NewPeer("logline-id://peer-down", validPublicKey, "127.0.0.1", federation.TrustRoot)
	require.NoError(t, err)
	registry.Put(peer)

	manager := federation.NewSyncManager(store, nil, federation.WithPeerTimelineURL(func(*federation.Peer) string {
		return "http://127.0.0.1:1/timeline.ndjson" // nothing listens on port 1
	}))

	report, err := manager.SyncWithPeers(context.Background(), registry)
	require.NoError(t, err)
	require.Equal(t, 1, report.FailedPeers)

	updated, ok := registry.Get("logline-id://peer-down")
	require.True(t, ok)
	require.Equal(t, federation.PeerError, updated.Status)
	require.NotEmpty(t, updated.StatusReason)
}

func TestSyncWithPeersSkipsMalformedAndUnsignedLines(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()

	unsigned := span.New("logline-id://peer-b", "unsigned span")
	unsignedRaw, err := json.Marshal(unsigned)
	require.NoError(t, err)
	good := signedSpanLine(t, "good span")

	peerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json\n" + string(unsignedRaw) + "\n" + good + "\n"))
	}))
	defer peerServer.Close()

	registry := federation.NewRegistry()
	peer, err := federation.NewPeer("logline-id://peer-b", validPublicKey, "127.0.0.1", federation.TrustRoot)
	require.NoError(t, err)
	registry.Put(peer)

	manager := federation.NewSyncManager(store, nil, federation.WithPeerTimelineURL(func(*federation.Peer) string {
		return peerServer.URL + "/timeline.ndjson"
	}))

	report, err := manager.SyncWithPeers(ctx, registry)
	require.NoError(t, err)
	require.Equal(t, uint64(1), report.TotalSpansReceived, "only the properly signed span imports")

	entries, err := store.List(ctx, timeline.Query{Limit: 0})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
