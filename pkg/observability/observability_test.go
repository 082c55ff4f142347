package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsNoOpSafe(t *testing.T) {
	cfg := DefaultConfig("timeline")
	require.False(t, cfg.Enabled)

	p, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, done := p.TrackOperation(context.Background(), "timeline.append")
	p.RecordRequest(ctx)
	p.RecordError(ctx, errBoom)
	done(errBoom)

	require.NoError(t, p.Shutdown(context.Background()))
}

var errBoom = &testErr{"boom"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
