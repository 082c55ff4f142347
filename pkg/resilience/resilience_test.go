package resilience

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		CircuitBreakerThreshold: 3,
		CircuitBreakerReset:     50 * time.Millisecond,
		RetryBackoff:            10 * time.Millisecond,
		RetryAttempts:           3,
		DeadLetterCapacity:      2,
	}
}

func TestBeforeRequestAllowsUntilThreshold(t *testing.T) {
	state := New(testConfig(), nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, state.BeforeRequest("svc"))
		state.RecordFailure("svc", "http://svc", "boom", 10, false)
	}
	require.Empty(t, state.OpenCircuits())

	state.RecordFailure("svc", "http://svc", "boom", 10, false)
	require.Contains(t, state.OpenCircuits(), "svc")

	err := state.BeforeRequest("svc")
	require.Error(t, err)
	require.True(t, IsCircuitOpen(err))
}

func TestCircuitGoesHalfOpenAfterReset(t *testing.T) {
	state := New(testConfig(), nil)

	for i := 0; i < 3; i++ {
		state.RecordFailure("svc", "http://svc", "boom", 1, false)
	}
	require.Error(t, state.BeforeRequest("svc"))

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, state.BeforeRequest("svc"), "half-open should admit one trial request")
	require.Empty(t, state.OpenCircuits())
}

func TestRecordSuccessResetsFailureCounter(t *testing.T) {
	state := New(testConfig(), nil)

	state.RecordFailure("svc", "http://svc", "boom", 1, false)
	state.RecordFailure("svc", "http://svc", "boom", 1, false)
	state.RecordSuccess("svc")

	state.RecordFailure("svc", "http://svc", "boom", 1, false)
	require.Empty(t, state.OpenCircuits(), "counter should have been reset by RecordSuccess")
}

func TestBackoffForAttemptDoublesAndCaps(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 1 * time.Second
	state := New(cfg, nil)

	require.Equal(t, 1*time.Second, state.BackoffForAttempt(0))
	require.Equal(t, 2*time.Second, state.BackoffForAttempt(1))
	require.Equal(t, 4*time.Second, state.BackoffForAttempt(2))

	// 2^8 * 1s = 256s, still under the 5-minute (300s) absolute cap, so it
	// must not be truncated early; the exponent clamps at 8, so no later
	// attempt grows past 256s either.
	require.Equal(t, 256*time.Second, state.BackoffForAttempt(8))
	require.Equal(t, 256*time.Second, state.BackoffForAttempt(20), "exponent clamps at 8 regardless of attempt")

	cfg.RetryBackoff = 10 * time.Second
	capped := New(cfg, nil)
	require.Equal(t, maxBackoff, capped.BackoffForAttempt(8), "absolute 5-minute ceiling wins over the exponential value")
}

func TestRecordFailureStoresDeadLetterNewestFirstAndTruncates(t *testing.T) {
	state := New(testConfig(), nil)

	state.RecordFailure("svc-a", "http://a", "first", 1, true)
	state.RecordFailure("svc-b", "http://b", "second", 2, true)
	state.RecordFailure("svc-c", "http://c", "third", 3, true)

	require.Equal(t, 2, state.DeadLetterCount(), "capacity is 2")
	letters := state.DeadLetters()
	require.Len(t, letters, 2)
	require.Equal(t, "third", letters[0].Error, "newest dead letter comes first")
	require.Equal(t, "second", letters[1].Error)
}

func TestRecordFailureWithoutDeadLetterFlagSkipsStorage(t *testing.T) {
	state := New(testConfig(), nil)
	state.RecordFailure("svc", "http://svc", "boom", 1, false)
	require.Equal(t, 0, state.DeadLetterCount())
}

func TestDeadLettersHandlerServesJSON(t *testing.T) {
	state := New(testConfig(), nil)
	state.RecordFailure("svc", "http://svc", "boom", 7, true)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/_system/deadletters", nil)
	state.Handler().ServeHTTP(recorder, req)

	require.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	require.Contains(t, recorder.Body.String(), `"service":"svc"`)
	require.Contains(t, recorder.Body.String(), `"payload_size":7`)
}
