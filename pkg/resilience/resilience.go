// Package resilience implements the cross-cutting failure-handling layer
// every gateway-proxied call passes through: per-service circuit breaking,
// capped exponential backoff, and a bounded dead-letter ring.
package resilience

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes the resilience layer. Mirrors the gateway's env-derived
// Config struct (see pkg/config).
type Config struct {
	CircuitBreakerThreshold uint32
	CircuitBreakerReset     time.Duration
	RetryBackoff            time.Duration
	RetryAttempts           uint32
	DeadLetterCapacity      int
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		CircuitBreakerThreshold: 5,
		CircuitBreakerReset:     30 * time.Second,
		RetryBackoff:            200 * time.Millisecond,
		RetryAttempts:           3,
		DeadLetterCapacity:      100,
	}
}

// maxBackoff caps backoff_for_attempt regardless of configuration.
const maxBackoff = 5 * time.Minute

// circuitOpenError is returned by BeforeRequest while a service's breaker is open.
type circuitOpenError struct{ service string }

func (e *circuitOpenError) Error() string { return "resilience: circuit open for " + e.service }

// IsCircuitOpen reports whether err is (or wraps) a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	var open *circuitOpenError
	return errors.As(err, &open)
}

type circuitState struct {
	failures  uint32
	openUntil *time.Time
}

// DeadLetterRecord is one failed call retained for operator inspection.
type DeadLetterRecord struct {
	ID          uuid.UUID `json:"id"`
	Service     string    `json:"service"`
	Target      string    `json:"target"`
	Error       string    `json:"error"`
	OccurredAt  time.Time `json:"occurred_at"`
	PayloadSize int       `json:"payload_size"`
}

// State is the resilience layer's shared, lockable state: one circuit per
// service plus a bounded dead-letter ring.
type State struct {
	config Config
	logger *slog.Logger

	mu          sync.Mutex
	circuits    map[string]*circuitState
	deadLetters []DeadLetterRecord
}

// New constructs a resilience State. A nil logger falls back to slog.Default().
func New(config Config, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{config: config, logger: logger, circuits: make(map[string]*circuitState)}
}

// Config returns the resilience layer's tuning parameters.
func (s *State) Config() Config { return s.config }

// BeforeRequest checks service's circuit before a call is attempted. An open
// circuit rejects immediately; the first call after the reset window passes
// through half-open, which resets the failure counter and clears open_until,
// so the circuit reopens only once the threshold of consecutive failures is
// reached again.
func (s *State) BeforeRequest(service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.circuitFor(service)
	if entry.openUntil != nil {
		if time.Now().Before(*entry.openUntil) {
			s.logger.Warn("circuit breaker open", "service", service)
			return &circuitOpenError{service: service}
		}
		entry.openUntil = nil
		entry.failures = 0
		s.logger.Info("circuit half-open", "service", service)
	}
	return nil
}

// RecordSuccess resets service's failure counter and closes its circuit.
func (s *State) RecordSuccess(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.circuits[service]; ok {
		if entry.failures > 0 {
			s.logger.Debug("resetting failure counter", "service", service, "failures", entry.failures)
		}
		entry.failures = 0
		entry.openUntil = nil
	}
}

// RecordFailure increments service's failure counter, opening the circuit
// once the threshold is reached, and optionally files a dead-letter record.
func (s *State) RecordFailure(service, target, errMsg string, payloadSize int, storeDeadLetter bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.circuitFor(service)
	entry.failures++

	if entry.failures >= s.config.CircuitBreakerThreshold {
		until := time.Now().Add(s.config.CircuitBreakerReset)
		entry.openUntil = &until
		s.logger.Warn("circuit breaker opened after consecutive failures", "service", service, "failures", entry.failures)
	}

	if storeDeadLetter {
		record := DeadLetterRecord{
			ID:          uuid.New(),
			Service:     service,
			Target:      target,
			Error:       errMsg,
			OccurredAt:  time.Now().UTC(),
			PayloadSize: payloadSize,
		}
		s.deadLetters = append([]DeadLetterRecord{record}, s.deadLetters...)
		if len(s.deadLetters) > s.config.DeadLetterCapacity {
			s.deadLetters = s.deadLetters[:s.config.DeadLetterCapacity]
		}
	}
}

func (s *State) circuitFor(service string) *circuitState {
	entry, ok := s.circuits[service]
	if !ok {
		entry = &circuitState{}
		s.circuits[service] = entry
	}
	return entry
}

// BackoffForAttempt returns the exponential backoff duration for attempt
// (0-indexed), capped at both the configured exponent ceiling (2^8) and the
// absolute 5-minute wall cap.
func (s *State) BackoffForAttempt(attempt uint32) time.Duration {
	exponent := attempt
	if exponent > 8 {
		exponent = 8
	}
	multiplier := float64(uint64(1) << exponent)
	delay := time.Duration(float64(s.config.RetryBackoff) * multiplier)
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// OpenCircuits lists services currently in the open state.
func (s *State) OpenCircuits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var open []string
	for service, state := range s.circuits {
		if state.openUntil != nil && now.Before(*state.openUntil) {
			open = append(open, service)
		}
	}
	return open
}

// DeadLetterCount reports the number of retained dead-letter records.
func (s *State) DeadLetterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deadLetters)
}

// DeadLetters returns a snapshot of the retained dead-letter records,
// most-recent first.
func (s *State) DeadLetters() []DeadLetterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetterRecord, len(s.deadLetters))
	copy(out, s.deadLetters)
	return out
}

type deadLetterResponse struct {
	DeadLetters []DeadLetterRecord `json:"dead_letters"`
}

// Handler returns the read-only `/_system/deadletters` HTTP handler.
func (s *State) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/_system/deadletters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(deadLetterResponse{DeadLetters: s.DeadLetters()})
	})
	return mux
}
