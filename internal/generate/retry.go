package generate

import (
	"time"

	"github.com/blueberrycongee/tutormux/pkg/errors"
)

// retryPhase is the explicit state of the retry machine. Transitions are
// driven by attempt count and failure classification only, independent of
// any concurrency primitive.
type retryPhase int

const (
	phaseAttempting retryPhase = iota
	phaseBackoff
	phaseSucceeded
	phaseExhausted
)

// retryState tracks one orchestration call's attempt budget. It is
// ephemeral and never persisted.
type retryState struct {
	attempt     int
	maxAttempts int
	base        time.Duration
	phase       retryPhase
	lastErr     error
}

func newRetryState(maxAttempts int, base time.Duration) *retryState {
	return &retryState{
		maxAttempts: maxAttempts,
		base:        base,
		phase:       phaseAttempting,
	}
}

// begin marks the start of the next attempt and returns its 1-based number.
func (s *retryState) begin() int {
	s.attempt++
	s.phase = phaseAttempting
	return s.attempt
}

// observe transitions the machine on an attempt outcome. A nil error
// succeeds; a retryable failure with budget left moves to backoff; anything
// else exhausts the budget.
func (s *retryState) observe(err error) retryPhase {
	if err == nil {
		s.phase = phaseSucceeded
		return s.phase
	}

	s.lastErr = err
	if s.attempt >= s.maxAttempts || !errors.IsRetryable(err) {
		s.phase = phaseExhausted
		return s.phase
	}

	s.phase = phaseBackoff
	return s.phase
}

// delay returns the backoff before the next attempt: base x 1, 2, 4, ...
// doubling per completed attempt.
func (s *retryState) delay() time.Duration {
	return s.base * time.Duration(1<<(s.attempt-1))
}
