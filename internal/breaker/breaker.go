package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/models"
)

// ErrCircuitOpen is returned when the circuit is open and the caller
// supplied no fallback.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the health of the guarded execution path.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config fixes the breaker thresholds at construction time.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int           `json:"success_threshold"` // Half-open successes before closing
	OpenTimeout      time.Duration `json:"open_timeout"`      // Open -> half-open delay
}

// Snapshot is a read-only view of the breaker for observability.
type Snapshot struct {
	State        State  `json:"state"`
	FailureCount int    `json:"failure_count"`
	SuccessCount int    `json:"success_count"`
	Config       Config `json:"config"`
}

// Operation is a call guarded by the breaker. It produces an outcome or
// an error; panics are recovered and converted to errors.
type Operation func(ctx context.Context) (*models.Outcome, error)

// CircuitBreaker guards one execution path with the usual three-state
// machine: Closed invokes the primary, Open short-circuits to the
// fallback, Half-Open probes the primary after OpenTimeout has elapsed.
type CircuitBreaker struct {
	mu sync.Mutex

	name            string
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	config          Config
	logger          arbor.ILogger

	// onStateChange, if set, is notified after every transition.
	onStateChange func(name string, from, to State)
}

// New creates a closed breaker for the named execution path.
func New(name string, config Config, logger arbor.ILogger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	return &CircuitBreaker{
		name:   name,
		state:  StateClosed,
		config: config,
		logger: logger,
	}
}

// OnStateChange registers a transition hook. Call before first use; the
// hook runs outside the breaker lock.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to State)) {
	cb.onStateChange = fn
}

// Call runs the primary through the breaker. When the circuit is open
// (and the open timeout has not elapsed) the primary is skipped and the
// fallback's result is returned instead. A primary error with a
// fallback supplied also routes to the fallback rather than propagating.
// Open with no fallback fails fast with ErrCircuitOpen.
//
// Only errors (including recovered panics) count toward failure
// accounting. A backend that returns a Failed outcome without an error
// has answered, not failed - the outcome passes through untouched.
func (cb *CircuitBreaker) Call(ctx context.Context, primary, fallback Operation) (*models.Outcome, error) {
	if !cb.allowPrimary() {
		if fallback != nil {
			return cb.runSafe(ctx, fallback)
		}
		return nil, ErrCircuitOpen
	}

	outcome, err := cb.runSafe(ctx, primary)
	if err != nil {
		cb.recordFailure()
		if fallback != nil {
			return cb.runSafe(ctx, fallback)
		}
		return nil, err
	}

	cb.recordSuccess()
	return outcome, nil
}

// CallBlocking is the non-context variant with identical state-machine
// semantics, for callers without a context in hand.
func (cb *CircuitBreaker) CallBlocking(primary, fallback Operation) (*models.Outcome, error) {
	return cb.Call(context.Background(), primary, fallback)
}

// allowPrimary decides whether the primary may run, applying the
// Open -> Half-Open transition when the open timeout has elapsed.
func (cb *CircuitBreaker) allowPrimary() bool {
	cb.mu.Lock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		cb.mu.Unlock()
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.OpenTimeout {
			from := cb.state
			cb.setStateLocked(StateHalfOpen)
			cb.mu.Unlock()
			cb.notify(from, StateHalfOpen)
			return true
		}
		cb.mu.Unlock()
		return false
	default:
		cb.mu.Unlock()
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			from := cb.state
			cb.setStateLocked(StateClosed)
			cb.mu.Unlock()
			cb.notify(from, StateClosed)
			return
		}
	case StateClosed:
		// A success clears the consecutive-failure run.
		cb.failureCount = 0
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateHalfOpen:
		// Any failure during the probe re-opens immediately.
		from := cb.state
		cb.setStateLocked(StateOpen)
		cb.mu.Unlock()
		cb.notify(from, StateOpen)
		return
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			from := cb.state
			cb.setStateLocked(StateOpen)
			cb.mu.Unlock()
			cb.notify(from, StateOpen)
			return
		}
	}
	cb.mu.Unlock()
}

// setStateLocked transitions state and resets counters. Caller holds mu.
func (cb *CircuitBreaker) setStateLocked(to State) {
	cb.state = to
	cb.failureCount = 0
	cb.successCount = 0
}

func (cb *CircuitBreaker) notify(from, to State) {
	cb.logger.Info().
		Str("breaker", cb.name).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Circuit breaker state changed")
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// runSafe executes an operation, converting panics to errors so a
// misbehaving backend cannot kill the scheduler loop.
func (cb *CircuitBreaker) runSafe(ctx context.Context, op Operation) (outcome *models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx)
}

// Name returns the execution path identifier.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns a read-only snapshot for observability.
func (cb *CircuitBreaker) State() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		State:        cb.state,
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		Config:       cb.config,
	}
}

// Reset is an administrative override back to Closed with zero counters.
// It is never invoked automatically.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.setStateLocked(StateClosed)
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}
