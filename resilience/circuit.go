package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// callOutcome is one entry in a CircuitBreaker's sliding window.
type callOutcome struct {
	at      time.Time
	failure bool
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit in emitted events and metrics.
	Name string

	// FailureThreshold is the absolute count of failures within the
	// window that trips the circuit from closed to open, once
	// VolumeThreshold calls have also been observed. Default: 5.
	FailureThreshold int

	// VolumeThreshold is the minimum number of calls within the window
	// before FailureThreshold is even evaluated; below it the circuit
	// stays closed regardless of failure count. Default: 10.
	VolumeThreshold int

	// FailureWindow is the sliding window over which call outcomes are
	// counted. Default: 60s.
	FailureWindow time.Duration

	// ResetTimeout is how long the circuit stays open before probing in
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxCalls is the max concurrent probe calls allowed while
	// half-open. Default: 1.
	HalfOpenMaxCalls int

	// SuccessThreshold is the number of consecutive successful probes
	// required while half-open before the circuit closes. Default: 1.
	SuccessThreshold int

	// OnStateChange is called (outside the breaker's lock) when the
	// circuit state changes.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// Sink receives CircuitTransitionData events. Optional.
	Sink EventSink
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = 10
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = 60 * time.Second
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	return c
}

// CircuitBreaker implements a windowed circuit breaker: it trips when the
// count of failures within FailureWindow reaches FailureThreshold,
// provided at least VolumeThreshold calls were observed, and closes again
// once SuccessThreshold consecutive half-open probes succeed.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu                sync.Mutex
	state             State
	history           []callOutcome
	lastOpened        time.Time
	halfOpenInFlight  int
	halfOpenSuccesses int
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config.withDefaults(),
		state:  StateClosed,
	}
}

// Execute runs op through the circuit breaker. It rejects immediately with
// *CircuitOpenError if admission is denied.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// ExecuteCircuit is the generic counterpart of CircuitBreaker.Execute,
// threading a typed result through the non-generic primitive.
func ExecuteCircuit[T any](cb *CircuitBreaker, ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	var value T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		value = v
		return err
	})
	return value, err
}

// State returns the current circuit state, resolving an open->half-open
// transition if ResetTimeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	state, event := cb.currentStateLocked()
	cb.mu.Unlock()
	cb.dispatch(event)
	return state
}

// Reset forces the circuit back to closed, clearing history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	old := cb.state
	cb.state = StateClosed
	cb.history = nil
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccesses = 0
	cb.mu.Unlock()

	if old != StateClosed {
		cb.notifyStateChange(old, StateClosed)
		cb.dispatch(&RecoveryEvent{Kind: EventCircuitTransition, Circuit: &CircuitTransitionData{CircuitName: cb.config.Name, From: old, To: StateClosed}})
	}
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	state, transitionEvent := cb.currentStateLocked()

	switch state {
	case StateOpen:
		cb.mu.Unlock()
		cb.dispatch(transitionEvent)
		return &CircuitOpenError{CircuitName: cb.config.Name}
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxCalls {
			cb.mu.Unlock()
			cb.dispatch(transitionEvent)
			return &CircuitOpenError{CircuitName: cb.config.Name}
		}
		cb.halfOpenInFlight++
	}
	cb.mu.Unlock()
	cb.dispatch(transitionEvent)
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()

	isFailure := cb.config.IsFailure(err)
	now := time.Now()
	oldState := cb.state

	var event *RecoveryEvent

	switch cb.state {
	case StateClosed:
		cb.record(now, isFailure)
		if isFailure && cb.shouldTripLocked() {
			cb.transitionLocked(StateOpen)
			event = cb.transitionEvent(oldState, StateOpen)
		}

	case StateHalfOpen:
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		if isFailure {
			cb.halfOpenSuccesses = 0
			cb.transitionLocked(StateOpen)
			event = cb.transitionEvent(oldState, StateOpen)
		} else {
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.config.SuccessThreshold {
				cb.transitionLocked(StateClosed)
				cb.history = nil
				event = cb.transitionEvent(oldState, StateClosed)
			}
		}
	}

	cb.mu.Unlock()

	if event != nil {
		cb.notifyStateChange(oldState, event.Circuit.To)
		cb.dispatch(event)
	}
}

// record appends an outcome and prunes entries older than FailureWindow.
func (cb *CircuitBreaker) record(at time.Time, failure bool) {
	cb.history = append(cb.history, callOutcome{at: at, failure: failure})
	cb.pruneLocked(at)
}

func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.config.FailureWindow)
	i := 0
	for ; i < len(cb.history); i++ {
		if cb.history[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		cb.history = cb.history[i:]
	}
}

func (cb *CircuitBreaker) shouldTripLocked() bool {
	total := len(cb.history)
	if total < cb.config.VolumeThreshold {
		return false
	}
	failures := 0
	for _, o := range cb.history {
		if o.failure {
			failures++
		}
	}
	return failures >= cb.config.FailureThreshold
}

// currentStateLocked returns the effective state, resolving an overdue
// open->half-open transition. Returns a pending transition event to be
// dispatched by the caller after releasing the mutex.
func (cb *CircuitBreaker) currentStateLocked() (State, *RecoveryEvent) {
	if cb.state == StateOpen && time.Since(cb.lastOpened) >= cb.config.ResetTimeout {
		old := cb.state
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccesses = 0
		return cb.state, cb.transitionEvent(old, StateHalfOpen)
	}
	return cb.state, nil
}

func (cb *CircuitBreaker) transitionLocked(state State) {
	cb.state = state
	if state == StateOpen {
		cb.lastOpened = time.Now()
	}
	if state == StateHalfOpen {
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccesses = 0
	}
}

func (cb *CircuitBreaker) transitionEvent(from, to State) *RecoveryEvent {
	failures := 0
	for _, o := range cb.history {
		if o.failure {
			failures++
		}
	}
	return &RecoveryEvent{
		Kind: EventCircuitTransition,
		Circuit: &CircuitTransitionData{
			CircuitName: cb.config.Name,
			From:        from,
			To:          to,
			Failures:    failures,
		},
	}
}

func (cb *CircuitBreaker) notifyStateChange(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) dispatch(event *RecoveryEvent) {
	if event == nil {
		return
	}
	// open->half-open is resolved lazily in currentStateLocked, whose callers
	// only dispatch; notify OnStateChange for it here.
	if event.Circuit != nil && event.Circuit.To == StateHalfOpen {
		cb.notifyStateChange(event.Circuit.From, event.Circuit.To)
	}
	publish(cb.config.Sink, *event)
}

// Metrics returns current circuit breaker statistics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()

	failures, successes := 0, 0
	for _, o := range cb.history {
		if o.failure {
			failures++
		} else {
			successes++
		}
	}

	state, event := cb.currentStateLocked()
	lastOpened := cb.lastOpened
	cb.mu.Unlock()
	cb.dispatch(event)
	return CircuitBreakerMetrics{
		State:       state,
		Failures:    failures,
		Successes:   successes,
		LastFailure: lastOpened,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics over the
// current sliding window.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	Successes   int
	LastFailure time.Time
}
