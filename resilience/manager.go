package resilience

import (
	"context"
	"sync/atomic"
	"time"
)

// ResilienceOptions describes a single call into the Manager: what it is,
// which circuit it belongs to, and which per-pattern overrides (if any)
// apply to it.
type ResilienceOptions struct {
	// OperationName identifies the call in events, logs, and metrics.
	OperationName string

	// Provider and Agent, at most one set, select the circuit breaker key
	// ("provider:{Provider}" or "agent:{Agent}"). If both are empty the
	// circuit breaker stage is skipped.
	Provider string
	Agent    string

	OperationType OperationType

	Retry   RetryConfig
	Timeout TimeoutConfig

	// Circuit, when any field is non-zero, overrides the registry's
	// default breaker config the first time this call's circuit key is
	// constructed. Ignored once a breaker already exists for that key.
	Circuit CircuitBreakerConfig

	// SkipCircuit disables the circuit breaker stage even when Provider
	// or Agent is set.
	SkipCircuit bool
	// SkipRetry disables the retry stage, running op exactly once.
	SkipRetry bool
	// SkipTimeout disables the timeout stage.
	SkipTimeout bool
}

func (o ResilienceOptions) circuitKey() (string, bool) {
	switch {
	case o.Provider != "":
		return "provider:" + o.Provider, true
	case o.Agent != "":
		return "agent:" + o.Agent, true
	default:
		return "", false
	}
}

// Manager composes the Classifier, CircuitBreaker Registry, retry, and
// timeout patterns into a single call: timeout ∘ circuit ∘ retry. Timeout
// is outermost so a runaway retry loop cannot outlive its budget; circuit
// sits between timeout and retry so a tripped breaker rejects before any
// attempt is spent, but the timeout still bounds how long the rejection
// path itself can take. A RateLimiter, if attached via WithRateLimiter,
// wraps outside all of this — it only ever adds a layer, never reorders
// the required stack.
type Manager struct {
	classifier  *Classifier
	registry    *Registry
	sink        EventSink
	metrics     *Metrics
	rateLimiter *RateLimiter
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithObserver attaches an EventSink every pattern's events are forwarded
// to, in addition to the Manager's own per-call outcome event.
func WithObserver(sink EventSink) ManagerOption {
	return func(m *Manager) { m.sink = sink }
}

// WithRegistry swaps in a pre-built Registry (e.g. one shared across
// multiple Managers, or configured with non-default breaker thresholds).
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) { m.registry = r }
}

// WithClassifier swaps in a pre-built Classifier.
func WithClassifier(c *Classifier) ManagerOption {
	return func(m *Manager) { m.classifier = c }
}

// WithRateLimiter attaches a RateLimiter as an additional outer layer around
// every call, outside timeout ∘ circuit ∘ retry. Unset by default — a
// Manager with no rate limiter never consults one.
func WithRateLimiter(rl *RateLimiter) ManagerOption {
	return func(m *Manager) { m.rateLimiter = rl }
}

// NewManager creates a Manager with default Classifier and Registry. The
// default Registry's breakers publish to the WithObserver sink; a Registry
// supplied via WithRegistry is used as is, whatever the option order, and
// its breakers publish only to the Sink in its own base config.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		classifier: NewClassifier(),
		metrics:    NewMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry(CircuitBreakerConfig{Sink: m.sink})
	}
	return m
}

// Metrics returns the Manager's aggregate recovery metrics.
func (m *Manager) Metrics() MetricsSnapshot { return m.metrics.Snapshot() }

// Execute runs op through timeout ∘ circuit ∘ retry per opts, returning
// *RetryExhaustedError / *CircuitOpenError / *TimeoutError as appropriate.
func Execute[T any](m *Manager, ctx context.Context, opts ResilienceOptions, op func(context.Context) (T, error)) (T, error) {
	start := time.Now()

	opts.Retry.Classifier = m.classifier
	opts.Retry.ClassifyContext = ClassifyContext{Provider: opts.Provider, OperationName: opts.OperationName}
	opts.Timeout.OperationName = opts.OperationName
	opts.Timeout.OperationType = opts.OperationType
	opts.Timeout.Sink = m.sink

	// attempts/retryExhausted are written from inside the (possibly
	// abandoned-on-timeout) attempt closure and read back on the Execute
	// goroutine after withTimeout returns, so both need atomic access: a
	// timed-out operation's goroutine can still be running when its
	// caller moves on.
	var attempts atomic.Int64
	var retryExhausted atomic.Bool

	attempt := func(ctx context.Context) (T, error) {
		if opts.SkipRetry {
			attempts.Store(1)
			return op(ctx)
		}

		res := WithRetrySafe(ctx, opts.Retry, op)
		attempts.Store(int64(res.Attempts))
		for i, d := range res.RetryDelays {
			m.dispatchRetry(opts.OperationName, i+1, opts.Retry.withDefaults().MaxAttempts, d, res.LastClass)
		}
		if res.Success {
			return res.Value, nil
		}
		if res.Attempts >= opts.Retry.withDefaults().MaxAttempts && res.LastClass.IsRetryable {
			retryExhausted.Store(true)
		}
		return res.Value, res.LastError
	}

	withCircuit := func(ctx context.Context) (T, error) {
		key, hasCircuit := opts.circuitKey()
		if opts.SkipCircuit || !hasCircuit {
			return attempt(ctx)
		}
		cb := m.registry.Get(key, opts.Circuit)
		return ExecuteCircuit(cb, ctx, attempt)
	}

	withTimeout := func(ctx context.Context) (T, error) {
		if opts.SkipTimeout {
			return withCircuit(ctx)
		}
		return WithTimeoutSafe(ctx, opts.Timeout, withCircuit)
	}

	withRateLimit := func(ctx context.Context) (T, error) {
		if m.rateLimiter == nil {
			return withTimeout(ctx)
		}
		var value T
		err := m.rateLimiter.Execute(ctx, func(ctx context.Context) error {
			v, err := withTimeout(ctx)
			value = v
			return err
		})
		return value, err
	}

	value, err := withRateLimit(ctx)
	finalAttempts := int(attempts.Load())

	if err == nil {
		m.metrics.recordOutcome(true, finalAttempts, time.Since(start))
		m.dispatchOutcome(opts, true, finalAttempts, time.Since(start), nil)
		return value, nil
	}

	if retryExhausted.Load() {
		err = &RetryExhaustedError{Attempts: finalAttempts, LastError: err}
	}

	m.metrics.recordOutcome(false, finalAttempts, time.Since(start))
	m.dispatchOutcome(opts, false, finalAttempts, time.Since(start), err)
	return value, err
}

// ExecuteWithFallback wraps Execute as the primary call of a FallbackChain,
// so a fully-composed (timeout/circuit/retry) primary still has ordered
// alternatives available on exhaustion.
func ExecuteWithFallback[T any](m *Manager, ctx context.Context, opts ResilienceOptions, chain *FallbackChain[T], op func(context.Context) (T, error)) (T, error) {
	if chain.Classifier == nil {
		chain.Classifier = m.classifier
	}
	if chain.Sink == nil {
		chain.Sink = m.sink
	}
	return chain.Run(ctx, func(ctx context.Context) (T, error) {
		return Execute(m, ctx, opts, op)
	})
}

func (m *Manager) dispatchRetry(op string, attempt, max int, delay time.Duration, class ClassifiedError) {
	publish(m.sink, RecoveryEvent{
		Kind:  EventRetryAttempt,
		Retry: &RetryAttemptData{OperationName: op, Attempt: attempt, MaxAttempts: max, Delay: delay, Class: class},
	})
}

func (m *Manager) dispatchOutcome(opts ResilienceOptions, success bool, attempts int, dur time.Duration, err error) {
	publish(m.sink, RecoveryEvent{
		Kind: EventOperationOutcome,
		Outcome: &OperationOutcomeData{
			OperationName: opts.OperationName,
			Provider:      opts.Provider,
			Success:       success,
			Attempts:      attempts,
			Duration:      dur,
			Err:           err,
		},
	})
}
