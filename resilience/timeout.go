package resilience

import (
	"context"
	"time"
)

// OperationType scopes a default timeout to the kind of work being run —
// an LLM call, a tool invocation, a subagent spawn, or a plain I/O call —
// since each has a very different expected latency.
type OperationType string

const (
	OpLLMCall     OperationType = "llm_call"
	OpToolCall    OperationType = "tool_call"
	OpAgentSpawn  OperationType = "agent_spawn"
	OpIO          OperationType = "io"
	OpUnspecified OperationType = "unspecified"
)

// defaultTimeouts is the per-operation-type timeout table of §4.5.
var defaultTimeouts = map[OperationType]time.Duration{
	OpLLMCall:     120 * time.Second,
	OpToolCall:    30 * time.Second,
	OpAgentSpawn:  60 * time.Second,
	OpIO:          10 * time.Second,
	OpUnspecified: 30 * time.Second,
}

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// OperationName is attached to the TimeoutError/TimeoutExceededData
	// for observability.
	OperationName string

	// OperationType selects the default from defaultTimeouts when
	// Timeout is zero.
	OperationType OperationType

	// Timeout overrides the per-OperationType default when non-zero.
	Timeout time.Duration

	// Sink receives a TimeoutExceededData event on expiry. Optional.
	Sink EventSink
}

func (c TimeoutConfig) resolvedTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	if d, ok := defaultTimeouts[c.OperationType]; ok {
		return d
	}
	return defaultTimeouts[OpUnspecified]
}

// WithTimeout runs op bounded by the configured timeout, returning
// *TimeoutError on expiry.
func WithTimeout[T any](ctx context.Context, cfg TimeoutConfig, op func(context.Context) (T, error)) (T, error) {
	return WithTimeoutSafe(ctx, cfg, op)
}

// WithTimeoutSafe is the same as WithTimeout; the name is kept for
// symmetry with WithRetry/WithRetrySafe and to make call sites that care
// about the distinction self-documenting (both forms return the same
// *TimeoutError here since there is no intermediate "result" shape to
// preserve on expiry).
func WithTimeoutSafe[T any](ctx context.Context, cfg TimeoutConfig, op func(context.Context) (T, error)) (T, error) {
	timeout := cfg.resolvedTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		v, err := op(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			publish(cfg.Sink, RecoveryEvent{
				Kind:    EventTimeoutExceeded,
				Timeout: &TimeoutExceededData{OperationName: cfg.OperationName, TimeoutMS: int(timeout.Milliseconds())},
			})
			return zero, &TimeoutError{OperationName: cfg.OperationName, TimeoutMS: int(timeout.Milliseconds())}
		}
		return zero, ctx.Err()
	}
}

// CreateDeadline returns a context bound to the operation-type default (or
// override) timeout, along with its cancel func. Convenience for callers
// that want the deadline without the goroutine-racing machinery of
// WithTimeout — e.g. to pass a single ctx through several sequential
// internal calls.
func CreateDeadline(ctx context.Context, cfg TimeoutConfig) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.resolvedTimeout())
}

// RaceWithTimeouts runs every op concurrently and returns the first
// success; each op individually is bounded by its own TimeoutConfig. If
// every op fails or times out, the error from the first (index 0) op is
// returned, matching a "primary plus racing alternatives" usage.
func RaceWithTimeouts[T any](ctx context.Context, ops []func(context.Context) (T, error), cfgs []TimeoutConfig) (T, error) {
	type result struct {
		idx   int
		value T
		err   error
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan result, len(ops))
	for i, op := range ops {
		i, op := i, op
		cfg := TimeoutConfig{}
		if i < len(cfgs) {
			cfg = cfgs[i]
		}
		go func() {
			v, err := WithTimeoutSafe(ctx, cfg, op)
			ch <- result{idx: i, value: v, err: err}
		}()
	}

	results := make([]result, len(ops))
	for range ops {
		r := <-ch
		results[r.idx] = r
		if r.err == nil {
			return r.value, nil
		}
	}

	var zero T
	if len(results) == 0 {
		return zero, nil
	}
	return zero, results[0].err
}
