// Package resilience turns unreliable, possibly long-running operations —
// LLM calls, tool executions, subagent spawns, file or network I/O — into
// deterministic, observable, policy-driven calls.
//
// # Ecosystem Position
//
// resilience sits between an orchestrator and the external collaborators it
// depends on:
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                     Orchestration Call Flow                      │
//	├──────────────────────────────────────────────────────────────────┤
//	│                                                                  │
//	│   Orchestrator        resilience               External          │
//	│   ┌──────────┐      ┌────────────┐           ┌──────────┐       │
//	│   │ Operation│─────▶│  Manager   │──────────▶│ Provider │       │
//	│   │   Call   │      │            │           │ / Agent  │       │
//	│   └──────────┘      │ ┌────────┐ │           └──────────┘       │
//	│                     │ │Timeout │ │                               │
//	│                     │ ├────────┤ │                               │
//	│                     │ │Circuit │ │                               │
//	│                     │ ├────────┤ │                               │
//	│                     │ │ Retry  │ │                               │
//	│                     │ └────────┘ │                               │
//	│                     └────────────┘                               │
//	│                                                                  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Resilience Patterns
//
// The package provides seven composable patterns:
//
//   - [Classifier]: maps any error into a [ClassifiedError] carrying a
//     category, retryability, and a suggested delay hint.
//   - [CircuitBreaker]: prevents cascading failures by gating admission to a
//     failing target. Transitions through Closed → Open → HalfOpen, closing
//     again only once SuccessThreshold consecutive half-open probes succeed.
//   - Retry ([WithRetry]/[WithRetrySafe]): retries failed operations with
//     exponential backoff and jitter, honoring classifier verdicts.
//   - [Registry]: named, lazily-constructed circuit breakers keyed by
//     "provider:{id}" or "agent:{id}", with an optional per-key config
//     override consulted the first time a key is constructed.
//   - Timeout ([WithTimeout]/[WithTimeoutSafe]): caps operation duration
//     against a per-operation-type default table.
//   - [FallbackChain]: ordered alternatives with per-fallback predicates and
//     a degraded terminal value.
//   - [RateLimiter]: a token-bucket admission gate, attached to a [Manager]
//     via [WithRateLimiter] as an optional outer layer.
//
// [Manager] composes all of the above into a single call:
//
//	(optional rate limit) ∘ timeout ∘ circuit ∘ retry ∘ (optional fallback)
//
// # Quick Start
//
//	mgr := resilience.NewManager()
//
//	value, err := resilience.Execute(mgr, ctx, resilience.ResilienceOptions{
//	    OperationName: "chat-completion",
//	    Provider:      "anthropic",
//	    OperationType: resilience.OpLLMCall,
//	}, func(ctx context.Context) (string, error) {
//	    return callProvider(ctx)
//	})
//
// # Execution Order
//
// When using [Manager], patterns are applied in this order (outermost
// first): rate limiter (if attached via [WithRateLimiter]), timeout,
// circuit breaker, retry. A [FallbackChain] wraps the whole stack as its
// primary when composed via [ExecuteWithFallback].
//
// # Thread Safety
//
// All exported types are safe for concurrent use after construction. A
// single [CircuitBreaker]'s admission check and state mutation are
// serialized under one mutex; the [Registry] map is write-protected; the
// [Manager] does not serialize unrelated operations — distinct circuit
// keys proceed concurrently.
//
// # Error Handling
//
// Each pattern returns a distinguishable error (use errors.Is/As):
//
//   - [ErrCircuitOpen] / [*CircuitOpenError]: the circuit is open, rejecting
//     admission.
//   - [ErrMaxRetriesExceeded] / [*RetryExhaustedError]: all retry attempts
//     were exhausted while the error remained retryable.
//   - [ErrTimeout] / [*TimeoutError]: an operation exceeded its deadline.
//   - [ErrRateLimitExceeded]: the attached [RateLimiter] had no tokens
//     available and WaitOnLimit was false (or the wait itself timed out).
//
// # Observability
//
// Every state transition, retry, fallback, and terminal outcome is
// forwarded to an [EventSink] as a [RecoveryEvent]; a [Manager] takes its
// sink from [WithObserver]. This package does not import the sibling
// observe package, and nothing there implements EventSink: events reach
// spans, metrics, or logs only through a sink the caller writes.
package resilience
