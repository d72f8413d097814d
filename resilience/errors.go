package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations. Prefer errors.Is against these
// for coarse checks; use the typed errors below when the caller needs the
// attached context (circuit name, attempt count, timeout duration).
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when max retry attempts are exhausted.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrCancelled is returned when an operation observes cancellation
	// before or during execution. Cancellation is always a terminal
	// failure, never a retry candidate.
	ErrCancelled = errors.New("resilience: operation cancelled")
)

// TimeoutError reports that an operation exceeded its allotted deadline.
type TimeoutError struct {
	OperationName string
	TimeoutMS     int
}

func (e *TimeoutError) Error() string {
	if e.OperationName != "" {
		return fmt.Sprintf("resilience: %q timed out after %dms", e.OperationName, e.TimeoutMS)
	}
	return fmt.Sprintf("resilience: timed out after %dms", e.TimeoutMS)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// CircuitOpenError reports that admission to a named circuit was denied.
type CircuitOpenError struct {
	CircuitName string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit %q is open", e.CircuitName)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// RetryExhaustedError reports that max_attempts was consumed while the
// underlying error remained retryable. It wraps the last observed error so
// errors.Is/As against the original failure still works.
type RetryExhaustedError struct {
	Attempts  int
	LastError error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("resilience: exhausted %d attempts: %v", e.Attempts, e.LastError)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastError }

// Is allows errors.Is(err, ErrMaxRetriesExceeded) to succeed for any
// RetryExhaustedError, without requiring callers to also unwrap to the
// underlying cause.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded
}

// FallbackExhaustedError reports that a FallbackChain's primary and every
// eligible fallback failed and no degraded value was configured. Per the
// chain's contract (§4.6) the primary error is what propagates; Attempted
// carries every classified failure observed along the way for
// observability without changing Error()/Unwrap() semantics.
type FallbackExhaustedError struct {
	Primary   error
	Attempted []ClassifiedError
}

func (e *FallbackExhaustedError) Error() string { return e.Primary.Error() }

func (e *FallbackExhaustedError) Unwrap() error { return e.Primary }
