package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relayforge/resilience-core/resilience"
)

func ExampleNewCircuitBreaker() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		VolumeThreshold:  3,
		ResetTimeout:     time.Second,
	})

	ctx := context.Background()
	err := cb.Execute(ctx, func(ctx context.Context) error {
		return nil
	})

	if err == nil {
		fmt.Println("Operation succeeded")
	}
	// Output:
	// Operation succeeded
}

func ExampleCircuitBreaker_State() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		VolumeThreshold:  2,
		ResetTimeout:     time.Minute,
	})

	ctx := context.Background()

	fmt.Println("Initial state:", cb.State())

	simulatedErr := errors.New("service unavailable")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error {
			return simulatedErr
		})
	}

	fmt.Println("After failures:", cb.State())

	cb.Reset()
	fmt.Println("After reset:", cb.State())
	// Output:
	// Initial state: closed
	// After failures: open
	// After reset: closed
}

func ExampleNewCircuitBreaker_withStateChange() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		VolumeThreshold:  1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to resilience.State) {
			fmt.Printf("Circuit changed: %s -> %s\n", from, to)
		},
	})

	ctx := context.Background()
	simulatedErr := errors.New("failure")

	_ = cb.Execute(ctx, func(ctx context.Context) error {
		return simulatedErr
	})
	// Output:
	// Circuit changed: closed -> open
}

func ExampleWithRetry() {
	ctx := context.Background()
	attempts := 0

	cfg := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		JitterFactor: 0, // disabled for a predictable example
	}

	_, err := resilience.WithRetry(ctx, cfg, func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("temporary failure")
		}
		return 1, nil
	})

	if err == nil {
		fmt.Printf("Succeeded after %d attempts\n", attempts)
	}
	// Output:
	// Succeeded after 3 attempts
}

func ExampleWithRetry_withCallback() {
	ctx := context.Background()
	attempts := 0

	cfg := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		JitterFactor: 0,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			fmt.Printf("Attempt %d failed, retrying\n", attempt)
		},
	}

	_, _ = resilience.WithRetry(ctx, cfg, func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("temporary")
		}
		return 1, nil
	})

	fmt.Println("Completed")
	// Output:
	// Attempt 1 failed, retrying
	// Attempt 2 failed, retrying
	// Completed
}

func ExampleNewRateLimiter() {
	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Rate:  100,
		Burst: 5,
	})

	if rl.Allow() {
		fmt.Println("Request 1 allowed")
	}

	if rl.AllowN(3) {
		fmt.Println("Batch of 3 allowed")
	}
	// Output:
	// Request 1 allowed
	// Batch of 3 allowed
}

func ExampleRateLimiter_Execute() {
	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Rate:        10,
		Burst:       2,
		WaitOnLimit: false,
	})

	ctx := context.Background()
	successCount := 0

	for i := 0; i < 3; i++ {
		err := rl.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
		if err == nil {
			successCount++
		}
	}

	fmt.Printf("Successful executions: %d\n", successCount)
	// Output:
	// Successful executions: 2
}

func ExampleNewBulkhead() {
	bh := resilience.NewBulkhead(resilience.BulkheadConfig{
		MaxConcurrent: 2,
		MaxWait:       0,
	})

	ctx := context.Background()

	err1 := bh.Acquire(ctx)
	err2 := bh.Acquire(ctx)
	err3 := bh.Acquire(ctx)

	fmt.Println("Slot 1:", err1 == nil)
	fmt.Println("Slot 2:", err2 == nil)
	fmt.Println("Slot 3:", errors.Is(err3, resilience.ErrBulkheadFull))

	bh.Release()

	err4 := bh.Acquire(ctx)
	fmt.Println("Slot 4 after release:", err4 == nil)
	// Output:
	// Slot 1: true
	// Slot 2: true
	// Slot 3: true
	// Slot 4 after release: true
}

func ExampleBulkhead_Metrics() {
	bh := resilience.NewBulkhead(resilience.BulkheadConfig{
		MaxConcurrent: 5,
	})

	ctx := context.Background()

	_ = bh.Acquire(ctx)
	_ = bh.Acquire(ctx)

	metrics := bh.Metrics()
	fmt.Printf("Active: %d, Available: %d, MaxConcurrent: %d\n",
		metrics.Active, metrics.Available, metrics.MaxConcurrent)
	// Output:
	// Active: 2, Available: 3, MaxConcurrent: 5
}

func ExampleWithTimeout() {
	ctx := context.Background()

	_, err := resilience.WithTimeout(ctx, resilience.TimeoutConfig{Timeout: 100 * time.Millisecond}, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	fmt.Println("Fast operation error:", err)

	_, err = resilience.WithTimeout(ctx, resilience.TimeoutConfig{Timeout: 50 * time.Millisecond}, func(ctx context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 0, nil
	})
	fmt.Println("Slow operation timed out:", errors.Is(err, resilience.ErrTimeout))
	// Output:
	// Fast operation error: <nil>
	// Slow operation timed out: true
}

func ExampleExecute() {
	ctx := context.Background()
	mgr := resilience.NewManager()

	attempts := 0
	opts := resilience.ResilienceOptions{
		OperationName: "fetch-document",
		Provider:      "internal-store",
		Retry:         resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, JitterFactor: 0},
	}

	value, err := resilience.Execute(mgr, ctx, opts, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient store error")
		}
		return "document-body", nil
	})

	fmt.Println("value:", value, "err:", err)
	// Output:
	// value: document-body err: <nil>
}
