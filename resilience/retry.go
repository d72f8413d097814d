package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures backoff-based retry behavior. Zero values are
// replaced by the defaults documented per field in NewRetryConfig.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial
	// call). Default: 3.
	MaxAttempts int

	// InitialDelay is the delay before the first retry. Default: 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. Default: 30s.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier. Default: 2.0.
	Multiplier float64

	// JitterFactor scales the +/- randomization applied to each computed
	// delay, as a fraction of the delay itself, in [0,1]. Zero is a legal,
	// literal value meaning no jitter — it is never coerced to a default,
	// so deterministic tests can pass 0 directly. Callers who want the
	// 0.25 default must start from NewRetryConfig() rather than a bare
	// RetryConfig{} literal.
	JitterFactor float64

	// Classifier decides retryability and may override the computed delay
	// via ClassifiedError.SuggestedDelayMS (e.g. from a Retry-After
	// header). A nil Classifier retries every non-nil error using the
	// computed backoff delay only.
	Classifier *Classifier

	// ClassifyContext is passed through to Classifier.Classify.
	ClassifyContext ClassifyContext

	// OnRetry is invoked before each delay, after a retryable failure.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewRetryConfig returns a RetryConfig with defaults applied.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.25,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	return c
}

// RetryResult reports how a retried call concluded. Attempts always counts
// the initial try, so a value of 1 with Success true means it succeeded on
// the first try and never retried.
type RetryResult[T any] struct {
	Value      T
	Success    bool
	Attempts   int
	LastError  error
	LastClass  ClassifiedError
	RetryDelays []time.Duration
}

// WithRetry runs op with backoff retry and returns *RetryExhaustedError when
// attempts are exhausted on a retryable error. A non-retryable classified
// error or context cancellation returns immediately, unwrapped.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	res := WithRetrySafe(ctx, cfg, op)
	if res.Success {
		return res.Value, nil
	}
	if res.Attempts >= cfg.withDefaults().MaxAttempts && res.LastClass.IsRetryable {
		return res.Value, &RetryExhaustedError{Attempts: res.Attempts, LastError: res.LastError}
	}
	return res.Value, res.LastError
}

// WithRetrySafe runs op with backoff retry and always returns a populated
// RetryResult instead of synthesizing a terminal error type, so callers
// composing retry with other patterns (e.g. Manager) can make their own
// decision about how to report exhaustion.
func WithRetrySafe[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) RetryResult[T] {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	var lastClass ClassifiedError
	var delays []time.Duration

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult[T]{Value: zero, Success: false, Attempts: attempt - 1, LastError: err}
		}

		value, err := op(ctx)
		if err == nil {
			return RetryResult[T]{Value: value, Success: true, Attempts: attempt, RetryDelays: delays}
		}

		lastErr = err

		var class ClassifiedError
		if cfg.Classifier != nil {
			class = cfg.Classifier.Classify(err, cfg.ClassifyContext)
		} else {
			class = ClassifiedError{Category: CategoryUnknown, IsRetryable: true, Origin: err, Message: err.Error()}
		}
		lastClass = class

		if !class.IsRetryable {
			return RetryResult[T]{Value: zero, Success: false, Attempts: attempt, LastError: err, LastClass: class, RetryDelays: delays}
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := calculateBackoff(cfg, attempt, class)
		delays = append(delays, delay)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return RetryResult[T]{Value: zero, Success: false, Attempts: attempt, LastError: ctx.Err(), LastClass: class, RetryDelays: delays}
		case <-time.After(delay):
		}
	}

	return RetryResult[T]{Value: zero, Success: false, Attempts: cfg.MaxAttempts, LastError: lastErr, LastClass: lastClass, RetryDelays: delays}
}

// calculateBackoff computes the exponential-with-jitter delay per §4.2:
// base = min(initial * multiplier^(attempt-1), max), jitter = base *
// jitterFactor * U(-1,1), clamped to >= 0. A classifier-suggested delay
// (e.g. derived from Retry-After) overrides the formula entirely.
func calculateBackoff(cfg RetryConfig, attempt int, class ClassifiedError) time.Duration {
	if class.SuggestedDelayMS > 0 {
		return time.Duration(class.SuggestedDelayMS) * time.Millisecond
	}

	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if max := float64(cfg.MaxDelay); base > max {
		base = max
	}

	if cfg.JitterFactor > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		spread := base * cfg.JitterFactor
		jitter := (rand.Float64()*2 - 1) * spread
		base += jitter
	}

	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}
