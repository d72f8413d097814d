package resilience

import "context"

// FallbackStep is one alternative in a FallbackChain. Predicate, if set,
// gates whether the step is attempted for a given classified primary
// failure (e.g. only fall back to a cheaper model on CategoryRateLimit,
// never on CategoryInvalidRequest). A nil Predicate always attempts.
type FallbackStep[T any] struct {
	Name      string
	Predicate func(primary ClassifiedError) bool
	Op        func(context.Context) (T, error)
}

// FallbackChain runs a primary operation and, on failure, an ordered list
// of alternatives until one succeeds or a configured degraded value is
// returned. If every step fails and no degraded value is set, the
// original primary error is what propagates — the chain never masks the
// root cause with whichever fallback happened to fail last.
type FallbackChain[T any] struct {
	Name       string
	Classifier *Classifier
	Ctx        ClassifyContext
	Steps      []FallbackStep[T]

	// Degraded, if non-nil, is returned instead of an error when every
	// step fails.
	Degraded *T

	Sink EventSink
}

// FallbackResult reports how a chain concluded.
type FallbackResult[T any] struct {
	Value       T
	Success     bool
	UsedStep    string // "" for the primary, else the step Name
	Degraded    bool
	Attempted   []ClassifiedError
	PrimaryErr  error
}

// Run executes primary, then the chain's steps in order on failure.
func (fc *FallbackChain[T]) Run(ctx context.Context, primary func(context.Context) (T, error)) (T, error) {
	res := fc.RunSafe(ctx, primary)
	if res.Success {
		return res.Value, nil
	}
	return res.Value, &FallbackExhaustedError{Primary: res.PrimaryErr, Attempted: res.Attempted}
}

// RunSafe is the same as Run but always returns a populated FallbackResult
// instead of synthesizing a terminal error, mirroring WithRetrySafe.
func (fc *FallbackChain[T]) RunSafe(ctx context.Context, primary func(context.Context) (T, error)) FallbackResult[T] {
	var attempted []ClassifiedError

	value, err := primary(ctx)
	if err == nil {
		return FallbackResult[T]{Value: value, Success: true}
	}

	primaryClass := fc.classify(err)
	attempted = append(attempted, primaryClass)
	primaryErr := err

	for i, step := range fc.Steps {
		if step.Predicate != nil && !step.Predicate(primaryClass) {
			continue
		}

		fc.dispatch(RecoveryEvent{
			Kind: EventFallbackInvoked,
			Fallback: &FallbackInvokedData{
				ChainName:  fc.Name,
				StepIndex:  i,
				StepName:   step.Name,
				PrimaryErr: primaryErr,
			},
		})

		value, err = step.Op(ctx)
		if err == nil {
			return FallbackResult[T]{Value: value, Success: true, UsedStep: step.Name, Attempted: attempted}
		}
		attempted = append(attempted, fc.classify(err))
	}

	if fc.Degraded != nil {
		fc.dispatch(RecoveryEvent{
			Kind: EventFallbackInvoked,
			Fallback: &FallbackInvokedData{
				ChainName:   fc.Name,
				StepIndex:   len(fc.Steps),
				StepName:    "degraded",
				PrimaryErr:  primaryErr,
				WasDegraded: true,
			},
		})
		return FallbackResult[T]{Value: *fc.Degraded, Success: true, Degraded: true, Attempted: attempted}
	}

	var zero T
	return FallbackResult[T]{Value: zero, Success: false, Attempted: attempted, PrimaryErr: primaryErr}
}

func (fc *FallbackChain[T]) classify(err error) ClassifiedError {
	if fc.Classifier != nil {
		return fc.Classifier.Classify(err, fc.Ctx)
	}
	return ClassifiedError{Category: CategoryUnknown, Origin: err, Message: err.Error()}
}

func (fc *FallbackChain[T]) dispatch(event RecoveryEvent) {
	publish(fc.Sink, event)
}
