package resilience

import (
	"context"
	"errors"
	"testing"
)

func TestFallbackChain_PrimarySucceeds(t *testing.T) {
	chain := &FallbackChain[int]{Name: "chain"}

	value, err := chain.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if err != nil || value != 1 {
		t.Errorf("Run() = (%d, %v), want (1, nil)", value, err)
	}
}

func TestFallbackChain_FallsBackInOrder(t *testing.T) {
	var order []string
	chain := &FallbackChain[string]{
		Name: "chain",
		Steps: []FallbackStep[string]{
			{Name: "first", Op: func(ctx context.Context) (string, error) {
				order = append(order, "first")
				return "", errors.New("first failed")
			}},
			{Name: "second", Op: func(ctx context.Context) (string, error) {
				order = append(order, "second")
				return "ok", nil
			}},
		},
	}

	value, err := chain.Run(context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("primary failed")
	})

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if value != "ok" {
		t.Errorf("value = %q, want ok", value)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v, want [first second]", order)
	}
}

func TestFallbackChain_ExhaustionReraisesPrimary(t *testing.T) {
	primaryErr := errors.New("primary failed")
	chain := &FallbackChain[int]{
		Name:       "chain",
		Classifier: NewClassifier(),
		Steps: []FallbackStep[int]{
			{Name: "alt", Op: func(ctx context.Context) (int, error) { return 0, errors.New("alt failed too") }},
		},
	}

	_, err := chain.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 0, primaryErr
	})

	var fe *FallbackExhaustedError
	if !errors.As(err, &fe) {
		t.Fatalf("Run() error = %v, want *FallbackExhaustedError", err)
	}
	if !errors.Is(err, primaryErr) {
		t.Errorf("expected the primary error to survive via Unwrap, not whichever fallback failed last")
	}
	if len(fe.Attempted) != 2 {
		t.Errorf("Attempted = %d entries, want 2 (primary + one fallback)", len(fe.Attempted))
	}
}

func TestFallbackChain_DegradedValueOnTotalFailure(t *testing.T) {
	degraded := "cached-response"
	chain := &FallbackChain[string]{
		Name:     "chain",
		Degraded: &degraded,
	}

	res := chain.RunSafe(context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("primary failed")
	})

	if !res.Success || !res.Degraded {
		t.Fatalf("expected a degraded success, got %+v", res)
	}
	if res.Value != degraded {
		t.Errorf("value = %q, want %q", res.Value, degraded)
	}
}

func TestFallbackChain_PredicateSkipsIneligibleSteps(t *testing.T) {
	called := false
	chain := &FallbackChain[int]{
		Name:       "chain",
		Classifier: NewClassifier(),
		Steps: []FallbackStep[int]{
			{
				Name:      "only-for-rate-limit",
				Predicate: func(primary ClassifiedError) bool { return primary.Category == CategoryRateLimit },
				Op: func(ctx context.Context) (int, error) {
					called = true
					return 1, nil
				},
			},
		},
	}

	_, err := chain.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 0, &testStatusError{status: 400, msg: "bad request"}
	})

	if called {
		t.Errorf("step should have been skipped: primary was not a rate limit error")
	}
	if err == nil {
		t.Fatalf("expected an error since the only step was skipped")
	}
}
