package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistry_GetConstructsOnFirstUse(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{ResetTimeout: time.Minute})

	cb1 := r.Get("provider:anthropic")
	cb2 := r.Get("provider:anthropic")

	if cb1 != cb2 {
		t.Fatalf("expected the same breaker instance for the same key")
	}
	if len(r.Keys()) != 1 {
		t.Errorf("Keys() = %v, want 1 entry", r.Keys())
	}
}

func TestRegistry_GetOverrideAppliesOnlyAtConstruction(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{FailureThreshold: 5, VolumeThreshold: 10})

	cb := r.Get("provider:anthropic", CircuitBreakerConfig{FailureThreshold: 1, VolumeThreshold: 1})
	if cb.config.FailureThreshold != 1 {
		t.Errorf("FailureThreshold = %d, want 1 from override", cb.config.FailureThreshold)
	}
	if cb.config.VolumeThreshold != 1 {
		t.Errorf("VolumeThreshold = %d, want 1 from override", cb.config.VolumeThreshold)
	}

	again := r.Get("provider:anthropic", CircuitBreakerConfig{FailureThreshold: 99})
	if again != cb {
		t.Fatalf("expected the same breaker instance once constructed")
	}
	if again.config.FailureThreshold != 1 {
		t.Errorf("FailureThreshold = %d, want unchanged 1; a later override must not reconfigure an existing breaker", again.config.FailureThreshold)
	}
}

func TestRegistry_DistinctKeysGetDistinctBreakers(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{})

	provider := r.Get("provider:anthropic")
	agent := r.Get("agent:worker-1")

	if provider == agent {
		t.Fatalf("expected distinct breakers for distinct keys")
	}
}

func TestRegistry_ConcurrentGetCoalescesConstruction(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{})

	const n = 50
	results := make([]*CircuitBreaker, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = r.Get("shared-key")
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("expected every concurrent Get to return the same breaker instance")
		}
	}
}

func TestRegistry_RemoveForgetsHistory(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{FailureThreshold: 1, VolumeThreshold: 1, ResetTimeout: time.Hour})

	cb1 := r.Get("key")
	_ = cb1.Execute(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	if cb1.State() != StateOpen {
		t.Fatalf("expected breaker to open after one failure at VolumeThreshold=1")
	}

	r.Remove("key")

	cb2 := r.Get("key")
	if cb2 == cb1 {
		t.Fatalf("expected Remove followed by Get to construct a fresh breaker")
	}
	if cb2.State() != StateClosed {
		t.Errorf("fresh breaker should start closed, got %v", cb2.State())
	}
}

func TestRegistry_SnapshotAndResetAll(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{FailureThreshold: 1, VolumeThreshold: 1, ResetTimeout: time.Hour})

	cb := r.Get("provider:anthropic")
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("fail") })

	snap := r.Snapshot()
	if snap["provider:anthropic"].State != StateOpen {
		t.Errorf("snapshot state = %v, want open", snap["provider:anthropic"].State)
	}

	r.ResetAll()
	if cb.State() != StateClosed {
		t.Errorf("after ResetAll, state = %v, want closed", cb.State())
	}
}
