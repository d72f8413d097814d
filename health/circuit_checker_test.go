package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayforge/resilience-core/resilience"
)

func tripBreaker(t *testing.T, reg *resilience.Registry, key string) {
	t.Helper()
	cb := reg.Get(key)
	testErr := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	}
	if cb.State() != resilience.StateOpen {
		t.Fatalf("breaker %q State = %v, want open", key, cb.State())
	}
}

func newTestRegistry() *resilience.Registry {
	return resilience.NewRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold: 4,
		VolumeThreshold:  4,
		ResetTimeout:     time.Minute,
	})
}

func TestCircuitRegistryChecker_EmptyRegistryIsHealthy(t *testing.T) {
	checker := NewCircuitRegistryChecker("circuits", newTestRegistry())

	result := checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", result.Status)
	}
}

func TestCircuitRegistryChecker_NoOpenBreakersIsHealthy(t *testing.T) {
	reg := newTestRegistry()
	reg.Get("provider:github")
	reg.Get("provider:gitlab")

	checker := NewCircuitRegistryChecker("circuits", reg)
	result := checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", result.Status)
	}
}

func TestCircuitRegistryChecker_MinorityOpenIsDegraded(t *testing.T) {
	reg := newTestRegistry()
	tripBreaker(t, reg, "provider:github")
	reg.Get("provider:gitlab")
	reg.Get("provider:bitbucket")

	checker := NewCircuitRegistryChecker("circuits", reg)
	result := checker.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", result.Status)
	}
}

func TestCircuitRegistryChecker_MajorityOpenIsUnhealthy(t *testing.T) {
	reg := newTestRegistry()
	tripBreaker(t, reg, "provider:github")
	tripBreaker(t, reg, "provider:gitlab")
	reg.Get("provider:bitbucket")

	checker := NewCircuitRegistryChecker("circuits", reg)
	result := checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", result.Status)
	}
	if !errors.Is(result.Error, ErrTooManyCircuitsOpen) {
		t.Errorf("Error = %v, want ErrTooManyCircuitsOpen", result.Error)
	}
}

func TestCircuitRegistryChecker_Name(t *testing.T) {
	checker := NewCircuitRegistryChecker("circuits", newTestRegistry())
	if checker.Name() != "circuits" {
		t.Errorf("Name() = %q, want %q", checker.Name(), "circuits")
	}
}
