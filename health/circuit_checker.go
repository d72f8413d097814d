package health

import (
	"context"
	"fmt"

	"github.com/relayforge/resilience-core/resilience"
)

// CircuitRegistryChecker reports the aggregate health of every circuit
// breaker in a resilience.Registry as a single Checker. It is meant to be
// registered into a host application's own Aggregator alongside its other
// component checks, giving operators one representative signal for the
// whole fleet of provider/agent breakers instead of one per key.
//
// Status is derived from the registry snapshot:
//   - Healthy: no breaker is open.
//   - Degraded: at least one breaker is open, but at most half of them.
//   - Unhealthy: more than half of all registered breakers are open.
//
// An empty registry (no breakers constructed yet) reports Healthy.
type CircuitRegistryChecker struct {
	name     string
	registry *resilience.Registry
}

// NewCircuitRegistryChecker creates a Checker over registry. name is
// returned from Name() and used as the Aggregator registration key by
// convention, though callers may register it under any name they choose.
func NewCircuitRegistryChecker(name string, registry *resilience.Registry) *CircuitRegistryChecker {
	return &CircuitRegistryChecker{name: name, registry: registry}
}

// Name returns the checker's name.
func (c *CircuitRegistryChecker) Name() string {
	return c.name
}

// Check inspects every breaker in the registry and reports Degraded or
// Unhealthy once open breakers cross the thresholds documented on
// CircuitRegistryChecker.
func (c *CircuitRegistryChecker) Check(ctx context.Context) Result {
	snapshot := c.registry.Snapshot()
	if len(snapshot) == 0 {
		return Healthy("no circuit breakers registered")
	}

	open := make([]string, 0, len(snapshot))
	for key, metrics := range snapshot {
		if metrics.State == resilience.StateOpen {
			open = append(open, key)
		}
	}

	details := map[string]any{
		"total_breakers": len(snapshot),
		"open_breakers":  open,
	}

	switch {
	case len(open) == 0:
		return Healthy("all circuits closed").WithDetails(details)
	case len(open)*2 > len(snapshot):
		msg := fmt.Sprintf("%d of %d circuits open", len(open), len(snapshot))
		return Unhealthy(msg, ErrTooManyCircuitsOpen).WithDetails(details)
	default:
		msg := fmt.Sprintf("%d of %d circuits open", len(open), len(snapshot))
		return Degraded(msg).WithDetails(details)
	}
}
