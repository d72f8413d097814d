package resilience

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry holds named, lazily-constructed circuit breakers keyed by a
// caller-chosen string — conventionally "provider:{id}" or "agent:{id}" so
// a failing provider and a crashing agent never share a breaker.
type Registry struct {
	factory CircuitBreakerConfig // base config; Name is overwritten per key

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	group singleflight.Group
}

// NewRegistry creates a Registry. base is used as the template config for
// every breaker the registry constructs; its Name field is overwritten
// with the requested key.
func NewRegistry(base CircuitBreakerConfig) *Registry {
	return &Registry{
		factory:  base,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the circuit breaker for key, constructing it on first use.
// Concurrent Get calls for the same unseen key are coalesced via
// singleflight so exactly one CircuitBreaker is constructed.
//
// override, if given, supplies the config used the first time key is
// constructed: its non-zero fields are merged over the registry's base
// config. It is consulted only at construction time — once a breaker
// exists for key, every subsequent Get (override or not) returns that
// same instance unchanged, per the "same name → same instance for the
// lifetime of the registry" guarantee. Passing more than one override is
// a caller error; only the first is used.
func (r *Registry) Get(key string, override ...CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.breakers[key]; ok {
			return existing, nil
		}
		cfg := r.factory
		if len(override) > 0 {
			cfg = mergeCircuitConfig(cfg, override[0])
		}
		cfg.Name = key
		cb := NewCircuitBreaker(cfg)
		r.breakers[key] = cb
		return cb, nil
	})
	return v.(*CircuitBreaker)
}

// mergeCircuitConfig overlays override's non-zero fields onto base,
// leaving any field override leaves at its zero value untouched.
func mergeCircuitConfig(base, override CircuitBreakerConfig) CircuitBreakerConfig {
	if override.FailureThreshold != 0 {
		base.FailureThreshold = override.FailureThreshold
	}
	if override.VolumeThreshold != 0 {
		base.VolumeThreshold = override.VolumeThreshold
	}
	if override.FailureWindow != 0 {
		base.FailureWindow = override.FailureWindow
	}
	if override.ResetTimeout != 0 {
		base.ResetTimeout = override.ResetTimeout
	}
	if override.HalfOpenMaxCalls != 0 {
		base.HalfOpenMaxCalls = override.HalfOpenMaxCalls
	}
	if override.SuccessThreshold != 0 {
		base.SuccessThreshold = override.SuccessThreshold
	}
	if override.OnStateChange != nil {
		base.OnStateChange = override.OnStateChange
	}
	if override.IsFailure != nil {
		base.IsFailure = override.IsFailure
	}
	if override.Sink != nil {
		base.Sink = override.Sink
	}
	return base
}

// Remove deletes the breaker for key. In-flight calls already admitted
// through the removed breaker continue to run and report their outcome to
// it normally; once Remove returns, a subsequent Get constructs a fresh
// breaker for that key with no memory of prior history.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, key)
}

// Keys returns the currently registered breaker keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a point-in-time copy of every breaker's metrics, keyed
// by registry key.
func (r *Registry) Snapshot() map[string]CircuitBreakerMetrics {
	r.mu.RLock()
	breakers := make(map[string]*CircuitBreaker, len(r.breakers))
	for k, v := range r.breakers {
		breakers[k] = v
	}
	r.mu.RUnlock()

	out := make(map[string]CircuitBreakerMetrics, len(breakers))
	for k, cb := range breakers {
		out[k] = cb.Metrics()
	}
	return out
}

// ResetAll resets every registered breaker to closed.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, v := range r.breakers {
		breakers = append(breakers, v)
	}
	r.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}
