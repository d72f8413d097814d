// Package observe provides OpenTelemetry-based observability for
// resilience operations.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. It has no built-in link to the resilience package:
// resilience.Manager's WithObserver takes a resilience.EventSink, which no
// type in this package implements, so RecoveryEvents reach observe only
// through a sink the caller writes.
//
// # Overview
//
// observe provides three observability pillars:
//   - Tracing: OpenTelemetry spans with operation metadata attributes
//   - Metrics: Execution counters and duration histograms
//   - Logging: Structured JSON logging with automatic field redaction
//
// # Core Components
//
//   - [Observer]: Main facade providing Tracer, Meter, and Logger access
//   - [Tracer]: Span creation with operation metadata as span attributes
//   - [Metrics]: Records execution counts, errors, and duration histograms
//   - [Logger]: Structured JSON logging with sensitive field redaction
//   - [Middleware]: Wraps ExecuteFunc with complete observability
//
// # Quick Start
//
//	cfg := observe.Config{
//	    ServiceName: "resilience-core",
//	    Version:     "1.0.0",
//	    Tracing:     observe.TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 1.0},
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	}
//
//	obs, err := observe.NewObserver(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(ctx)
//
//	// Create middleware and wrap the operation
//	mw, _ := observe.MiddlewareFromObserver(obs)
//	wrapped := mw.Wrap(originalExecuteFunc)
//
//	// Execute - automatically traced, metered, and logged
//	result, err := wrapped(ctx, operationMeta, input)
//
// # Telemetry Details
//
// Tracing creates spans with deterministic names:
//   - With provider: "operation.exec.<provider>.<name>" (e.g., "operation.exec.claude.agent_spawn")
//   - Without provider: "operation.exec.<name>" (e.g., "operation.exec.git_commit")
//
// Span attributes include:
//   - operation.id: Fully qualified operation identifier
//   - operation.name: Operation name (required)
//   - operation.provider: Provider or agent scope (if set)
//   - operation.version: Operation version (if set)
//   - operation.category: Operation category (if set)
//   - operation.tags: Discovery tags (if set)
//   - operation.error: Boolean indicating execution failure
//
// Metrics recorded:
//   - operation.exec.total (counter): Total executions by operation
//   - operation.exec.errors (counter): Total errors by operation
//   - operation.exec.duration_ms (histogram): Duration distribution in milliseconds
//
// All metrics include labels: operation.id, operation.name, operation.provider (if set).
//
// # Sensitive Field Redaction
//
// The logger automatically redacts these fields to prevent credential leakage:
//   - input, inputs
//   - password, secret, token
//   - api_key, apiKey, credential
//
// See [RedactedFields] for the complete list.
//
// # Exporter Configuration
//
// Tracing exporters:
//   - "otlp": OTLP gRPC (requires OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_TRACES_ENDPOINT)
//   - "jaeger": Jaeger via OTLP (requires OTEL_EXPORTER_JAEGER_ENDPOINT)
//   - "stdout": Console output for development
//   - "none" or "": Disabled (no-op)
//
// Metrics exporters:
//   - "otlp": OTLP gRPC (requires OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT)
//   - "prometheus": Prometheus scrape endpoint
//   - "stdout": Console output for development
//   - "none" or "": Disabled (no-op)
//
// # Thread Safety
//
// All exported types are safe for concurrent use after construction:
//   - [Observer]: Tracer(), Meter(), Logger() are safe; Shutdown() is idempotent
//   - [Tracer]: StartSpan() and EndSpan() are safe for concurrent use
//   - [Metrics]: RecordExecution() is safe for concurrent use
//   - [Logger]: All logging methods are mutex-protected
//   - [Middleware]: Wrap() returns a thread-safe ExecuteFunc
//
// # Error Handling
//
// Configuration errors (use errors.Is for checking):
//   - [ErrMissingServiceName]: Config.ServiceName is empty
//   - [ErrInvalidSamplePct]: Tracing.SamplePct not in [0.0, 1.0]
//   - [ErrInvalidTracingExporter]: Unknown tracing exporter name
//   - [ErrInvalidMetricsExporter]: Unknown metrics exporter name
//   - [ErrInvalidLogLevel]: Unknown log level
//
// Exporter errors:
//   - [ErrEndpointNotConfigured]: Required endpoint env var not set
//
// Runtime errors:
//   - [ErrNilObserver]: Nil Observer passed to function
//   - [ErrMissingOperationName]: OperationMeta.Name is empty
//
// Example error handling:
//
//	obs, err := observe.NewObserver(ctx, cfg)
//	if errors.Is(err, observe.ErrMissingServiceName) {
//	    // Handle missing service name
//	}
//	if errors.Is(err, observe.ErrEndpointNotConfigured) {
//	    // Handle missing OTLP endpoint
//	}
//
// # Integration
//
//   - resilience.Manager: WithObserver takes a resilience.EventSink; a
//     caller-written sink can log RecoveryEvents through obs.Logger()
//   - HTTP middleware: instrument API endpoints that call into the Manager
package observe
