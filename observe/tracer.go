package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OperationMeta contains metadata about a resilience-wrapped operation for
// telemetry purposes.
type OperationMeta struct {
	ID       string   // Fully qualified operation ID (provider.name or just name)
	Provider string   // Provider or agent scope (may be empty)
	Name     string   // Operation name (required)
	Version  string   // Operation version (optional)
	Tags     []string // Discovery tags (optional)
	Category string   // Operation category (optional)
}

// SpanName returns the deterministic span name for this operation.
// Format: operation.exec.<provider>.<name> or operation.exec.<name>
func (m OperationMeta) SpanName() string {
	if m.Provider != "" {
		return "operation.exec." + m.Provider + "." + m.Name
	}
	return "operation.exec." + m.Name
}

// OperationID returns the fully qualified operation identifier.
// If ID field is set, returns it. Otherwise constructs from provider and name.
func (m OperationMeta) OperationID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Provider != "" {
		return m.Provider + "." + m.Name
	}
	return m.Name
}

// Validate checks that the required fields of OperationMeta are set.
func (m OperationMeta) Validate() error {
	if m.Name == "" {
		return ErrMissingOperationName
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with operation-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan derives the span's context from ctx; it returns no error and does not check for cancellation.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an operation execution.
	StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with operation metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span) {
	spanName := meta.SpanName()

	// Build attributes
	attrs := []attribute.KeyValue{
		attribute.String("operation.id", meta.OperationID()),
		attribute.String("operation.name", meta.Name),
		attribute.Bool("operation.error", false), // Will be updated in EndSpan if error
	}

	// Add provider if present
	if meta.Provider != "" {
		attrs = append(attrs, attribute.String("operation.provider", meta.Provider))
	}

	// Add optional attributes if present
	if meta.Version != "" {
		attrs = append(attrs, attribute.String("operation.version", meta.Version))
	}
	if meta.Category != "" {
		attrs = append(attrs, attribute.String("operation.category", meta.Category))
	}
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("operation.tags", meta.Tags))
	}

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("operation.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// newNoopTracer creates a no-op tracer.
func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
