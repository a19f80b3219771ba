package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of application service spans
const TracerName = "github.com/erp/connector"

// Span attribute keys shared by services and the actor pool
const (
	AttrTenantID   = attribute.Key("erp.tenant_id")
	AttrErpType    = attribute.Key("erp.type")
	AttrOperation  = attribute.Key("erp.operation")
	AttrSyncEntity = attribute.Key("erp.sync.entity")
	AttrSyncKind   = attribute.Key("erp.sync.kind")
	AttrPage       = attribute.Key("erp.page")
)

// StartServiceSpan starts an internal span named "{service}.{method}".
// The caller ends the span.
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "run", telemetry.AttrSyncEntity.String("ARTICLES"))
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on span and marks the span failed. A nil error is
// a no-op.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds a timestamped event to the span in ctx
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
