package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	// LoggerKey is the context key for the request-scoped logger
	LoggerKey contextKey = "logger"
	// RequestIDKey is the context key for the request ID
	RequestIDKey contextKey = "request_id"
	// TenantIDKey is the context key for the tenant a request acts for
	TenantIDKey contextKey = "tenant_id"
	// ErpTypeKey is the context key for the ERP system serving the tenant
	ErpTypeKey contextKey = "erp_type"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID adds the request ID to ctx and returns the enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return withField(ctx, logger, RequestIDKey, requestID)
}

// WithTenantID adds the tenant ID to ctx and returns the enriched logger
func WithTenantID(ctx context.Context, logger *zap.Logger, tenantID string) (context.Context, *zap.Logger) {
	return withField(ctx, logger, TenantIDKey, tenantID)
}

// WithErpType adds the ERP type to ctx and returns the enriched logger
func WithErpType(ctx context.Context, logger *zap.Logger, erpType string) (context.Context, *zap.Logger) {
	return withField(ctx, logger, ErpTypeKey, erpType)
}

func withField(ctx context.Context, logger *zap.Logger, key contextKey, value string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, key, value)
	enriched := logger.With(zap.String(string(key), value))
	ctx = WithContext(ctx, enriched)
	return context.WithValue(ctx, taggedKey{}, enriched), enriched
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetTenantID retrieves the tenant ID from context
func GetTenantID(ctx context.Context) string {
	return stringValue(ctx, TenantIDKey)
}

// GetErpType retrieves the ERP type from context
func GetErpType(ctx context.Context) string {
	return stringValue(ctx, ErpTypeKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID returns the trace ID of the active span, or "" without one
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// GetSpanID returns the span ID of the active span, or "" without one
func GetSpanID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.SpanID().String()
}

// WithTraceContext adds trace_id and span_id from the active span.
// The logger is returned unchanged when there is no valid span.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

// taggedKey marks the logger that withField stored last
type taggedKey struct{}

// ContextLogger logs with the trace and tenant fields carried by a context.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
	// tagged is set when logger came out of ctx and already carries its fields
	tagged bool
}

// L returns a ContextLogger for ctx. Every entry carries trace_id, span_id,
// request_id, tenant_id and erp_type when they are present.
//
//	logger.L(ctx).Info("order created", zap.String("order_number", n))
func L(ctx context.Context) *ContextLogger {
	l, ok := ctx.Value(LoggerKey).(*zap.Logger)
	if !ok {
		l = zap.NewNop()
	}
	// a logger stored by withField already has the context fields
	tagged := ok && ctx.Value(taggedKey{}) == any(l)
	return &ContextLogger{ctx: ctx, logger: l, tagged: tagged}
}

// WithLogger returns a ContextLogger using logger instead of the one in ctx
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) enrichedLogger() *zap.Logger {
	l := cl.logger
	if l == nil {
		l = zap.NewNop()
	}
	l = WithTraceContext(cl.ctx, l)
	if cl.tagged {
		return l
	}

	for _, key := range []contextKey{RequestIDKey, TenantIDKey, ErpTypeKey} {
		if v := stringValue(cl.ctx, key); v != "" {
			l = l.With(zap.String(string(key), v))
		}
	}
	return l
}

// With creates a child ContextLogger with additional fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	base := cl.logger
	if base == nil {
		base = zap.NewNop()
	}
	return &ContextLogger{ctx: cl.ctx, logger: base.With(fields...), tagged: cl.tagged}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Debug(msg, fields...)
}

func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Info(msg, fields...)
}

func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Warn(msg, fields...)
}

func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Error(msg, fields...)
}

// Zap returns the enriched *zap.Logger for APIs that take one
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.enrichedLogger()
}
