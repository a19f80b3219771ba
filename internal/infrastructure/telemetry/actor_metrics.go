package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Actor pool metric names
const (
	MetricOperationsTotal   = "erp_operations_total"
	MetricOperationDuration = "erp_operation_duration_seconds"
	MetricQueueWait         = "erp_queue_wait_seconds"
	MetricQueueDepth        = "erp_actor_queue_depth"
	MetricActorsActive      = "erp_actors_active"
	MetricQueueRejections   = "erp_queue_rejections_total"
)

var (
	attrKind    = attribute.Key("operation")
	attrOutcome = attribute.Key("outcome")
	attrReason  = attribute.Key("reason")
)

// latencyBuckets covers sub-millisecond cache hits up to the 30s default
// operation timeout
var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// ActorMetrics records actor pool events as OpenTelemetry metrics.
type ActorMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	queueWait  metric.Float64Histogram
	queueDepth metric.Int64Gauge
	actors     metric.Int64UpDownCounter
	rejections metric.Int64Counter
}

// NewActorMetrics creates the instruments on meter
func NewActorMetrics(meter metric.Meter) (*ActorMetrics, error) {
	m := &ActorMetrics{}
	var err error

	if m.operations, err = meter.Int64Counter(MetricOperationsTotal,
		metric.WithDescription("ERP operations executed by tenant actors"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricOperationsTotal, err)
	}
	if m.duration, err = meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("Execution time of ERP operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricOperationDuration, err)
	}
	if m.queueWait, err = meter.Float64Histogram(MetricQueueWait,
		metric.WithDescription("Time operations spent queued before execution"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricQueueWait, err)
	}
	if m.queueDepth, err = meter.Int64Gauge(MetricQueueDepth,
		metric.WithDescription("Pending operations in a tenant actor mailbox"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricQueueDepth, err)
	}
	if m.actors, err = meter.Int64UpDownCounter(MetricActorsActive,
		metric.WithDescription("Running tenant actors"),
		metric.WithUnit("{actor}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricActorsActive, err)
	}
	if m.rejections, err = meter.Int64Counter(MetricQueueRejections,
		metric.WithDescription("Operations rejected before reaching an actor"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricQueueRejections, err)
	}
	return m, nil
}

func tenantAttr(tenantID uuid.UUID) attribute.KeyValue {
	return AttrTenantID.String(tenantID.String())
}

func (m *ActorMetrics) OperationEnqueued(tenantID uuid.UUID, _ string, queueDepth int) {
	m.queueDepth.Record(context.Background(), int64(queueDepth), metric.WithAttributes(tenantAttr(tenantID)))
}

func (m *ActorMetrics) OperationRejected(tenantID uuid.UUID, kind string, reason string) {
	m.rejections.Add(context.Background(), 1, metric.WithAttributes(
		tenantAttr(tenantID), attrKind.String(kind), attrReason.String(reason),
	))
}

func (m *ActorMetrics) OperationCompleted(tenantID uuid.UUID, kind string, outcome string, queueWait, execution time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(tenantAttr(tenantID), attrKind.String(kind), attrOutcome.String(outcome))

	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, execution.Seconds(), attrs)
	m.queueWait.Record(ctx, queueWait.Seconds(), metric.WithAttributes(tenantAttr(tenantID), attrKind.String(kind)))
}

func (m *ActorMetrics) ActorStarted(uuid.UUID) {
	m.actors.Add(context.Background(), 1)
}

func (m *ActorMetrics) ActorStopped(uuid.UUID) {
	m.actors.Add(context.Background(), -1)
}

var _ actor.Observer = (*ActorMetrics)(nil)
