package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestActorMetrics(t *testing.T) (*ActorMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewActorMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestActorMetrics_RecordsPoolEvents(t *testing.T) {
	m, reader := newTestActorMetrics(t)
	tenantA, tenantB := uuid.New(), uuid.New()

	m.ActorStarted(tenantA)
	m.ActorStarted(tenantB)
	m.ActorStopped(tenantB)

	m.OperationEnqueued(tenantA, "GetArticles", 3)
	m.OperationCompleted(tenantA, "GetArticles", actor.OutcomeSuccess, 10*time.Millisecond, 120*time.Millisecond)
	m.OperationCompleted(tenantA, "CreateOrder", actor.OutcomeTimeout, time.Millisecond, 30*time.Second)
	m.OperationRejected(tenantA, "GetOrders", "queue_full")

	data := collect(t, reader)

	ops, ok := data[MetricOperationsTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, ops.DataPoints, 2, "one series per operation and outcome")
	var total int64
	for _, dp := range ops.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	actors, ok := data[MetricActorsActive].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, actors.DataPoints, 1)
	assert.Equal(t, int64(1), actors.DataPoints[0].Value)

	depth, ok := data[MetricQueueDepth].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, depth.DataPoints, 1)
	assert.Equal(t, int64(3), depth.DataPoints[0].Value)

	rejected, ok := data[MetricQueueRejections].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, rejected.DataPoints, 1)
	reason, found := rejected.DataPoints[0].Attributes.Value(attrReason)
	require.True(t, found)
	assert.Equal(t, "queue_full", reason.AsString())

	duration, ok := data[MetricOperationDuration].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range duration.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)

	_, ok = data[MetricQueueWait].(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestActorMetrics_ObservesPool(t *testing.T) {
	m, reader := newTestActorMetrics(t)

	pool, err := actor.NewActorPool(actor.DefaultPoolConfig(), actor.WithObserver(m))
	require.NoError(t, err)
	defer func() { _ = pool.Shutdown(context.Background(), true) }()

	tenant := erp.TenantContext{TenantID: uuid.New()}
	got, err := actor.Run(context.Background(), pool, tenant, "TestConnection", 0, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	ops, ok := collect(t, reader)[MetricOperationsTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, ops.DataPoints, 1)
	outcome, _ := ops.DataPoints[0].Attributes.Value(attrOutcome)
	assert.Equal(t, actor.OutcomeSuccess, outcome.AsString())
}
