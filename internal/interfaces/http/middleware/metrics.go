package middleware

import (
	"time"

	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	attrHTTPMethod = attribute.Key("http.request.method")
	attrHTTPRoute  = attribute.Key("http.route")
	attrHTTPStatus = attribute.Key("http.response.status_code")
)

// httpDurationBuckets stretches to the longest operation timeout a client may ask for
var httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

type httpMetrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requestTotal, err := meter.Int64Counter(
		"http_server_request_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http_server_request_duration_seconds",
		metric.WithDescription("HTTP request latency distribution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpDurationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
	}, nil
}

// HTTPMetrics returns a middleware that records request count, latency and
// concurrency on meter. The request counter carries the tenant and the API
// error code so queue-full rejections show up per tenant; the latency
// histogram only carries method and route.
//
// Health probes and the metrics scrape are not recorded.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		if skipPath(c.Request.URL.Path, []string{"/metrics"}, []string{"/health"}) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		start := time.Now()
		m.activeRequests.Add(ctx, 1)

		c.Next()

		m.activeRequests.Add(ctx, -1)

		base := []attribute.KeyValue{
			attrHTTPMethod.String(c.Request.Method),
			attrHTTPRoute.String(routePattern(c)),
		}
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(base...))

		attrs := make([]attribute.KeyValue, 0, 5)
		attrs = append(attrs, base...)
		attrs = append(attrs, attrHTTPStatus.Int(c.Writer.Status()))
		if tenantID := getTenantID(c); tenantID != "" {
			attrs = append(attrs, telemetry.AttrTenantID.String(tenantID))
		}
		if code := c.GetString(ErrorCodeKey); code != "" {
			attrs = append(attrs, attrErrorCode.String(code))
		}
		m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}, nil
}

// routePattern returns the matched route so paths with order numbers do not
// explode cardinality
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}
