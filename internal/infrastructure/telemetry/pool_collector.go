package telemetry

import (
	"net/http"

	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolStatsSource is implemented by *actor.ActorPool
type PoolStatsSource interface {
	Stats() actor.PoolStats
}

// PoolCollector exposes actor pool snapshots to Prometheus. Values are read
// from the pool on every scrape, so nothing is cached between scrapes.
type PoolCollector struct {
	source PoolStatsSource

	actors       *prometheus.Desc
	maxActors    *prometheus.Desc
	closed       *prometheus.Desc
	queueDepth   *prometheus.Desc
	queueCap     *prometheus.Desc
	inFlight     *prometheus.Desc
	processed    *prometheus.Desc
	failed       *prometheus.Desc
	timedOut     *prometheus.Desc
	cancelled    *prometheus.Desc
	lastActivity *prometheus.Desc
}

// NewPoolCollector creates a collector over source
func NewPoolCollector(source PoolStatsSource) *PoolCollector {
	tenant := []string{"tenant_id"}
	return &PoolCollector{
		source:       source,
		actors:       prometheus.NewDesc("erp_actor_pool_actors", "Running tenant actors.", nil, nil),
		maxActors:    prometheus.NewDesc("erp_actor_pool_max_actors", "Configured actor limit, 0 when unbounded.", nil, nil),
		closed:       prometheus.NewDesc("erp_actor_pool_closed", "1 once the pool has shut down.", nil, nil),
		queueDepth:   prometheus.NewDesc("erp_actor_queue_depth", "Pending operations per tenant.", tenant, nil),
		queueCap:     prometheus.NewDesc("erp_actor_queue_capacity", "Mailbox capacity per tenant.", tenant, nil),
		inFlight:     prometheus.NewDesc("erp_actor_in_flight", "1 while the tenant actor executes an operation.", tenant, nil),
		processed:    prometheus.NewDesc("erp_actor_operations_processed_total", "Operations executed per tenant.", tenant, nil),
		failed:       prometheus.NewDesc("erp_actor_operations_failed_total", "Operations that returned an error per tenant.", tenant, nil),
		timedOut:     prometheus.NewDesc("erp_actor_operations_timed_out_total", "Operations that exceeded their timeout per tenant.", tenant, nil),
		cancelled:    prometheus.NewDesc("erp_actor_operations_cancelled_total", "Operations cancelled by their caller per tenant.", tenant, nil),
		lastActivity: prometheus.NewDesc("erp_actor_last_activity_timestamp_seconds", "Unix time of the last operation per tenant.", tenant, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.actors, c.maxActors, c.closed, c.queueDepth, c.queueCap, c.inFlight,
		c.processed, c.failed, c.timedOut, c.cancelled, c.lastActivity,
	} {
		ch <- d
	}
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.actors, prometheus.GaugeValue, float64(stats.ActorCount))
	ch <- prometheus.MustNewConstMetric(c.maxActors, prometheus.GaugeValue, float64(stats.MaxActors))
	ch <- prometheus.MustNewConstMetric(c.closed, prometheus.GaugeValue, boolValue(stats.Closed))

	for _, a := range stats.Actors {
		tenantID := a.TenantID.String()
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(a.QueueDepth), tenantID)
		ch <- prometheus.MustNewConstMetric(c.queueCap, prometheus.GaugeValue, float64(a.QueueCap), tenantID)
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, boolValue(a.InFlight), tenantID)
		ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(a.Processed), tenantID)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(a.Failed), tenantID)
		ch <- prometheus.MustNewConstMetric(c.timedOut, prometheus.CounterValue, float64(a.TimedOut), tenantID)
		ch <- prometheus.MustNewConstMetric(c.cancelled, prometheus.CounterValue, float64(a.Cancelled), tenantID)
		if !a.LastActivity.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastActivity, prometheus.GaugeValue,
				float64(a.LastActivity.UnixNano())/1e9, tenantID)
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a Prometheus registry with the Go runtime and process
// collectors plus the given collectors
func NewRegistry(cs ...prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	all := append([]prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}, cs...)
	for _, c := range all {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// MetricsHandler serves reg in the Prometheus exposition format
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
