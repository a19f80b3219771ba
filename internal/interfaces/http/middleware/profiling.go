package middleware

import (
	"context"
	"strings"

	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. All of them are low cardinality except the tenant.
const (
	ProfilingLabelMethod   = "method"
	ProfilingLabelRoute    = "route"
	ProfilingLabelResource = "resource"
	ProfilingLabelTenantID = "tenant_id"
	ProfilingLabelErpType  = "erp_type"
)

// Profiling tags CPU and allocation samples taken while a request runs with
// its route, tenant and ERP type, so a slow tenant shows up in the
// flamegraph. Run it after TenantMiddleware; the actor goroutine that
// executes the operation is not covered.
func Profiling() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipPath(c.Request.URL.Path, []string{"/metrics"}, []string{"/health"}) {
			c.Next()
			return
		}

		pyroscope.TagWrapper(c.Request.Context(), pyroscope.Labels(profilingLabels(c)...), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// profilingLabels returns key/value pairs for pyroscope.Labels
func profilingLabels(c *gin.Context) []string {
	labels := []string{ProfilingLabelMethod, c.Request.Method}

	if route := c.FullPath(); route != "" {
		labels = append(labels, ProfilingLabelRoute, route)
		if resource := resourceFromRoute(route); resource != "" {
			labels = append(labels, ProfilingLabelResource, resource)
		}
	}
	if tenantID := getTenantID(c); tenantID != "" {
		labels = append(labels, ProfilingLabelTenantID, tenantID)
	}
	if erpType := c.GetString(logger.GinErpTypeKey); erpType != "" {
		labels = append(labels, ProfilingLabelErpType, erpType)
	}
	return labels
}

// resourceFromRoute returns the first static segment after the API prefix.
// "/api/v1/erp/orders/:number" gives "orders".
func resourceFromRoute(route string) string {
	for _, part := range strings.Split(route, "/") {
		switch {
		case part == "", part == "api", part == "erp", isVersionSegment(part):
			continue
		case strings.HasPrefix(part, ":"), strings.HasPrefix(part, "*"):
			return ""
		default:
			return part
		}
	}
	return ""
}

// isVersionSegment reports whether segment looks like v1, v2, ...
func isVersionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
