package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiling_Labels(t *testing.T) {
	cfg := DefaultTenantConfig()
	cfg.HeaderEnabled = true

	labels := make(map[string]string)
	router := gin.New()
	api := router.Group("/api/v1/erp", TenantMiddleware(cfg), Profiling())
	api.GET("/orders/:number", func(c *gin.Context) {
		pprof.ForLabels(c.Request.Context(), func(key, value string) bool {
			labels[key] = value
			return true
		})
		c.Status(http.StatusOK)
	})

	tenantID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/orders/SO-1", nil)
	req.Header.Set(TenantHeaderKey, tenantID)
	req.Header.Set(ErpTypeHeaderKey, "sandbox")
	w := serve(router, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, map[string]string{
		ProfilingLabelMethod:   http.MethodGet,
		ProfilingLabelRoute:    "/api/v1/erp/orders/:number",
		ProfilingLabelResource: "orders",
		ProfilingLabelTenantID: tenantID,
		ProfilingLabelErpType:  "SANDBOX",
	}, labels)
}

func TestProfiling_SkipsProbes(t *testing.T) {
	var labelled bool
	router := gin.New()
	router.Use(Profiling())
	router.GET("/health/ready", func(c *gin.Context) {
		_, labelled = pprof.Label(c.Request.Context(), ProfilingLabelMethod)
		c.Status(http.StatusOK)
	})

	serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.False(t, labelled)
}

func TestResourceFromRoute(t *testing.T) {
	tests := map[string]string{
		"/api/v1/erp/orders/:number": "orders",
		"/api/v1/erp/articles":       "articles",
		"/api/v1/erp/sync/runs/:id":  "sync",
		"/api/v2/erp/pool/stats":     "pool",
		"/api/v1/erp/:entity":        "",
		"":                           "",
		"/version":                   "version",
	}
	for route, want := range tests {
		assert.Equal(t, want, resourceFromRoute(route), route)
	}
}

func TestIsVersionSegment(t *testing.T) {
	assert.True(t, isVersionSegment("v1"))
	assert.True(t, isVersionSegment("V12"))
	assert.False(t, isVersionSegment("v"))
	assert.False(t, isVersionSegment("vx"))
	assert.False(t, isVersionSegment("orders"))
}
