package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tenantEcho struct {
	tenant  erp.TenantContext
	timeout time.Duration
	called  bool
}

func newTenantRouter(cfg TenantMiddlewareConfig, withAuth bool) (*gin.Engine, *tenantEcho) {
	echo := &tenantEcho{}
	router := gin.New()
	router.Use(RequestID())
	if withAuth {
		router.Use(JWTAuthMiddleware(newTestJWTService()))
	}
	router.Use(TenantMiddleware(cfg))
	router.GET("/api/v1/erp/articles", func(c *gin.Context) {
		echo.called = true
		echo.tenant, _ = GetTenantContext(c)
		echo.timeout = integration.OperationTimeout(c.Request.Context())
		c.Status(http.StatusOK)
	})
	router.GET("/health/ready", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router, echo
}

func TestTenantMiddleware_Header(t *testing.T) {
	cfg := DefaultTenantConfig()
	cfg.HeaderEnabled = true
	router, echo := newTenantRouter(cfg, false)
	tenantID := uuid.New()

	t.Run("tenant from header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
		req.Header.Set(TenantHeaderKey, tenantID.String())
		w := serve(router, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID, echo.tenant.TenantID)
		assert.Empty(t, echo.tenant.ErpHint)
		assert.Zero(t, echo.timeout)
	})

	t.Run("erp hint and timeout", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
		req.Header.Set(TenantHeaderKey, tenantID.String())
		req.Header.Set(ErpTypeHeaderKey, "sandbox")
		req.Header.Set(TimeoutHeaderKey, "45s")
		w := serve(router, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, erp.ErpTypeSandbox, echo.tenant.ErpHint)
		assert.Equal(t, 45*time.Second, echo.timeout)
	})

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		code    string
	}{
		{"missing tenant", nil, http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"malformed tenant", map[string]string{TenantHeaderKey: "acme"}, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"nil tenant", map[string]string{TenantHeaderKey: uuid.Nil.String()}, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"unknown erp type", map[string]string{TenantHeaderKey: tenantID.String(), ErpTypeHeaderKey: "sap"},
			http.StatusUnprocessableEntity, dto.ErrCodeUnsupportedErpType},
		{"bad timeout", map[string]string{TenantHeaderKey: tenantID.String(), TimeoutHeaderKey: "soon"},
			http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"timeout above cap", map[string]string{TenantHeaderKey: tenantID.String(), TimeoutHeaderKey: "1h"},
			http.StatusBadRequest, dto.ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			echo.called = false
			req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := serve(router, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
			assert.False(t, echo.called)
		})
	}

	t.Run("health skips tenant", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTenantMiddleware_HeaderDisabled(t *testing.T) {
	router, echo := newTenantRouter(DefaultTenantConfig(), false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
	req.Header.Set(TenantHeaderKey, uuid.NewString())
	w := serve(router, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, echo.called)
}

func TestTenantMiddleware_JWT(t *testing.T) {
	svc := newTestJWTService()
	router, echo := newTenantRouter(DefaultTenantConfig(), true)
	tenantID := uuid.New()
	token := issueToken(t, svc, tenantID)

	t.Run("tenant from token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		w := serve(router, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID, echo.tenant.TenantID)
	})

	t.Run("header may repeat the token tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		req.Header.Set(TenantHeaderKey, tenantID.String())
		assert.Equal(t, http.StatusOK, serve(router, req).Code)
	})

	t.Run("header naming another tenant is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		req.Header.Set(TenantHeaderKey, uuid.NewString())
		w := serve(router, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeForbidden, decodeError(t, w).Code)
	})
}
