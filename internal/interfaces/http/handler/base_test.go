package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/erp/connector/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withTenant stands in for TenantMiddleware
func withTenant(tenant erp.TenantContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.TenantIDKey, tenant.TenantID.String())
		c.Set(middleware.TenantContextKey, tenant)
		c.Next()
	}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(middleware.RequestIDKey, "req-1")
	return c, w
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryable  bool
		retryAfter bool
	}{
		{"queue full", fmt.Errorf("tenant t: %w", erp.ErrQueueFull),
			http.StatusServiceUnavailable, dto.ErrCodeQueueFull, true, true},
		{"pool shutdown", erp.ErrPoolShutdown,
			http.StatusServiceUnavailable, dto.ErrCodePoolShutdown, false, true},
		{"timeout", erp.ErrTimeout, http.StatusGatewayTimeout, dto.ErrCodeTimeout, true, false},
		{"cancelled", erp.ErrCancelled, dto.StatusClientClosedRequest, dto.ErrCodeCancelled, false, false},
		{"connector", erp.NewConnectorError(erp.ErpTypeRest, "GetArticles", errors.New("502 from upstream"), true),
			http.StatusBadGateway, dto.ErrCodeConnector, true, false},
		{"unsupported operation", erp.ErrUnsupportedOperation,
			http.StatusUnprocessableEntity, dto.ErrCodeUnsupportedOperation, false, false},
		{"tenant not configured", erp.ErrTenantNotConfigured,
			http.StatusNotFound, dto.ErrCodeTenantNotConfigured, false, false},
		{"duplicate order", erp.ErrDuplicateOrder, http.StatusConflict, dto.ErrCodeDuplicateOrder, false, false},
		{"invalid argument", erp.ErrInvalidArgument, http.StatusBadRequest, dto.ErrCodeValidation, false, false},
	}

	h := &BaseHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			assert.Equal(t, tt.code, c.GetString(middleware.ErrorCodeKey))

			if tt.retryAfter {
				assert.Equal(t, retryAfterSeconds, w.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestBaseHandler_HandleError_MasksUnknown(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.HandleError(c, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "password")
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.HandleError(c, nil)

	assert.False(t, c.Writer.Written())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBaseHandler_SuccessWithMeta(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.SuccessWithMeta(c, []string{"a"}, 2, 50, true)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, 50, resp.Meta.PageSize)
	assert.True(t, resp.Meta.HasMore)
}

func TestBaseHandler_Error(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSchedulerBusy, "busy")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, retryAfterSeconds, w.Header().Get("Retry-After"))
	assert.Equal(t, dto.ErrCodeSchedulerBusy, decodeResponse(t, w).Error.Code)
}

func TestBaseHandler_TenantContext(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext()
	_, ok := h.tenantContext(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tenant := erp.NewTenantContext(uuid.New())
	c, _ = newTestContext()
	c.Set(middleware.TenantContextKey, tenant)
	got, ok := h.tenantContext(c)
	assert.True(t, ok)
	assert.Equal(t, tenant, got)
}
