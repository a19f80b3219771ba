package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tenant context keys and headers
const (
	TenantIDKey      = logger.GinTenantIDKey
	TenantContextKey = "erp_tenant"
	TenantHeaderKey  = "X-Tenant-ID"
	ErpTypeHeaderKey = "X-Erp-Type"
	TimeoutHeaderKey = "X-Operation-Timeout"
)

// DefaultMaxOperationTimeout caps X-Operation-Timeout
const DefaultMaxOperationTimeout = 5 * time.Minute

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// HeaderEnabled accepts X-Tenant-ID. It must only be set when
	// authentication is disabled; with a token the header may only repeat
	// the token's tenant.
	HeaderEnabled bool
	// SkipPaths are paths that don't require tenant context (e.g., health check)
	SkipPaths []string
	// MaxOperationTimeout bounds the X-Operation-Timeout header
	MaxOperationTimeout time.Duration
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		HeaderEnabled:       false,
		SkipPaths:           []string{"/health", "/metrics"},
		MaxOperationTimeout: DefaultMaxOperationTimeout,
	}
}

// TenantMiddleware builds the erp.TenantContext of the request.
// The tenant comes from the JWT claim, or from X-Tenant-ID when header
// extraction is enabled. X-Erp-Type sets the connector hint and
// X-Operation-Timeout overrides the default operation timeout.
func TenantMiddleware(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	if cfg.MaxOperationTimeout <= 0 {
		cfg.MaxOperationTimeout = DefaultMaxOperationTimeout
	}

	return func(c *gin.Context) {
		if skipPath(c.Request.URL.Path, nil, cfg.SkipPaths) {
			c.Next()
			return
		}

		tenantID, ok := extractTenantID(c, cfg)
		if !ok {
			return
		}

		tenant := erp.NewTenantContext(tenantID)
		if hint := c.GetHeader(ErpTypeHeaderKey); hint != "" {
			erpType, err := erp.ParseErpType(hint)
			if err != nil {
				abortWithErpError(c, err)
				return
			}
			tenant = tenant.WithHint(erpType)
		}

		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		ctx, log = logger.WithTenantID(ctx, log, tenantID.String())
		if tenant.ErpHint != "" {
			ctx, _ = logger.WithErpType(ctx, log, tenant.ErpHint.String())
			c.Set(logger.GinErpTypeKey, tenant.ErpHint.String())
		}

		if raw := c.GetHeader(TimeoutHeaderKey); raw != "" {
			timeout, err := time.ParseDuration(raw)
			if err != nil || timeout <= 0 || timeout > cfg.MaxOperationTimeout {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeBadRequest,
					fmt.Sprintf("%s must be a duration between 0 and %s", TimeoutHeaderKey, cfg.MaxOperationTimeout),
					getRequestID(c),
				))
				return
			}
			ctx = integration.WithOperationTimeout(ctx, timeout)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Set(TenantIDKey, tenantID.String())
		c.Set(TenantContextKey, tenant)

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant identified",
				zap.String("tenant_id", tenantID.String()),
				zap.String("erp_hint", tenant.ErpHint.String()),
			)
		}

		c.Next()
	}
}

// extractTenantID aborts the request and returns false when no usable tenant
// is present
func extractTenantID(c *gin.Context, cfg TenantMiddlewareConfig) (uuid.UUID, bool) {
	header := c.GetHeader(TenantHeaderKey)

	if claimTenant := GetJWTTenantID(c); claimTenant != "" {
		id, err := uuid.Parse(claimTenant)
		if err != nil {
			respondTenantError(c, http.StatusUnauthorized, dto.ErrCodeTokenInvalid, "Invalid tenant in token")
			return uuid.Nil, false
		}
		if header != "" && header != claimTenant {
			respondTenantError(c, http.StatusForbidden, dto.ErrCodeForbidden, "Token is bound to another tenant")
			return uuid.Nil, false
		}
		return id, true
	}

	if !cfg.HeaderEnabled || header == "" {
		respondTenantError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Tenant identification required")
		return uuid.Nil, false
	}
	if !isValidTenantID(header) {
		respondTenantError(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Invalid tenant ID format")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(header)
	if err != nil || id == uuid.Nil {
		respondTenantError(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Invalid tenant ID format")
		return uuid.Nil, false
	}
	return id, true
}

func respondTenantError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

func abortWithErpError(c *gin.Context, err error) {
	resp, status := dto.NewErpErrorResponse(err, getRequestID(c))
	c.AbortWithStatusJSON(status, resp)
}

// GetTenantContext returns the tenant context set by TenantMiddleware
func GetTenantContext(c *gin.Context) (erp.TenantContext, bool) {
	if v, exists := c.Get(TenantContextKey); exists {
		if tenant, ok := v.(erp.TenantContext); ok {
			return tenant, true
		}
	}
	return erp.TenantContext{}, false
}

// GetTenantID returns the tenant ID string set by TenantMiddleware
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}
