// Package handler contains the HTTP handlers of the ERP connector gateway.
package handler

import (
	"net/http"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/erp/connector/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// retryAfterSeconds is sent with backpressure answers. An actor queue drains
// within seconds, so clients are asked to come back quickly.
const retryAfterSeconds = "1"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// tenantContext returns the tenant resolved by TenantMiddleware. It answers
// 401 itself when the middleware did not run.
func (h *BaseHandler) tenantContext(c *gin.Context) (erp.TenantContext, bool) {
	tenant, ok := middleware.GetTenantContext(c)
	if !ok {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Tenant identification required")
		return erp.TenantContext{}, false
	}
	return tenant, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, page, pageSize int, hasMore bool) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, page, pageSize, hasMore))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work queued in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.Set(middleware.ErrorCodeKey, code)
	if statusCode == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// ValidationError answers a failed ShouldBind call
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	c.Set(middleware.ErrorCodeKey, dto.ErrCodeValidation)
	middleware.HandleValidationError(c, err)
}

// HandleError classifies an error from the ERP services and answers with the
// matching status. Backpressure answers carry Retry-After; unclassified
// errors are logged and masked.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	resp, status := dto.NewErpErrorResponse(err, getRequestID(c))
	c.Set(middleware.ErrorCodeKey, resp.Error.Code)

	log := logger.L(c.Request.Context())
	switch {
	case resp.Error.Code == dto.ErrCodeInternal:
		log.Error("Unhandled error", zap.Error(err))
	case status >= http.StatusInternalServerError:
		log.Warn("ERP operation failed",
			zap.String("error_code", resp.Error.Code),
			zap.Error(err),
		)
	}

	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(status, resp)
}
