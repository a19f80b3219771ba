package handler

import (
	"context"
	"strings"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ErpOperations is the part of integration.ErpService the HTTP API uses
type ErpOperations interface {
	Capabilities(ctx context.Context, tenant erp.TenantContext) (erp.ErpType, erp.Capabilities, error)
	TestConnection(ctx context.Context, tenant erp.TenantContext) (*erp.ConnectionResult, error)
	GetArticles(ctx context.Context, tenant erp.TenantContext, query erp.ArticleQuery) (*erp.Page[erp.Article], error)
	GetCustomers(ctx context.Context, tenant erp.TenantContext, query erp.CustomerQuery) (*erp.Page[erp.Customer], error)
	GetOrders(ctx context.Context, tenant erp.TenantContext, query erp.OrderQuery) (*erp.Page[erp.Order], error)
	CreateOrder(ctx context.Context, tenant erp.TenantContext, req *erp.CreateOrderRequest) (*erp.Order, error)
	UpdateOrder(ctx context.Context, tenant erp.TenantContext, req *erp.UpdateOrderRequest) (*erp.Order, error)
}

// ErpHandler exposes the tenant's ERP through the actor pool
type ErpHandler struct {
	BaseHandler
	erpService ErpOperations
}

// NewErpHandler creates a new ErpHandler
func NewErpHandler(erpService ErpOperations) *ErpHandler {
	return &ErpHandler{erpService: erpService}
}

// GetCapabilities godoc
// @Summary      Get connector capabilities
// @Description  Returns the ERP type serving the tenant and what its connector supports
// @Tags         erp
// @Produce      json
// @Router       /erp/capabilities [get]
func (h *ErpHandler) GetCapabilities(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	erpType, caps, err := h.erpService.Capabilities(c.Request.Context(), tenant)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewCapabilitiesResponse(tenant.TenantID, erpType, caps))
}

// TestConnection godoc
// @Summary      Test the ERP connection
// @Description  Runs a connection check on the tenant's actor. A failed check is a 200 with success=false.
// @Tags         erp
// @Produce      json
// @Router       /erp/connection [get]
func (h *ErpHandler) TestConnection(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	result, err := h.erpService.TestConnection(c.Request.Context(), tenant)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewConnectionResponse(result))
}

// ListArticles godoc
// @Summary      List articles
// @Tags         erp
// @Produce      json
// @Param        page            query  int     false  "Page number (1-based)"
// @Param        page_size       query  int     false  "Page size (max 500)"
// @Param        modified_since  query  string  false  "RFC 3339 timestamp"
// @Param        number          query  []string false "Article numbers"
// @Router       /erp/articles [get]
func (h *ErpHandler) ListArticles(c *gin.Context) {
	tenant, query, ok := bindList(h, c, dto.ListQuery.ArticleQuery)
	if !ok {
		return
	}

	page, err := h.erpService.GetArticles(c.Request.Context(), tenant, query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	writePage(h, c, page)
}

// ListCustomers godoc
// @Summary      List customers
// @Tags         erp
// @Produce      json
// @Router       /erp/customers [get]
func (h *ErpHandler) ListCustomers(c *gin.Context) {
	tenant, query, ok := bindList(h, c, dto.ListQuery.CustomerQuery)
	if !ok {
		return
	}

	page, err := h.erpService.GetCustomers(c.Request.Context(), tenant, query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	writePage(h, c, page)
}

// ListOrders godoc
// @Summary      List orders
// @Tags         erp
// @Produce      json
// @Param        customer_number  query  string  false  "Only orders of this customer"
// @Param        status           query  string  false  "Only orders in this status"
// @Router       /erp/orders [get]
func (h *ErpHandler) ListOrders(c *gin.Context) {
	tenant, query, ok := bindList(h, c, dto.ListQuery.OrderQuery)
	if !ok {
		return
	}

	page, err := h.erpService.GetOrders(c.Request.Context(), tenant, query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	writePage(h, c, page)
}

// CreateOrder godoc
// @Summary      Create an order
// @Description  Creates an order in the tenant's ERP. external_ref is the idempotency key;
// @Description  a repeated ref answers 409 ERR_ERP_DUPLICATE_ORDER.
// @Tags         erp
// @Accept       json
// @Produce      json
// @Router       /erp/orders [post]
func (h *ErpHandler) CreateOrder(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	order, err := h.erpService.CreateOrder(c.Request.Context(), tenant, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// UpdateOrder godoc
// @Summary      Update an order
// @Tags         erp
// @Accept       json
// @Produce      json
// @Param        number  path  string  true  "Order number"
// @Router       /erp/orders/{number} [put]
func (h *ErpHandler) UpdateOrder(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	number := strings.TrimSpace(c.Param("number"))
	if number == "" {
		h.BadRequest(c, "Order number is required")
		return
	}

	var req dto.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	order, err := h.erpService.UpdateOrder(c.Request.Context(), tenant, req.ToDomain(number))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// bindList binds the list query string and converts it with convert
func bindList[Q any](h *ErpHandler, c *gin.Context, convert func(dto.ListQuery) (Q, error)) (erp.TenantContext, Q, bool) {
	var zero Q
	tenant, ok := h.tenantContext(c)
	if !ok {
		return tenant, zero, false
	}

	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return tenant, zero, false
	}
	query, err := convert(q)
	if err != nil {
		h.HandleError(c, err)
		return tenant, zero, false
	}
	return tenant, query, true
}

func writePage[T any](h *ErpHandler, c *gin.Context, page *erp.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	h.SuccessWithMeta(c, items, page.Page, page.PageSize, page.HasMore)
}
