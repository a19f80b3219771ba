package connectors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/shopspring/decimal"
)

// RestConnector talks to ERPs exposing a plain JSON API. Response shapes are
// mapped onto the domain model with JMESPath expressions from the tenant options.
type RestConnector struct {
	config *RestConfig
	client *jsonClient
}

// NewRestConnector creates a new REST connector
func NewRestConnector(config *RestConfig) *RestConnector {
	return &RestConnector{
		config: config,
		client: &jsonClient{
			erpType:    erp.ErpTypeRest,
			httpClient: &http.Client{Timeout: config.Timeout},
		},
	}
}

// NewRestFactory returns the registry factory for REST tenants
func NewRestFactory() erp.ConnectorFactory {
	return func(_ context.Context, _ erp.TenantContext, cfg *erp.TenantErpConfig) (erp.Connector, error) {
		config, err := NewRestConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewRestConnector(config), nil
	}
}

// ErpType returns the ERP type this connector talks to
func (c *RestConnector) ErpType() erp.ErpType {
	return erp.ErpTypeRest
}

// Capabilities returns the configured capabilities
func (c *RestConnector) Capabilities() erp.Capabilities {
	return c.config.Capabilities
}

// GetArticles lists articles
func (c *RestConnector) GetArticles(ctx context.Context, query erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	query.Normalize()
	records, hasMore, err := c.list(ctx, "GetArticles", "articles", query.PageQuery, query.Numbers, nil)
	if err != nil {
		return nil, err
	}

	page := &erp.Page[erp.Article]{Items: make([]erp.Article, 0, len(records)), Page: query.Page, PageSize: query.PageSize, HasMore: hasMore}
	for _, r := range records {
		page.Items = append(page.Items, erp.Article{
			Number:      asString(r["number"]),
			Description: asString(r["description"]),
			Unit:        asString(r["unit"]),
			Price:       asDecimal(r["price"]),
			Stock:       asDecimal(r["stock"]),
			Active:      asBool(r["active"], true),
			UpdatedAt:   asTime(r["updated_at"]),
		})
	}
	return page, nil
}

// GetCustomers lists customers
func (c *RestConnector) GetCustomers(ctx context.Context, query erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	query.Normalize()
	records, hasMore, err := c.list(ctx, "GetCustomers", "customers", query.PageQuery, query.Numbers, nil)
	if err != nil {
		return nil, err
	}

	page := &erp.Page[erp.Customer]{Items: make([]erp.Customer, 0, len(records)), Page: query.Page, PageSize: query.PageSize, HasMore: hasMore}
	for _, r := range records {
		page.Items = append(page.Items, erp.Customer{
			Number:    asString(r["number"]),
			Name:      asString(r["name"]),
			Email:     asString(r["email"]),
			VatID:     asString(r["vat_id"]),
			Active:    asBool(r["active"], true),
			UpdatedAt: asTime(r["updated_at"]),
		})
	}
	return page, nil
}

// GetOrders lists orders
func (c *RestConnector) GetOrders(ctx context.Context, query erp.OrderQuery) (*erp.Page[erp.Order], error) {
	query.Normalize()
	extra := url.Values{}
	if query.CustomerNumber != "" {
		extra.Set("customer_number", query.CustomerNumber)
	}
	if query.Status != nil {
		extra.Set("status", query.Status.String())
	}

	records, hasMore, err := c.list(ctx, "GetOrders", "orders", query.PageQuery, nil, extra)
	if err != nil {
		return nil, err
	}

	page := &erp.Page[erp.Order]{Items: make([]erp.Order, 0, len(records)), Page: query.Page, PageSize: query.PageSize, HasMore: hasMore}
	for _, r := range records {
		order, err := c.toOrder("GetOrders", r)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, order)
	}
	return page, nil
}

// CreateOrder posts the order in the connector's own JSON shape
func (c *RestConnector) CreateOrder(ctx context.Context, req *erp.CreateOrderRequest) (*erp.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.writeOrder(ctx, "CreateOrder", http.MethodPost, c.config.Mappings["orders"].Path, req)
}

// UpdateOrder patches the order
func (c *RestConnector) UpdateOrder(ctx context.Context, req *erp.UpdateOrderRequest) (*erp.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	path := c.config.Mappings["orders"].Path + "/" + url.PathEscape(req.Number)
	return c.writeOrder(ctx, "UpdateOrder", http.MethodPatch, path, req)
}

// TestConnection calls the health endpoint
func (c *RestConnector) TestConnection(ctx context.Context) (*erp.ConnectionResult, error) {
	start := time.Now()
	result := &erp.ConnectionResult{CheckedAt: start}

	body, err := c.client.do(ctx, "TestConnection", apiRequest{
		method:  http.MethodGet,
		url:     c.config.BaseURL + c.config.HealthPath,
		headers: c.headers(),
	})
	result.Latency = time.Since(start)
	if err != nil {
		result.Message = err.Error()
		return result, nil
	}

	var health struct {
		Version string `json:"version"`
		Status  string `json:"status"`
	}
	// health endpoints are not required to return JSON
	_ = json.Unmarshal(body, &health)
	result.Success = true
	result.ServerVersion = health.Version
	result.Message = health.Status
	return result, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (c *RestConnector) writeOrder(ctx context.Context, op, method, path string, payload any) (*erp.Order, error) {
	if !c.config.Capabilities.Has(erp.CapabilityOrders) {
		return nil, fmt.Errorf("%w: %s", erp.ErrUnsupportedOperation, op)
	}

	body, err := c.client.do(ctx, op, apiRequest{
		method:  method,
		url:     c.config.BaseURL + path,
		headers: c.headers(),
		body:    payload,
	})
	if err != nil {
		return nil, err
	}

	var doc any
	if err := c.client.decode(op, body, &doc); err != nil {
		return nil, err
	}
	record, err := project(c.config.Mappings["orders"], doc)
	if err != nil {
		return nil, erp.NewConnectorError(erp.ErpTypeRest, op, err, false)
	}
	order, err := c.toOrder(op, record)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// list fetches one page of an entity and projects its records
func (c *RestConnector) list(ctx context.Context, op, entity string, q erp.PageQuery, numbers []string, extra url.Values) ([]map[string]any, bool, error) {
	m := c.config.Mappings[entity]

	params := url.Values{}
	for k, v := range extra {
		params[k] = v
	}
	params.Set(c.config.PageParam, strconv.Itoa(q.Page))
	params.Set(c.config.PageSizeParam, strconv.Itoa(q.PageSize))
	if q.ModifiedSince != nil {
		params.Set(c.config.SinceParam, q.ModifiedSince.UTC().Format(time.RFC3339))
	}
	if len(numbers) > 0 {
		params.Set("numbers", strings.Join(numbers, ","))
	}

	body, err := c.client.do(ctx, op, apiRequest{
		method:  http.MethodGet,
		url:     c.config.BaseURL + m.Path + "?" + params.Encode(),
		headers: c.headers(),
	})
	if err != nil {
		return nil, false, err
	}

	var doc any
	if err := c.client.decode(op, body, &doc); err != nil {
		return nil, false, err
	}

	items, err := m.Items.Search(doc)
	if err != nil {
		return nil, false, erp.NewConnectorError(erp.ErpTypeRest, op, err, false)
	}
	list, ok := items.([]any)
	if !ok && items != nil {
		return nil, false, erp.NewConnectorError(erp.ErpTypeRest, op,
			fmt.Errorf("%s.items did not select an array", entity), false)
	}

	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		record, err := project(m, item)
		if err != nil {
			return nil, false, erp.NewConnectorError(erp.ErpTypeRest, op, err, false)
		}
		records = append(records, record)
	}

	hasMore, err := m.HasMore.Search(doc)
	if err != nil {
		return nil, false, erp.NewConnectorError(erp.ErpTypeRest, op, err, false)
	}
	return records, asBool(hasMore, false), nil
}

func (c *RestConnector) toOrder(op string, r map[string]any) (erp.Order, error) {
	order := erp.Order{
		Number:         asString(r["number"]),
		ExternalRef:    asString(r["external_ref"]),
		CustomerNumber: asString(r["customer_number"]),
		Status:         asOrderStatus(r["status"]),
		Total:          asDecimal(r["total"]),
		CreatedAt:      asTime(r["created_at"]),
		UpdatedAt:      asTime(r["updated_at"]),
	}

	lines, _ := r["lines"].([]any)
	order.Lines = make([]erp.OrderLine, 0, len(lines))
	for _, l := range lines {
		lr, err := project(c.config.Mappings["lines"], l)
		if err != nil {
			return erp.Order{}, erp.NewConnectorError(erp.ErpTypeRest, op, err, false)
		}
		order.Lines = append(order.Lines, erp.OrderLine{
			ArticleNumber: asString(lr["article_number"]),
			Quantity:      asDecimal(lr["quantity"]),
			UnitPrice:     asDecimal(lr["unit_price"]),
		})
	}
	if order.Total.IsZero() {
		order.Total = erp.OrderTotal(order.Lines)
	}
	return order, nil
}

func (c *RestConnector) headers() map[string]string {
	h := map[string]string{}
	switch {
	case c.config.Token != "":
		h["Authorization"] = "Bearer " + c.config.Token
	case c.config.Username != "":
		h["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(c.config.Username+":"+c.config.Password))
	}
	return h
}

// project evaluates every field expression of m against one record
func project(m *EntityMapping, record any) (map[string]any, error) {
	out := make(map[string]any, len(m.Fields))
	for name, expr := range m.Fields {
		v, err := expr.Search(record)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func asBool(v any, fallback bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(t) {
		case "true", "1", "yes", "active":
			return true
		case "false", "0", "no", "inactive", "blocked":
			return false
		}
	}
	return fallback
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, enventaTimeLayout, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func asOrderStatus(v any) erp.OrderStatus {
	s := erp.OrderStatus(strings.ToUpper(asString(v)))
	if s.IsValid() {
		return s
	}
	return erp.OrderStatusOpen
}

var _ erp.Connector = (*RestConnector)(nil)
