package connectors

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sandbox defaults
const (
	DefaultSandboxArticles  = 200
	DefaultSandboxCustomers = 50
	DefaultSandboxOrders    = 100
	SandboxServerVersion    = "sandbox-1.0.0"
)

// sandboxEpoch anchors generated timestamps so datasets are reproducible
var sandboxEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SandboxConfig configures the in-process fake ERP
type SandboxConfig struct {
	Seed      uint64
	Articles  int
	Customers int
	Orders    int
	// Latency is added to every call to make queueing visible in demos
	Latency time.Duration
}

// NewSandboxConfig reads the sandbox options of a tenant. The dataset is
// seeded from the tenant id, so a tenant always sees the same records.
func NewSandboxConfig(cfg *erp.TenantErpConfig) (*SandboxConfig, error) {
	c := &SandboxConfig{Seed: seedFromTenant(cfg.TenantID)}

	var err error
	if c.Articles, err = intOption(cfg, "articles", DefaultSandboxArticles); err != nil {
		return nil, err
	}
	if c.Customers, err = intOption(cfg, "customers", DefaultSandboxCustomers); err != nil {
		return nil, err
	}
	if c.Orders, err = intOption(cfg, "orders", DefaultSandboxOrders); err != nil {
		return nil, err
	}
	if v := cfg.Option("latency", ""); v != "" {
		if c.Latency, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("%w: option latency: %v", erp.ErrInvalidArgument, err)
		}
	}
	return c, nil
}

func intOption(cfg *erp.TenantErpConfig, key string, fallback int) (int, error) {
	v := cfg.Option(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: option %s must be a non-negative integer", erp.ErrInvalidArgument, key)
	}
	return n, nil
}

func seedFromTenant(id uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(id[:8])
}

// SandboxConnector is a deterministic in-memory ERP used for demos, local
// development and load tests
type SandboxConnector struct {
	config *SandboxConfig
	now    func() time.Time

	mu        sync.RWMutex
	articles  []erp.Article
	customers []erp.Customer
	orders    []erp.Order
	nextOrder int
}

// NewSandboxConnector creates a sandbox connector and generates its dataset
func NewSandboxConnector(config *SandboxConfig) *SandboxConnector {
	c := &SandboxConnector{config: config, now: time.Now}
	c.generate(gofakeit.New(config.Seed))
	return c
}

// NewSandboxFactory returns the registry factory for sandbox tenants
func NewSandboxFactory() erp.ConnectorFactory {
	return func(_ context.Context, _ erp.TenantContext, cfg *erp.TenantErpConfig) (erp.Connector, error) {
		config, err := NewSandboxConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewSandboxConnector(config), nil
	}
}

func (c *SandboxConnector) generate(f *gofakeit.Faker) {
	c.articles = make([]erp.Article, 0, c.config.Articles)
	for i := 0; i < c.config.Articles; i++ {
		c.articles = append(c.articles, erp.Article{
			Number:      fmt.Sprintf("ART-%05d", i+1),
			Description: f.ProductName(),
			Unit:        "ST",
			Price:       decimal.NewFromFloat(f.Price(0.5, 500)).Round(2),
			Stock:       decimal.NewFromInt(int64(f.Number(0, 5000))),
			Active:      f.Number(0, 19) != 0,
			UpdatedAt:   sandboxEpoch.Add(time.Duration(i) * time.Hour),
		})
	}

	c.customers = make([]erp.Customer, 0, c.config.Customers)
	for i := 0; i < c.config.Customers; i++ {
		c.customers = append(c.customers, erp.Customer{
			Number:    fmt.Sprintf("KD-%05d", i+1),
			Name:      f.Company(),
			Email:     f.Email(),
			VatID:     fmt.Sprintf("DE%09d", f.Number(100000000, 999999999)),
			Active:    true,
			UpdatedAt: sandboxEpoch.Add(time.Duration(i) * time.Hour),
		})
	}

	statuses := []erp.OrderStatus{
		erp.OrderStatusOpen, erp.OrderStatusConfirmed, erp.OrderStatusShipped,
		erp.OrderStatusInvoiced, erp.OrderStatusCancelled,
	}
	c.orders = make([]erp.Order, 0, c.config.Orders)
	if len(c.customers) == 0 || len(c.articles) == 0 {
		return
	}
	for i := 0; i < c.config.Orders; i++ {
		lines := make([]erp.OrderLine, f.Number(1, 4))
		for j := range lines {
			a := c.articles[f.Number(0, len(c.articles)-1)]
			lines[j] = erp.OrderLine{
				ArticleNumber: a.Number,
				Quantity:      decimal.NewFromInt(int64(f.Number(1, 20))),
				UnitPrice:     a.Price,
			}
		}
		ts := sandboxEpoch.Add(time.Duration(i) * 30 * time.Minute)
		c.orders = append(c.orders, erp.Order{
			Number:         c.orderNumber(),
			CustomerNumber: c.customers[f.Number(0, len(c.customers)-1)].Number,
			Status:         statuses[f.Number(0, len(statuses)-1)],
			Lines:          lines,
			Total:          erp.OrderTotal(lines),
			CreatedAt:      ts,
			UpdatedAt:      ts,
		})
	}
}

func (c *SandboxConnector) orderNumber() string {
	c.nextOrder++
	return fmt.Sprintf("SB-%06d", c.nextOrder)
}

// ErpType returns the ERP type this connector talks to
func (c *SandboxConnector) ErpType() erp.ErpType {
	return erp.ErpTypeSandbox
}

// Capabilities returns the operations this connector supports
func (c *SandboxConnector) Capabilities() erp.Capabilities {
	return erp.CapabilitiesAll
}

// GetArticles lists articles
func (c *SandboxConnector) GetArticles(ctx context.Context, query erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	if err := c.delay(ctx); err != nil {
		return nil, err
	}
	query.Normalize()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return paginate(c.articles, query.PageQuery, func(a erp.Article) bool {
		return matchesNumber(query.Numbers, a.Number) && modifiedAfter(query.ModifiedSince, a.UpdatedAt)
	}), nil
}

// GetCustomers lists customers
func (c *SandboxConnector) GetCustomers(ctx context.Context, query erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	if err := c.delay(ctx); err != nil {
		return nil, err
	}
	query.Normalize()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return paginate(c.customers, query.PageQuery, func(k erp.Customer) bool {
		return matchesNumber(query.Numbers, k.Number) && modifiedAfter(query.ModifiedSince, k.UpdatedAt)
	}), nil
}

// GetOrders lists orders
func (c *SandboxConnector) GetOrders(ctx context.Context, query erp.OrderQuery) (*erp.Page[erp.Order], error) {
	if err := c.delay(ctx); err != nil {
		return nil, err
	}
	query.Normalize()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return paginate(c.orders, query.PageQuery, func(o erp.Order) bool {
		if query.CustomerNumber != "" && o.CustomerNumber != query.CustomerNumber {
			return false
		}
		if query.Status != nil && o.Status != *query.Status {
			return false
		}
		return modifiedAfter(query.ModifiedSince, o.UpdatedAt)
	}), nil
}

// CreateOrder stores a new order; a repeated ExternalRef returns the existing order
func (c *SandboxConnector) CreateOrder(ctx context.Context, req *erp.CreateOrderRequest) (*erp.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.delay(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.orders {
		if c.orders[i].ExternalRef == req.ExternalRef {
			existing := c.orders[i]
			return &existing, nil
		}
	}
	if !slices.ContainsFunc(c.customers, func(k erp.Customer) bool { return k.Number == req.CustomerNumber }) {
		return nil, erp.NewConnectorError(erp.ErpTypeSandbox, "CreateOrder",
			fmt.Errorf("%w: customer %s", ErrRemoteNotFound, req.CustomerNumber), false)
	}

	now := c.now().UTC()
	order := erp.Order{
		Number:         c.orderNumber(),
		ExternalRef:    req.ExternalRef,
		CustomerNumber: req.CustomerNumber,
		Status:         erp.OrderStatusOpen,
		Lines:          slices.Clone(req.Lines),
		Total:          erp.OrderTotal(req.Lines),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.orders = append(c.orders, order)
	return &order, nil
}

// UpdateOrder changes an order unless it is final
func (c *SandboxConnector) UpdateOrder(ctx context.Context, req *erp.UpdateOrderRequest) (*erp.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.delay(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := slices.IndexFunc(c.orders, func(o erp.Order) bool { return o.Number == req.Number })
	if idx < 0 {
		return nil, erp.NewConnectorError(erp.ErpTypeSandbox, "UpdateOrder",
			fmt.Errorf("%w: order %s", ErrRemoteNotFound, req.Number), false)
	}
	order := &c.orders[idx]
	if order.Status.IsFinal() {
		return nil, erp.NewConnectorError(erp.ErpTypeSandbox, "UpdateOrder",
			fmt.Errorf("order %s is %s and cannot be changed", order.Number, order.Status), false)
	}

	if req.Status != "" {
		order.Status = req.Status
	}
	if len(req.Lines) > 0 {
		order.Lines = slices.Clone(req.Lines)
		order.Total = erp.OrderTotal(order.Lines)
	}
	order.UpdatedAt = c.now().UTC()

	updated := *order
	return &updated, nil
}

// TestConnection always succeeds
func (c *SandboxConnector) TestConnection(ctx context.Context) (*erp.ConnectionResult, error) {
	start := c.now()
	if err := c.delay(ctx); err != nil {
		return nil, err
	}
	return &erp.ConnectionResult{
		Success:       true,
		ServerVersion: SandboxServerVersion,
		Latency:       c.now().Sub(start),
		Message:       "sandbox",
		CheckedAt:     start,
	}, nil
}

func (c *SandboxConnector) delay(ctx context.Context) error {
	if c.config.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.config.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func paginate[T any](all []T, q erp.PageQuery, keep func(T) bool) *erp.Page[T] {
	page := &erp.Page[T]{Items: []T{}, Page: q.Page, PageSize: q.PageSize}
	skip := (q.Page - 1) * q.PageSize
	for _, item := range all {
		if !keep(item) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if len(page.Items) == q.PageSize {
			page.HasMore = true
			break
		}
		page.Items = append(page.Items, item)
	}
	return page
}

func matchesNumber(numbers []string, number string) bool {
	return len(numbers) == 0 || slices.Contains(numbers, number)
}

func modifiedAfter(since *time.Time, updated time.Time) bool {
	return since == nil || updated.After(*since)
}

var _ erp.Connector = (*SandboxConnector)(nil)
