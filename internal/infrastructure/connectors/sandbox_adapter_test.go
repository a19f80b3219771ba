package connectors

import (
	"context"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSandbox(t *testing.T, tenantID uuid.UUID, options map[string]string) *SandboxConnector {
	t.Helper()
	conn, err := NewSandboxFactory()(context.Background(), erp.NewTenantContext(tenantID), &erp.TenantErpConfig{
		TenantID: tenantID,
		ErpType:  erp.ErpTypeSandbox,
		Options:  options,
	})
	require.NoError(t, err)
	return conn.(*SandboxConnector)
}

func TestNewSandboxConfig(t *testing.T) {
	tenantID := uuid.New()

	cfg, err := NewSandboxConfig(&erp.TenantErpConfig{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, DefaultSandboxArticles, cfg.Articles)
	assert.Equal(t, seedFromTenant(tenantID), cfg.Seed)

	cfg, err = NewSandboxConfig(&erp.TenantErpConfig{TenantID: tenantID, Options: map[string]string{"articles": "7", "latency": "15ms"}})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Articles)
	assert.Equal(t, 15*time.Millisecond, cfg.Latency)

	_, err = NewSandboxConfig(&erp.TenantErpConfig{TenantID: tenantID, Options: map[string]string{"customers": "-1"}})
	assert.ErrorIs(t, err, erp.ErrInvalidArgument)

	_, err = NewSandboxConfig(&erp.TenantErpConfig{TenantID: tenantID, Options: map[string]string{"latency": "soon"}})
	assert.ErrorIs(t, err, erp.ErrInvalidArgument)
}

func TestSandboxConnector_DeterministicPerTenant(t *testing.T) {
	tenantID := uuid.New()
	a := newSandbox(t, tenantID, nil)
	b := newSandbox(t, tenantID, nil)

	pa, err := a.GetArticles(context.Background(), erp.ArticleQuery{})
	require.NoError(t, err)
	pb, err := b.GetArticles(context.Background(), erp.ArticleQuery{})
	require.NoError(t, err)
	assert.Equal(t, pa.Items, pb.Items)
	assert.Len(t, pa.Items, erp.DefaultPageSize)
	assert.True(t, pa.HasMore)
}

func TestSandboxConnector_Paging(t *testing.T) {
	c := newSandbox(t, uuid.New(), map[string]string{"articles": "25"})

	var numbers []string
	for page := 1; ; page++ {
		p, err := c.GetArticles(context.Background(), erp.ArticleQuery{PageQuery: erp.PageQuery{Page: page, PageSize: 10}})
		require.NoError(t, err)
		for _, a := range p.Items {
			numbers = append(numbers, a.Number)
		}
		if !p.HasMore {
			assert.Equal(t, 3, page)
			break
		}
	}
	assert.Len(t, numbers, 25)
	assert.Equal(t, "ART-00001", numbers[0])
	assert.Equal(t, "ART-00025", numbers[24])
}

func TestSandboxConnector_Filters(t *testing.T) {
	c := newSandbox(t, uuid.New(), nil)

	since := sandboxEpoch.Add(9 * time.Hour)
	p, err := c.GetCustomers(context.Background(), erp.CustomerQuery{PageQuery: erp.PageQuery{ModifiedSince: &since}})
	require.NoError(t, err)
	assert.Len(t, p.Items, DefaultSandboxCustomers-10)

	p2, err := c.GetArticles(context.Background(), erp.ArticleQuery{Numbers: []string{"ART-00003", "ART-00009"}})
	require.NoError(t, err)
	require.Len(t, p2.Items, 2)
	assert.Equal(t, "ART-00009", p2.Items[1].Number)

	status := erp.OrderStatusShipped
	p3, err := c.GetOrders(context.Background(), erp.OrderQuery{PageQuery: erp.PageQuery{PageSize: erp.MaxPageSize}, Status: &status})
	require.NoError(t, err)
	for _, o := range p3.Items {
		assert.Equal(t, erp.OrderStatusShipped, o.Status)
		assert.True(t, o.Total.Equal(erp.OrderTotal(o.Lines)))
	}
}

func TestSandboxConnector_Orders(t *testing.T) {
	c := newSandbox(t, uuid.New(), map[string]string{"orders": "0"})
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	customers, err := c.GetCustomers(context.Background(), erp.CustomerQuery{})
	require.NoError(t, err)
	customer := customers.Items[0].Number

	req := &erp.CreateOrderRequest{
		ExternalRef:    "SHOP-77",
		CustomerNumber: customer,
		Lines:          []erp.OrderLine{{ArticleNumber: "ART-00001", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5)}},
	}
	first, err := c.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "SB-000001", first.Number)
	assert.Equal(t, erp.OrderStatusOpen, first.Status)
	assert.True(t, first.Total.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, fixed, first.CreatedAt)

	again, err := c.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Number, again.Number)

	_, err = c.CreateOrder(context.Background(), &erp.CreateOrderRequest{
		ExternalRef: "SHOP-78", CustomerNumber: "nobody", Lines: req.Lines,
	})
	assert.ErrorIs(t, err, ErrRemoteNotFound)
	assert.ErrorIs(t, err, erp.ErrConnector)

	updated, err := c.UpdateOrder(context.Background(), &erp.UpdateOrderRequest{Number: first.Number, Status: erp.OrderStatusInvoiced})
	require.NoError(t, err)
	assert.Equal(t, erp.OrderStatusInvoiced, updated.Status)

	_, err = c.UpdateOrder(context.Background(), &erp.UpdateOrderRequest{Number: first.Number, Status: erp.OrderStatusCancelled})
	assert.ErrorIs(t, err, erp.ErrConnector)

	_, err = c.UpdateOrder(context.Background(), &erp.UpdateOrderRequest{Number: "SB-999999", Status: erp.OrderStatusShipped})
	assert.ErrorIs(t, err, ErrRemoteNotFound)
}

func TestSandboxConnector_LatencyHonoursContext(t *testing.T) {
	c := newSandbox(t, uuid.New(), map[string]string{"latency": "1s", "articles": "1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.GetArticles(ctx, erp.ArticleQuery{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	result, err := newSandbox(t, uuid.New(), nil).TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, SandboxServerVersion, result.ServerVersion)
}
