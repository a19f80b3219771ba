package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRestTestConnector(t *testing.T, options map[string]string, handler http.HandlerFunc) *RestConnector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conn, err := NewRestFactory()(context.Background(), erp.NewTenantContext(uuid.New()), &erp.TenantErpConfig{
		TenantID: uuid.New(),
		ErpType:  erp.ErpTypeRest,
		BaseURL:  server.URL + "/",
		APIKey:   "token",
		Options:  options,
	})
	require.NoError(t, err)
	return conn.(*RestConnector)
}

func TestNewRestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewRestConfig(&erp.TenantErpConfig{BaseURL: "http://erp.local/"})
		require.NoError(t, err)
		assert.Equal(t, "http://erp.local", cfg.BaseURL)
		assert.Equal(t, DefaultRestTimeout, cfg.Timeout)
		assert.Equal(t, erp.CapabilityArticles|erp.CapabilityCustomers|erp.CapabilityOrders, cfg.Capabilities)
		assert.Equal(t, "/articles", cfg.Mappings["articles"].Path)
	})

	t.Run("missing base url", func(t *testing.T) {
		_, err := NewRestConfig(&erp.TenantErpConfig{})
		assert.ErrorIs(t, err, ErrRestConfigMissingBaseURL)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := NewRestConfig(&erp.TenantErpConfig{
			BaseURL: "http://erp.local",
			Options: map[string]string{"articles.items": "data[?"},
		})
		assert.ErrorIs(t, err, erp.ErrInvalidArgument)
	})

	t.Run("unknown capability", func(t *testing.T) {
		_, err := NewRestConfig(&erp.TenantErpConfig{
			BaseURL: "http://erp.local",
			Options: map[string]string{"capabilities": "articles,teleport"},
		})
		assert.ErrorIs(t, err, erp.ErrInvalidArgument)
	})
}

func TestRestConnector_DefaultShape(t *testing.T) {
	c := newRestTestConnector(t, nil, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "/customers", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("page_size"))
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"number": "K-1", "name": "ACME", "email": "info@acme.test", "active": true, "updated_at": "2024-01-02T03:04:05Z"},
				{"number": 42, "name": "Numeric", "active": "blocked"},
			},
			"has_more": false,
		})
	})

	page, err := c.GetCustomers(context.Background(), erp.CustomerQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "K-1", page.Items[0].Number)
	assert.Equal(t, "info@acme.test", page.Items[0].Email)
	assert.True(t, page.Items[0].Active)
	assert.Equal(t, 2024, page.Items[0].UpdatedAt.Year())
	assert.Equal(t, "42", page.Items[1].Number)
	assert.False(t, page.Items[1].Active)
	assert.False(t, page.HasMore)
}

func TestRestConnector_MappedShape(t *testing.T) {
	options := map[string]string{
		"articles.path":        "/v2/products",
		"articles.items":       "result.records",
		"articles.has_more":    "result.paging.next != `null`",
		"articles.number":      "sku",
		"articles.description": "texts.de",
		"articles.price":       "pricing.net",
		"articles.active":      "state == 'active'",
		"page_param":           "p",
	}
	c := newRestTestConnector(t, options, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/products", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("p"))
		_, _ = w.Write([]byte(`{"result":{
			"records":[{"sku":"P-1","texts":{"de":"Hammer"},"pricing":{"net":"19.90"},"state":"active"}],
			"paging":{"next":"/v2/products?p=4"}
		}}`))
	})

	page, err := c.GetArticles(context.Background(), erp.ArticleQuery{PageQuery: erp.PageQuery{Page: 3}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "P-1", page.Items[0].Number)
	assert.Equal(t, "Hammer", page.Items[0].Description)
	assert.True(t, page.Items[0].Price.Equal(decimal.RequireFromString("19.90")))
	assert.True(t, page.Items[0].Active)
	assert.True(t, page.HasMore)
}

func TestRestConnector_ItemsNotAnArray(t *testing.T) {
	c := newRestTestConnector(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":{"number":"A"}}`))
	})
	_, err := c.GetArticles(context.Background(), erp.ArticleQuery{})
	assert.ErrorIs(t, err, erp.ErrConnector)
}

func TestRestConnector_Orders(t *testing.T) {
	c := newRestTestConnector(t, nil, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "CONFIRMED", r.URL.Query().Get("status"))
			writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{{
				"number": "O-1", "status": "confirmed",
				"lines": []map[string]any{{"article_number": "A", "quantity": 2, "unit_price": 1.5}},
			}}})
		case http.MethodPost:
			var req erp.CreateOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			writeJSON(w, http.StatusCreated, map[string]any{"number": "O-2", "external_ref": req.ExternalRef, "status": "OPEN"})
		case http.MethodPatch:
			assert.Equal(t, "/orders/O-2", r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]any{"number": "O-2", "status": "SHIPPED"})
		}
	})

	status := erp.OrderStatusConfirmed
	page, err := c.GetOrders(context.Background(), erp.OrderQuery{Status: &status})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, erp.OrderStatusConfirmed, page.Items[0].Status)
	assert.True(t, page.Items[0].Total.Equal(decimal.NewFromInt(3)))

	created, err := c.CreateOrder(context.Background(), &erp.CreateOrderRequest{
		ExternalRef:    "REF-1",
		CustomerNumber: "K-1",
		Lines:          []erp.OrderLine{{ArticleNumber: "A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.Zero}},
	})
	require.NoError(t, err)
	assert.Equal(t, "O-2", created.Number)
	assert.Equal(t, "REF-1", created.ExternalRef)

	updated, err := c.UpdateOrder(context.Background(), &erp.UpdateOrderRequest{Number: "O-2", Status: erp.OrderStatusShipped})
	require.NoError(t, err)
	assert.Equal(t, erp.OrderStatusShipped, updated.Status)
}

func TestRestConnector_ReadOnlyTenant(t *testing.T) {
	c := newRestTestConnector(t, map[string]string{"capabilities": "articles,customers"}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	assert.False(t, c.Capabilities().Has(erp.CapabilityOrders))

	_, err := c.UpdateOrder(context.Background(), &erp.UpdateOrderRequest{Number: "O-1", Status: erp.OrderStatusShipped})
	assert.ErrorIs(t, err, erp.ErrUnsupportedOperation)
}

func TestRestConnector_TestConnection(t *testing.T) {
	c := newRestTestConnector(t, map[string]string{"health.path": "/status"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"version": "2.1.0", "status": "ok"})
	})
	result, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "2.1.0", result.ServerVersion)

	failing := newRestTestConnector(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	result, err = failing.TestConnection(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "503")
}
