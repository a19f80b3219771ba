package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/interfaces/http/handler"
	"github.com/erp/connector/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubErp struct{}

func (stubErp) Capabilities(context.Context, erp.TenantContext) (erp.ErpType, erp.Capabilities, error) {
	return erp.ErpTypeSandbox, erp.CapabilityArticles, nil
}

func (stubErp) TestConnection(context.Context, erp.TenantContext) (*erp.ConnectionResult, error) {
	return &erp.ConnectionResult{Success: true}, nil
}

func (stubErp) GetArticles(context.Context, erp.TenantContext, erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	return &erp.Page[erp.Article]{Page: 1, PageSize: 50}, nil
}

func (stubErp) GetCustomers(context.Context, erp.TenantContext, erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	return &erp.Page[erp.Customer]{Page: 1, PageSize: 50}, nil
}

func (stubErp) GetOrders(context.Context, erp.TenantContext, erp.OrderQuery) (*erp.Page[erp.Order], error) {
	return &erp.Page[erp.Order]{Page: 1, PageSize: 50}, nil
}

func (stubErp) CreateOrder(context.Context, erp.TenantContext, *erp.CreateOrderRequest) (*erp.Order, error) {
	return &erp.Order{}, nil
}

func (stubErp) UpdateOrder(context.Context, erp.TenantContext, *erp.UpdateOrderRequest) (*erp.Order, error) {
	return &erp.Order{}, nil
}

type stubSync struct{}

func (stubSync) Sync(context.Context, erp.TenantContext, erp.SyncEntity, erp.SyncKind) (*erp.SyncRun, error) {
	return nil, erp.ErrSyncInProgress
}

func (stubSync) GetRun(context.Context, uuid.UUID, uuid.UUID) (*erp.SyncRun, error) {
	return nil, erp.ErrSyncRunNotFound
}

func (stubSync) ListRuns(context.Context, uuid.UUID, int) ([]erp.SyncRun, error) {
	return nil, nil
}

func (stubSync) GetSnapshot(context.Context, uuid.UUID, uuid.UUID, bool) (*integration.Snapshot, error) {
	return nil, erp.ErrSnapshotNotFound
}

type stubPool struct{}

func (stubPool) IsClosed() bool                    { return false }
func (stubPool) Stats() actor.PoolStats            { return actor.PoolStats{MaxActors: 8} }
func (stubPool) PingContext(context.Context) error { return nil }

var testTenant = erp.NewTenantContext(uuid.MustParse("11111111-1111-1111-1111-111111111111"))

// withClaims stands in for the JWT and tenant middleware
func withClaims(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if scopes != nil {
			c.Set(middleware.JWTClaimsKey, &auth.Claims{TenantID: testTenant.TenantID.String(), Scopes: scopes})
		}
		c.Set(middleware.TenantIDKey, testTenant.TenantID.String())
		c.Set(middleware.TenantContextKey, testTenant)
		c.Next()
	}
}

func newTestEngine(scopes ...string) *gin.Engine {
	engine := gin.New()
	r := NewRouter(engine)
	r.Register(NewErpRoutes(ErpHandlers{
		Erp:  handler.NewErpHandler(stubErp{}),
		Sync: handler.NewSyncHandler(stubSync{}, nil),
		Pool: handler.NewPoolHandler(stubPool{}),
	}, withClaims(scopes...)))
	r.Setup()
	RegisterProbes(engine, handler.NewHealthHandler("test", stubPool{}, stubPool{}),
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}))
	return engine
}

func serve(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := serve(engine, http.MethodGet, "/api/v2/test/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/test/ping", "").Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("sync", "/sync")
		assert.Equal(t, "sync", g.Name())
		assert.Equal(t, "/sync", g.Prefix())
	})

	t.Run("methods", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")
		ok := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		g.GET("/item", ok).POST("/item", ok).PUT("/item", ok)
		g.RegisterRoutes(engine.Group("/api"))

		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut} {
			w := serve(engine, method, "/api/test/item", "")
			assert.Equal(t, http.StatusOK, w.Code, method)
			assert.Equal(t, method, w.Body.String())
		}
		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodDelete, "/api/test/item", "").Code)
	})

	t.Run("middleware order and subgroups", func(t *testing.T) {
		engine := gin.New()
		var trail []string
		mark := func(name string) gin.HandlerFunc {
			return func(c *gin.Context) {
				trail = append(trail, name)
				c.Next()
			}
		}

		g := NewDomainGroup("parent", "/parent").Use(mark("parent"))
		g.Group("child", "").Use(mark("child")).GET("/leaf", func(c *gin.Context) {
			trail = append(trail, "handler")
			c.Status(http.StatusNoContent)
		})
		g.RegisterRoutes(engine.Group(""))

		w := serve(engine, http.MethodGet, "/parent/leaf", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{"parent", "child", "handler"}, trail)
	})
}

func TestErpRoutes_Registered(t *testing.T) {
	engine := newTestEngine()

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, route := range []string{
		"GET /api/v1/erp/capabilities",
		"GET /api/v1/erp/connection",
		"GET /api/v1/erp/articles",
		"GET /api/v1/erp/customers",
		"GET /api/v1/erp/orders",
		"POST /api/v1/erp/orders",
		"PUT /api/v1/erp/orders/:number",
		"POST /api/v1/erp/sync/:entity",
		"GET /api/v1/erp/sync/runs",
		"GET /api/v1/erp/sync/runs/:id",
		"GET /api/v1/erp/sync/runs/:id/snapshot",
		"GET /api/v1/erp/sync/jobs",
		"GET /api/v1/erp/pool/stats",
		"GET /health/live",
		"GET /health/ready",
		"GET /metrics",
	} {
		assert.True(t, registered[route], route)
	}
}

func TestErpRoutes_ScopeEnforcement(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		method string
		path   string
		body   string
		status int
	}{
		{"read allowed", []string{auth.ScopeRead}, http.MethodGet, "/api/v1/erp/capabilities", "", http.StatusOK},
		{"read denied", []string{auth.ScopeSync}, http.MethodGet, "/api/v1/erp/articles", "", http.StatusForbidden},
		{"write denied to reader", []string{auth.ScopeRead}, http.MethodPut, "/api/v1/erp/orders/A-1",
			`{"status":"CONFIRMED"}`, http.StatusForbidden},
		{"sync denied to writer", []string{auth.ScopeWrite}, http.MethodPost, "/api/v1/erp/sync/articles", "",
			http.StatusForbidden},
		{"sync allowed", []string{auth.ScopeSync}, http.MethodGet, "/api/v1/erp/sync/runs", "", http.StatusOK},
		{"sync in progress", []string{auth.ScopeSync}, http.MethodPost, "/api/v1/erp/sync/articles", "",
			http.StatusConflict},
		{"ops denied by default scopes", auth.DefaultScopes, http.MethodGet, "/api/v1/erp/pool/stats", "",
			http.StatusForbidden},
		{"ops allowed", []string{auth.ScopeOps}, http.MethodGet, "/api/v1/erp/pool/stats", "", http.StatusOK},
		{"no claims passes", nil, http.MethodGet, "/api/v1/erp/pool/stats", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newTestEngine(tt.scopes...), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestErpRoutes_StaticBeforeParam(t *testing.T) {
	engine := newTestEngine(auth.ScopeSync)

	w := serve(engine, http.MethodGet, "/api/v1/erp/sync/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)

	w = serve(engine, http.MethodGet, "/api/v1/erp/sync/runs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterProbes(t *testing.T) {
	engine := newTestEngine()

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health/ready", "").Code)

	w := serve(engine, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())

	bare := gin.New()
	RegisterProbes(bare, handler.NewHealthHandler("test", stubPool{}, stubPool{}), nil)
	assert.Equal(t, http.StatusNotFound, serve(bare, http.MethodGet, "/metrics", "").Code)
}
