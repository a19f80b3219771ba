package router

import (
	"net/http"

	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/interfaces/http/handler"
	"github.com/erp/connector/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/{version}
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one area of the API
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{
		name:   name,
		prefix: prefix,
	}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// PUT registers a PUT route
func (dg *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPut, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{
		method:   method,
		path:     path,
		handlers: handlers,
	})
	return dg
}

// Group creates a sub-group within this domain. An empty prefix shares the
// parent's path and only scopes middleware.
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar interface
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}

	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}

	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// ErpHandlers are the handlers mounted under /erp
type ErpHandlers struct {
	Erp  *handler.ErpHandler
	Sync *handler.SyncHandler
	Pool *handler.PoolHandler
}

// NewErpRoutes builds the /erp group. mw runs before the scope
// checks, so authentication and tenant resolution belong there.
func NewErpRoutes(h ErpHandlers, mw ...gin.HandlerFunc) *DomainGroup {
	erpRoutes := NewDomainGroup("erp", "/erp").Use(mw...)

	erpRoutes.Group("read", "").
		Use(middleware.RequireScope(auth.ScopeRead)).
		GET("/capabilities", h.Erp.GetCapabilities).
		GET("/connection", h.Erp.TestConnection).
		GET("/articles", h.Erp.ListArticles).
		GET("/customers", h.Erp.ListCustomers).
		GET("/orders", h.Erp.ListOrders)

	erpRoutes.Group("write", "").
		Use(middleware.RequireScope(auth.ScopeWrite)).
		POST("/orders", h.Erp.CreateOrder).
		PUT("/orders/:number", h.Erp.UpdateOrder)

	erpRoutes.Group("sync", "/sync").
		Use(middleware.RequireScope(auth.ScopeSync)).
		GET("/runs", h.Sync.ListRuns).
		GET("/runs/:id", h.Sync.GetRun).
		GET("/runs/:id/snapshot", h.Sync.GetSnapshot).
		GET("/jobs", h.Sync.ListJobs).
		POST("/:entity", h.Sync.TriggerSync)

	erpRoutes.Group("ops", "/pool").
		Use(middleware.RequireScope(auth.ScopeOps)).
		GET("/stats", h.Pool.GetStats)

	return erpRoutes
}

// RegisterProbes mounts the health probes and, when metrics is non-nil, the
// Prometheus scrape endpoint at the engine root.
func RegisterProbes(engine *gin.Engine, health *handler.HealthHandler, metrics http.Handler) {
	engine.GET("/health/live", health.Live)
	engine.GET("/health/ready", health.Ready)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}
}
