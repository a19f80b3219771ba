package connectors

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRetryConfig wraps every resolved connector in a RetryingConnector
func WithRetryConfig(cfg RetryConfig) RegistryOption {
	return func(r *Registry) {
		r.retry = &cfg
	}
}

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

type cacheKey struct {
	tenantID uuid.UUID
	erpType  erp.ErpType
}

// Registry maps ERP types to connector factories and resolves the connector of
// a tenant. It is populated once at startup.
type Registry struct {
	configs erp.TenantConfigProvider
	retry   *RetryConfig
	logger  *zap.Logger

	mu        sync.RWMutex
	factories map[erp.ErpType]erp.ConnectorFactory
	cache     map[cacheKey]erp.Connector
}

// NewRegistry creates an empty registry backed by the given tenant configuration
func NewRegistry(configs erp.TenantConfigProvider, opts ...RegistryOption) *Registry {
	r := &Registry{
		configs:   configs,
		logger:    zap.NewNop(),
		factories: make(map[erp.ErpType]erp.ConnectorFactory),
		cache:     make(map[cacheKey]erp.Connector),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("connector_registry")
	return r
}

// NewDefaultRegistry registers the built-in enventa, REST and sandbox connectors
func NewDefaultRegistry(configs erp.TenantConfigProvider, opts ...RegistryOption) (*Registry, error) {
	r := NewRegistry(configs, opts...)
	for erpType, factory := range map[erp.ErpType]erp.ConnectorFactory{
		erp.ErpTypeEnventa: NewEnventaFactory(),
		erp.ErpTypeRest:    NewRestFactory(),
		erp.ErpTypeSandbox: NewSandboxFactory(),
	} {
		if err := r.Register(erpType, factory); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds the factory for an ERP type. A second registration for the
// same type fails with ErrDuplicateRegistration.
func (r *Registry) Register(erpType erp.ErpType, factory erp.ConnectorFactory) error {
	if !erpType.IsValid() {
		return fmt.Errorf("%w: unknown ERP type %q", erp.ErrInvalidArgument, erpType)
	}
	if factory == nil {
		return fmt.Errorf("%w: factory for %s is nil", erp.ErrInvalidArgument, erpType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[erpType]; exists {
		return fmt.Errorf("%w: %s", erp.ErrDuplicateRegistration, erpType)
	}
	r.factories[erpType] = factory
	return nil
}

// IsRegistered reports whether a factory exists for erpType
func (r *Registry) IsRegistered(erpType erp.ErpType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[erpType]
	return ok
}

// Types returns the registered ERP types, sorted
func (r *Registry) Types() []erp.ErpType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]erp.ErpType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Resolve returns the connector of a tenant, creating it on first use
func (r *Registry) Resolve(ctx context.Context, tenant erp.TenantContext) (erp.Connector, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	cfg, err := r.configs.GetTenantConfig(ctx, tenant.TenantID)
	if err != nil {
		return nil, err
	}

	erpType := cfg.ErpType
	if tenant.ErpHint != "" && tenant.ErpHint != cfg.ErpType {
		if !cfg.AllowHint {
			return nil, fmt.Errorf("%w: tenant %s is configured for %s and does not allow %s",
				erp.ErrUnsupportedErpType, tenant.TenantID, cfg.ErpType, tenant.ErpHint)
		}
		erpType = tenant.ErpHint
	}

	key := cacheKey{tenantID: tenant.TenantID, erpType: erpType}
	r.mu.RLock()
	conn, ok := r.cache[key]
	factory, registered := r.factories[erpType]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}
	if !registered {
		return nil, fmt.Errorf("%w: no connector registered for %s", erp.ErrUnsupportedErpType, erpType)
	}

	// factories do no I/O, so building outside the lock and discarding the
	// loser of a race is fine
	hinted := *cfg
	hinted.ErpType = erpType
	conn, err = factory(ctx, tenant, &hinted)
	if err != nil {
		return nil, err
	}
	conn = r.decorate(conn, &hinted)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[key]; ok {
		return existing, nil
	}
	r.cache[key] = conn

	r.logger.Info("Connector created",
		zap.String("tenant_id", tenant.TenantID.String()),
		zap.String("erp_type", string(erpType)),
		zap.String("capabilities", conn.Capabilities().String()))
	return conn, nil
}

func (r *Registry) decorate(conn erp.Connector, cfg *erp.TenantErpConfig) erp.Connector {
	// rate limiting sits inside retry so every attempt pays for a token
	if cfg.RateLimit > 0 {
		conn = NewRateLimitedConnector(conn, cfg.RateLimit, cfg.Burst)
	}
	if r.retry != nil && r.retry.MaxAttempts > 1 {
		conn = NewRetryingConnector(conn, *r.retry, r.logger)
	}
	return conn
}

// Invalidate drops the cached connectors of a tenant, e.g. after its configuration changed
func (r *Registry) Invalidate(tenantID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if key.tenantID == tenantID {
			delete(r.cache, key)
		}
	}
}

// InvalidateAll drops every cached connector
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}
