package erp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// TenantContext
// ---------------------------------------------------------------------------

// TenantContext identifies the tenant an operation runs for.
// It is a value type and must not be changed after it is attached to an operation.
type TenantContext struct {
	TenantID uuid.UUID
	// ErpHint optionally asks for a specific connector type. It is honoured only
	// when the tenant configuration allows it.
	ErpHint ErpType
}

// NewTenantContext creates a tenant context without a hint
func NewTenantContext(tenantID uuid.UUID) TenantContext {
	return TenantContext{TenantID: tenantID}
}

// WithHint returns a copy carrying the given ERP type hint
func (tc TenantContext) WithHint(hint ErpType) TenantContext {
	tc.ErpHint = hint
	return tc
}

// Validate checks the tenant context
func (tc TenantContext) Validate() error {
	if tc.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidArgument)
	}
	if tc.ErpHint != "" && !tc.ErpHint.IsValid() {
		return unsupportedErpType(string(tc.ErpHint))
	}
	return nil
}

// String returns the tenant id, with the hint if set
func (tc TenantContext) String() string {
	if tc.ErpHint == "" {
		return tc.TenantID.String()
	}
	return tc.TenantID.String() + "/" + string(tc.ErpHint)
}

// ---------------------------------------------------------------------------
// Connector Port Interface
// ---------------------------------------------------------------------------

// Connector is the port every ERP adapter implements.
//
// Connectors are called by at most one goroutine per tenant through the actor
// pool, but the same connector may also be probed by TestConnection outside of
// the queue, so implementations must be safe for concurrent use.
type Connector interface {
	// ErpType returns the ERP type this connector talks to
	ErpType() ErpType

	// Capabilities returns the operations this connector supports
	Capabilities() Capabilities

	GetArticles(ctx context.Context, query ArticleQuery) (*Page[Article], error)
	GetCustomers(ctx context.Context, query CustomerQuery) (*Page[Customer], error)
	GetOrders(ctx context.Context, query OrderQuery) (*Page[Order], error)

	// CreateOrder creates an order. Implementations should treat ExternalRef as
	// an idempotency key where the ERP supports it.
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error)

	UpdateOrder(ctx context.Context, req *UpdateOrderRequest) (*Order, error)

	// TestConnection probes the ERP. It is not routed through the actor queue.
	TestConnection(ctx context.Context) (*ConnectionResult, error)
}

// ConnectorFactory builds a connector for a tenant from its configuration
type ConnectorFactory func(ctx context.Context, tenant TenantContext, cfg *TenantErpConfig) (Connector, error)

// ---------------------------------------------------------------------------
// Request validation
// ---------------------------------------------------------------------------

// Validate checks the parts of a create request struct tags cannot express
func (r *CreateOrderRequest) Validate() error {
	if len(r.Lines) == 0 {
		return fmt.Errorf("%w: order needs at least one line", ErrInvalidArgument)
	}
	for i, l := range r.Lines {
		if err := validateLine(i, l); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the parts of an update request struct tags cannot express
func (r *UpdateOrderRequest) Validate() error {
	if r.Number == "" {
		return fmt.Errorf("%w: order number is required", ErrInvalidArgument)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid order status %q", ErrInvalidArgument, r.Status)
	}
	if r.Status == "" && len(r.Lines) == 0 {
		return fmt.Errorf("%w: nothing to update", ErrInvalidArgument)
	}
	for i, l := range r.Lines {
		if err := validateLine(i, l); err != nil {
			return err
		}
	}
	return nil
}

func validateLine(i int, l OrderLine) error {
	if l.ArticleNumber == "" {
		return fmt.Errorf("%w: line %d: article number is required", ErrInvalidArgument, i+1)
	}
	if !l.Quantity.IsPositive() {
		return fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidArgument, i+1)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: line %d: unit price must not be negative", ErrInvalidArgument, i+1)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tenant configuration
// ---------------------------------------------------------------------------

// TenantErpConfig is the ERP connection configuration of one tenant
type TenantErpConfig struct {
	TenantID uuid.UUID `yaml:"tenant_id"`
	ErpType  ErpType   `yaml:"erp_type"`
	BaseURL  string    `yaml:"base_url"`
	APIKey   string    `yaml:"api_key"`
	Username string    `yaml:"username"`
	Password string    `yaml:"password"`
	// Timeout is the HTTP client timeout of the connector (not the operation timeout)
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is the maximum requests per second against the ERP; 0 disables limiting
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	// AllowHint lets callers pick another registered connector via TenantContext.ErpHint
	AllowHint bool `yaml:"allow_hint"`
	// SyncInterval enables scheduled delta syncs; 0 disables them
	SyncInterval time.Duration `yaml:"sync_interval"`
	// Options carries connector specific settings
	Options map[string]string `yaml:"options"`
}

// Option returns a connector option or the fallback
func (c *TenantErpConfig) Option(key, fallback string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Validate checks the configuration
func (c *TenantErpConfig) Validate() error {
	if c.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidArgument)
	}
	if !c.ErpType.IsValid() {
		return unsupportedErpType(string(c.ErpType))
	}
	if c.ErpType != ErpTypeSandbox && c.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required for %s", ErrInvalidArgument, c.ErpType)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidArgument)
	}
	return nil
}

// TenantConfigProvider looks up tenant ERP configuration
type TenantConfigProvider interface {
	// GetTenantConfig returns ErrTenantNotConfigured when the tenant is unknown
	GetTenantConfig(ctx context.Context, tenantID uuid.UUID) (*TenantErpConfig, error)

	// ListTenants returns all configured tenant ids
	ListTenants(ctx context.Context) ([]uuid.UUID, error)
}
