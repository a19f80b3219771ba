package integration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Operation kinds, used as actor operation names and metric labels
const (
	OpGetArticles  = "get_articles"
	OpGetCustomers = "get_customers"
	OpGetOrders    = "get_orders"
	OpCreateOrder  = "create_order"
	OpUpdateOrder  = "update_order"
)

// DefaultIdempotencyTTL is how long an order external reference stays claimed
const DefaultIdempotencyTTL = 24 * time.Hour

// ConnectorResolver resolves the connector of a tenant
type ConnectorResolver interface {
	Resolve(ctx context.Context, tenant erp.TenantContext) (erp.Connector, error)
}

type timeoutKey struct{}

// WithOperationTimeout returns a context that asks the service to run its
// operations with timeout d instead of the pool default
func WithOperationTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

// OperationTimeout returns the timeout set by WithOperationTimeout, or 0
func OperationTimeout(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(timeoutKey{}).(time.Duration); ok {
		return d
	}
	return 0
}

// ErpServiceOption configures an ErpService
type ErpServiceOption func(*ErpService)

// WithIdempotencyStore deduplicates order creates by external reference
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) ErpServiceOption {
	return func(s *ErpService) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(l *zap.Logger) ErpServiceOption {
	return func(s *ErpService) {
		if l != nil {
			s.logger = l
		}
	}
}

// ErpService is the boundary API in front of the actor pool. Every connector
// call except TestConnection runs serialized on the tenant's actor.
type ErpService struct {
	pool           *actor.ActorPool
	resolver       ConnectorResolver
	validate       *validator.Validate
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewErpService creates a new ErpService
func NewErpService(pool *actor.ActorPool, resolver ConnectorResolver, opts ...ErpServiceOption) *ErpService {
	s := &ErpService{
		pool:           pool,
		resolver:       resolver,
		validate:       validator.New(),
		idempotencyTTL: DefaultIdempotencyTTL,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Capabilities returns the capabilities of the tenant's connector
func (s *ErpService) Capabilities(ctx context.Context, tenant erp.TenantContext) (erp.ErpType, erp.Capabilities, error) {
	conn, err := s.resolve(ctx, tenant)
	if err != nil {
		return "", 0, err
	}
	return conn.ErpType(), conn.Capabilities(), nil
}

// TestConnection probes the tenant's ERP directly, outside of the queue, so
// that a health check never waits behind a long sync
func (s *ErpService) TestConnection(ctx context.Context, tenant erp.TenantContext) (*erp.ConnectionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "erp", "test_connection", telemetry.AttrTenantID.String(tenant.TenantID.String()))
	defer span.End()

	conn, err := s.resolve(ctx, tenant)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	timeout := s.timeout(ctx)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := conn.TestConnection(callCtx)
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: connection test exceeded %s", erp.ErrTimeout, timeout)
		}
		return nil, err
	}
	return res, nil
}

// GetArticles reads one page of articles
func (s *ErpService) GetArticles(ctx context.Context, tenant erp.TenantContext, query erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	query.Normalize()
	return call(ctx, s, tenant, OpGetArticles, erp.CapabilityArticles,
		func(ctx context.Context, conn erp.Connector) (*erp.Page[erp.Article], error) {
			return conn.GetArticles(ctx, query)
		})
}

// GetCustomers reads one page of customers
func (s *ErpService) GetCustomers(ctx context.Context, tenant erp.TenantContext, query erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	query.Normalize()
	return call(ctx, s, tenant, OpGetCustomers, erp.CapabilityCustomers,
		func(ctx context.Context, conn erp.Connector) (*erp.Page[erp.Customer], error) {
			return conn.GetCustomers(ctx, query)
		})
}

// GetOrders reads one page of orders
func (s *ErpService) GetOrders(ctx context.Context, tenant erp.TenantContext, query erp.OrderQuery) (*erp.Page[erp.Order], error) {
	query.Normalize()
	if query.Status != nil && !query.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid order status %q", erp.ErrInvalidArgument, *query.Status)
	}
	return call(ctx, s, tenant, OpGetOrders, erp.CapabilityOrders,
		func(ctx context.Context, conn erp.Connector) (*erp.Page[erp.Order], error) {
			return conn.GetOrders(ctx, query)
		})
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// CreateOrder creates an order. A second create with the same external
// reference for the tenant fails with erp.ErrDuplicateOrder while the first
// claim is held.
func (s *ErpService) CreateOrder(ctx context.Context, tenant erp.TenantContext, req *erp.CreateOrderRequest) (*erp.Order, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := tenant.TenantID.String() + ":" + req.ExternalRef
	if s.idempotency != nil {
		claimed, err := s.idempotency.Claim(ctx, key, s.idempotencyTTL)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, fmt.Errorf("%w: %s", erp.ErrDuplicateOrder, req.ExternalRef)
		}
	}

	// started is taken by whichever comes first: the connector call or the
	// release below. A released claim never reaches the connector.
	var started atomic.Bool
	order, err := call(ctx, s, tenant, OpCreateOrder, erp.CapabilityOrders,
		func(ctx context.Context, conn erp.Connector) (*erp.Order, error) {
			if !started.CompareAndSwap(false, true) {
				return nil, fmt.Errorf("%w: order claim released", erp.ErrCancelled)
			}
			return conn.CreateOrder(ctx, req)
		})
	if err != nil && s.idempotency != nil && releasable(err, &started) {
		if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
			contextLogger(ctx, s.logger).Warn("failed to release order claim",
				zap.String("external_ref", req.ExternalRef),
				zap.Error(relErr),
			)
		}
	}
	return order, err
}

// releasable reports whether a failed create left nothing behind in the ERP:
// the connector was never called, or it rejected the order outright. An
// interrupted or transiently failing call may still have created it.
func releasable(err error, started *atomic.Bool) bool {
	if started.CompareAndSwap(false, true) {
		return true
	}
	if errors.Is(err, erp.ErrTimeout) || errors.Is(err, erp.ErrCancelled) {
		return false
	}
	return errors.Is(err, erp.ErrConnector) && !erp.IsTransient(err)
}

// UpdateOrder changes status and/or lines of an existing order
func (s *ErpService) UpdateOrder(ctx context.Context, tenant erp.TenantContext, req *erp.UpdateOrderRequest) (*erp.Order, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return call(ctx, s, tenant, OpUpdateOrder, erp.CapabilityOrders,
		func(ctx context.Context, conn erp.Connector) (*erp.Order, error) {
			return conn.UpdateOrder(ctx, req)
		})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// call resolves the connector, checks capability, and runs fn on the tenant's
// actor. Unsupported operations fail without touching the queue.
func call[T any](
	ctx context.Context,
	s *ErpService,
	tenant erp.TenantContext,
	kind string,
	required erp.Capabilities,
	fn func(ctx context.Context, conn erp.Connector) (T, error),
) (T, error) {
	var zero T

	ctx, span := telemetry.StartServiceSpan(ctx, "erp", kind,
		telemetry.AttrTenantID.String(tenant.TenantID.String()),
		telemetry.AttrOperation.String(kind),
	)
	defer span.End()

	conn, err := s.resolve(ctx, tenant)
	if err != nil {
		telemetry.RecordError(span, err)
		return zero, err
	}
	span.SetAttributes(telemetry.AttrErpType.String(string(conn.ErpType())))

	if !conn.Capabilities().Has(required) {
		err := fmt.Errorf("%w: %s on %s", erp.ErrUnsupportedOperation, kind, conn.ErpType())
		telemetry.RecordError(span, err)
		return zero, err
	}

	result, err := actor.Run(ctx, s.pool, tenant, kind, s.timeout(ctx), func(opCtx context.Context) (T, error) {
		return fn(opCtx, conn)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		contextLogger(ctx, s.logger).Debug("erp operation failed",
			zap.String("operation", kind),
			zap.String("kind", string(erp.Kind(err))),
			zap.Error(err),
		)
		return zero, err
	}
	return result, nil
}

func (s *ErpService) resolve(ctx context.Context, tenant erp.TenantContext) (erp.Connector, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, tenant)
}

func (s *ErpService) timeout(ctx context.Context) time.Duration {
	if d := OperationTimeout(ctx); d > 0 {
		return d
	}
	return s.pool.DefaultTimeout()
}

func (s *ErpService) check(req any) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", erp.ErrInvalidArgument)
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", erp.ErrInvalidArgument, err)
	}
	return nil
}

// contextLogger prefers the request logger carried by ctx and falls back to
// the service logger for background callers such as the scheduler
func contextLogger(ctx context.Context, fallback *zap.Logger) *logger.ContextLogger {
	if _, ok := ctx.Value(logger.LoggerKey).(*zap.Logger); ok {
		return logger.L(ctx)
	}
	return logger.WithLogger(ctx, fallback)
}
