package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/erp/connector/internal/domain/erp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Retry
// ---------------------------------------------------------------------------

// ErrInvalidRetryConfig is returned by RetryConfig.Validate
var ErrInvalidRetryConfig = errors.New("connectors: invalid retry configuration")

// RetryConfig is the retry policy for transient connector failures
type RetryConfig struct {
	// MaxAttempts includes the first call; 1 disables retries
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// RetryWrites allows retrying CreateOrder/UpdateOrder. Only enable for ERPs
	// that deduplicate orders by external reference.
	RetryWrites bool
}

// DefaultRetryConfig returns the default retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

// Validate checks the retry policy
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidRetryConfig)
	}
	if c.InitialInterval <= 0 || c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("%w: intervals must be positive and max_interval >= initial_interval", ErrInvalidRetryConfig)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be >= 1", ErrInvalidRetryConfig)
	}
	return nil
}

func (c RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.Multiplier = c.Multiplier
	return b
}

// RetryingConnector retries transient connector errors with exponential backoff.
// Retries happen inside the caller's operation, so they count against its timeout.
type RetryingConnector struct {
	erp.Connector
	config RetryConfig
	logger *zap.Logger
}

// NewRetryingConnector wraps next with the retry policy
func NewRetryingConnector(next erp.Connector, config RetryConfig, logger *zap.Logger) *RetryingConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingConnector{Connector: next, config: config, logger: logger}
}

func retry[T any](ctx context.Context, c *RetryingConnector, op string, write bool, fn func() (T, error)) (T, error) {
	if c.config.MaxAttempts <= 1 || (write && !c.config.RetryWrites) {
		return fn()
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !erp.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(c.config.newBackOff()),
		backoff.WithMaxTries(uint(c.config.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Retrying connector call",
				zap.String("erp_type", string(c.ErpType())),
				zap.String("op", op),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
}

// GetArticles retries transient failures
func (c *RetryingConnector) GetArticles(ctx context.Context, query erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	return retry(ctx, c, "GetArticles", false, func() (*erp.Page[erp.Article], error) {
		return c.Connector.GetArticles(ctx, query)
	})
}

// GetCustomers retries transient failures
func (c *RetryingConnector) GetCustomers(ctx context.Context, query erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	return retry(ctx, c, "GetCustomers", false, func() (*erp.Page[erp.Customer], error) {
		return c.Connector.GetCustomers(ctx, query)
	})
}

// GetOrders retries transient failures
func (c *RetryingConnector) GetOrders(ctx context.Context, query erp.OrderQuery) (*erp.Page[erp.Order], error) {
	return retry(ctx, c, "GetOrders", false, func() (*erp.Page[erp.Order], error) {
		return c.Connector.GetOrders(ctx, query)
	})
}

// CreateOrder retries only when RetryWrites is set
func (c *RetryingConnector) CreateOrder(ctx context.Context, req *erp.CreateOrderRequest) (*erp.Order, error) {
	return retry(ctx, c, "CreateOrder", true, func() (*erp.Order, error) {
		return c.Connector.CreateOrder(ctx, req)
	})
}

// UpdateOrder retries only when RetryWrites is set
func (c *RetryingConnector) UpdateOrder(ctx context.Context, req *erp.UpdateOrderRequest) (*erp.Order, error) {
	return retry(ctx, c, "UpdateOrder", true, func() (*erp.Order, error) {
		return c.Connector.UpdateOrder(ctx, req)
	})
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

// RateLimitedConnector holds every call until the tenant's token bucket allows it
type RateLimitedConnector struct {
	erp.Connector
	limiter *rate.Limiter
}

// NewRateLimitedConnector limits next to perSecond calls with the given burst
func NewRateLimitedConnector(next erp.Connector, perSecond float64, burst int) *RateLimitedConnector {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedConnector{Connector: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (c *RateLimitedConnector) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the wait would outlast the operation deadline
		return erp.NewConnectorError(c.ErpType(), op, fmt.Errorf("rate limit: %w", err), true)
	}
	return nil
}

// GetArticles waits for a token
func (c *RateLimitedConnector) GetArticles(ctx context.Context, query erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	if err := c.wait(ctx, "GetArticles"); err != nil {
		return nil, err
	}
	return c.Connector.GetArticles(ctx, query)
}

// GetCustomers waits for a token
func (c *RateLimitedConnector) GetCustomers(ctx context.Context, query erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	if err := c.wait(ctx, "GetCustomers"); err != nil {
		return nil, err
	}
	return c.Connector.GetCustomers(ctx, query)
}

// GetOrders waits for a token
func (c *RateLimitedConnector) GetOrders(ctx context.Context, query erp.OrderQuery) (*erp.Page[erp.Order], error) {
	if err := c.wait(ctx, "GetOrders"); err != nil {
		return nil, err
	}
	return c.Connector.GetOrders(ctx, query)
}

// CreateOrder waits for a token
func (c *RateLimitedConnector) CreateOrder(ctx context.Context, req *erp.CreateOrderRequest) (*erp.Order, error) {
	if err := c.wait(ctx, "CreateOrder"); err != nil {
		return nil, err
	}
	return c.Connector.CreateOrder(ctx, req)
}

// UpdateOrder waits for a token
func (c *RateLimitedConnector) UpdateOrder(ctx context.Context, req *erp.UpdateOrderRequest) (*erp.Order, error) {
	if err := c.wait(ctx, "UpdateOrder"); err != nil {
		return nil, err
	}
	return c.Connector.UpdateOrder(ctx, req)
}

var (
	_ erp.Connector = (*RetryingConnector)(nil)
	_ erp.Connector = (*RateLimitedConnector)(nil)
)
