package actor

import (
	"fmt"
	"time"
)

// PoolConfig holds actor pool configuration
type PoolConfig struct {
	// QueueCapacity is the bounded queue size of each tenant actor
	QueueCapacity int
	// DefaultOperationTimeout is used by callers that do not pass a timeout
	DefaultOperationTimeout time.Duration
	// MaxActors caps the number of live tenant actors (MaxConcurrentProviders); 0 means unlimited
	MaxActors int
	// EnableDetailedLogging logs every operation at debug level
	EnableDetailedLogging bool
	// IdleTimeout evicts actors idle for longer than this; 0 disables eviction
	IdleTimeout time.Duration
	// EvictionInterval is how often idle actors are looked for
	EvictionInterval time.Duration
}

// DefaultPoolConfig returns default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		QueueCapacity:           1000,
		DefaultOperationTimeout: 30 * time.Second,
		MaxActors:               100,
		EnableDetailedLogging:   false,
		IdleTimeout:             0,
		EvictionInterval:        time.Minute,
	}
}

// Validate validates the configuration
func (c PoolConfig) Validate() error {
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue capacity must be positive", ErrInvalidConfig)
	}
	if c.DefaultOperationTimeout <= 0 {
		return fmt.Errorf("%w: default operation timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxActors < 0 {
		return fmt.Errorf("%w: max actors must not be negative", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfig)
	}
	if c.IdleTimeout > 0 && c.EvictionInterval <= 0 {
		return fmt.Errorf("%w: eviction interval must be positive when idle eviction is enabled", ErrInvalidConfig)
	}
	return nil
}
