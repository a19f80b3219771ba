package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys of requests that were already accepted, so a
// retried write (e.g. an order create with the same external reference) is not
// sent to the ERP twice
type IdempotencyStore interface {
	// Claim records key with a TTL.
	// Returns true if the key was newly claimed, false if it is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsClaimed checks whether key is currently held
	IsClaimed(ctx context.Context, key string) (bool, error)

	// Release frees key, e.g. after the guarded request failed
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a claimed key blocks repeats
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
