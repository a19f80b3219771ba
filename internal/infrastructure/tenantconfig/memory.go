// Package tenantconfig provides the tenant to ERP configuration lookups used
// by the connector registry.
package tenantconfig

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
)

// MemoryProvider holds tenant configurations in memory. Tests and the
// sandbox setup use it.
type MemoryProvider struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]erp.TenantErpConfig
}

// NewMemoryProvider creates a provider with the given configurations
func NewMemoryProvider(configs ...erp.TenantErpConfig) (*MemoryProvider, error) {
	p := &MemoryProvider{configs: make(map[uuid.UUID]erp.TenantErpConfig, len(configs))}
	for _, cfg := range configs {
		if err := p.Set(cfg); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Set validates and stores cfg, replacing any previous entry of the tenant
func (p *MemoryProvider) Set(cfg erp.TenantErpConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("tenant %s: %w", cfg.TenantID, err)
	}
	cfg.Options = maps.Clone(cfg.Options)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[cfg.TenantID] = cfg
	return nil
}

// Remove deletes the tenant's configuration
func (p *MemoryProvider) Remove(tenantID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.configs, tenantID)
}

// GetTenantConfig returns a copy of the tenant's configuration
func (p *MemoryProvider) GetTenantConfig(_ context.Context, tenantID uuid.UUID) (*erp.TenantErpConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lookup(p.configs, tenantID)
}

// ListTenants returns the configured tenant ids in a stable order
func (p *MemoryProvider) ListTenants(_ context.Context) ([]uuid.UUID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedIDs(p.configs), nil
}

func lookup(configs map[uuid.UUID]erp.TenantErpConfig, tenantID uuid.UUID) (*erp.TenantErpConfig, error) {
	cfg, ok := configs[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", erp.ErrTenantNotConfigured, tenantID)
	}
	cfg.Options = maps.Clone(cfg.Options)
	return &cfg, nil
}

func sortedIDs(configs map[uuid.UUID]erp.TenantErpConfig) []uuid.UUID {
	ids := slices.Collect(maps.Keys(configs))
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

var _ erp.TenantConfigProvider = (*MemoryProvider)(nil)
