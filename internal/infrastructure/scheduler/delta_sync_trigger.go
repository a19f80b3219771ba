package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobSubmitter queues sync jobs
type JobSubmitter interface {
	ScheduleSync(tenantID uuid.UUID, kind erp.SyncKind, entities ...erp.SyncEntity) (*SyncJob, error)
}

// DeltaSyncTriggerConfig holds configuration for the delta sync trigger
type DeltaSyncTriggerConfig struct {
	// CheckInterval is how often tenants are checked for a due sync
	CheckInterval time.Duration
}

// DefaultDeltaSyncTriggerConfig returns default configuration
func DefaultDeltaSyncTriggerConfig() DeltaSyncTriggerConfig {
	return DeltaSyncTriggerConfig{CheckInterval: time.Minute}
}

// DeltaSyncTrigger schedules a delta sync for every tenant whose configured
// SyncInterval elapsed since its last scheduled sync. Tenants with a zero
// SyncInterval are never scheduled.
type DeltaSyncTrigger struct {
	config    DeltaSyncTriggerConfig
	submitter JobSubmitter
	tenants   erp.TenantConfigProvider
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastRunMu sync.RWMutex
	lastRun   map[uuid.UUID]time.Time
}

// NewDeltaSyncTrigger creates a new delta sync trigger
func NewDeltaSyncTrigger(
	config DeltaSyncTriggerConfig,
	submitter JobSubmitter,
	tenants erp.TenantConfigProvider,
	logger *zap.Logger,
) (*DeltaSyncTrigger, error) {
	if config.CheckInterval <= 0 {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeltaSyncTrigger{
		config:    config,
		submitter: submitter,
		tenants:   tenants,
		logger:    logger,
		now:       time.Now,
		lastRun:   make(map[uuid.UUID]time.Time),
	}, nil
}

// Start starts the check loop. The first check runs immediately.
func (c *DeltaSyncTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Delta sync trigger started", zap.Duration("check_interval", c.config.CheckInterval))
	return nil
}

// Stop stops the check loop
func (c *DeltaSyncTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Delta sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *DeltaSyncTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.checkAndSchedule(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndSchedule(ctx)
		}
	}
}

// checkAndSchedule submits a delta job for every due tenant and returns how
// many were submitted
func (c *DeltaSyncTrigger) checkAndSchedule(ctx context.Context) int {
	ids, err := c.tenants.ListTenants(ctx)
	if err != nil {
		c.logger.Error("Failed to list tenants", zap.Error(err))
		return 0
	}

	now := c.now()
	scheduled := 0
	for _, id := range ids {
		cfg, err := c.tenants.GetTenantConfig(ctx, id)
		if err != nil {
			// removed between ListTenants and now
			c.forget(id)
			continue
		}
		if !c.isDue(cfg, now) {
			continue
		}

		job, err := c.submitter.ScheduleSync(id, erp.SyncKindDelta)
		if err != nil {
			c.logger.Warn("Failed to schedule delta sync",
				zap.String("tenant_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		c.lastRunMu.Lock()
		c.lastRun[id] = now
		c.lastRunMu.Unlock()
		scheduled++

		c.logger.Debug("Delta sync scheduled",
			zap.String("tenant_id", id.String()),
			zap.String("job_id", job.ID.String()),
		)
	}
	return scheduled
}

func (c *DeltaSyncTrigger) isDue(cfg *erp.TenantErpConfig, now time.Time) bool {
	if cfg.SyncInterval <= 0 {
		return false
	}
	c.lastRunMu.RLock()
	last, ok := c.lastRun[cfg.TenantID]
	c.lastRunMu.RUnlock()
	return !ok || now.Sub(last) >= cfg.SyncInterval
}

func (c *DeltaSyncTrigger) forget(id uuid.UUID) {
	c.lastRunMu.Lock()
	delete(c.lastRun, id)
	c.lastRunMu.Unlock()
}

// LastRun returns when a delta sync was last scheduled for the tenant
func (c *DeltaSyncTrigger) LastRun(tenantID uuid.UUID) (time.Time, bool) {
	c.lastRunMu.RLock()
	defer c.lastRunMu.RUnlock()
	t, ok := c.lastRun[tenantID]
	return t, ok
}
