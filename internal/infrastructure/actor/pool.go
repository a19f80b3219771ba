package actor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// enqueueAttempts bounds retries when an actor retires between lookup and enqueue
const enqueueAttempts = 3

// PoolStats is a point-in-time view of the pool
type PoolStats struct {
	ActorCount int          `json:"actor_count"`
	MaxActors  int          `json:"max_actors"`
	Closed     bool         `json:"closed"`
	Queued     int          `json:"queued"`
	Processed  int64        `json:"processed"`
	Failed     int64        `json:"failed"`
	Actors     []ActorStats `json:"actors"`
}

// PoolOption configures an ActorPool
type PoolOption func(*ActorPool)

// WithLogger sets the pool logger
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *ActorPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver sets the observer notified about operations and actors
func WithObserver(observer Observer) PoolOption {
	return func(p *ActorPool) {
		if observer != nil {
			p.observer = observer
		}
	}
}

// ActorPool routes operations to one TenantActor per tenant, creating actors
// on demand. It is created once by the hosting process and passed explicitly
// to everything that submits operations.
type ActorPool struct {
	config   PoolConfig
	logger   *zap.Logger
	observer Observer

	mu     sync.RWMutex
	actors map[uuid.UUID]*TenantActor
	closed bool

	// retiring holds removed actors until their worker exits
	retiring map[uuid.UUID]*TenantActor

	stopEvict chan struct{}
	evictDone chan struct{}
}

// NewActorPool creates a pool. Idle eviction starts when IdleTimeout > 0.
func NewActorPool(cfg PoolConfig, opts ...PoolOption) (*ActorPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &ActorPool{
		config:   cfg,
		logger:   zap.NewNop(),
		observer: NopObserver{},
		actors:   make(map[uuid.UUID]*TenantActor),
		retiring: make(map[uuid.UUID]*TenantActor),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("actor_pool")

	if cfg.IdleTimeout > 0 {
		p.stopEvict = make(chan struct{})
		p.evictDone = make(chan struct{})
		go p.evictLoop()
	}

	p.logger.Info("Actor pool started",
		zap.Int("queue_capacity", cfg.QueueCapacity),
		zap.Int("max_actors", cfg.MaxActors),
		zap.Duration("default_timeout", cfg.DefaultOperationTimeout),
		zap.Duration("idle_timeout", cfg.IdleTimeout))

	return p, nil
}

// Config returns the pool configuration
func (p *ActorPool) Config() PoolConfig {
	return p.config
}

// DefaultTimeout returns the configured default operation timeout
func (p *ActorPool) DefaultTimeout() time.Duration {
	return p.config.DefaultOperationTimeout
}

// GetOrCreateActor returns the tenant's actor, creating it if needed.
// Concurrent first calls for the same tenant observe the same instance.
func (p *ActorPool) GetOrCreateActor(tenantID uuid.UUID) (*TenantActor, error) {
	p.mu.RLock()
	a, ok := p.actors[tenantID]
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return nil, erp.ErrPoolShutdown
	}
	if ok {
		return a, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, erp.ErrPoolShutdown
	}
	if a, ok := p.actors[tenantID]; ok {
		return a, nil
	}
	if old, ok := p.retiring[tenantID]; ok {
		select {
		case <-old.Done():
			delete(p.retiring, tenantID)
		default:
			return nil, ErrActorStopping
		}
	}
	if p.config.MaxActors > 0 && len(p.actors) >= p.config.MaxActors {
		if !p.evictOneLocked() {
			return nil, ErrActorLimitReached
		}
	}

	a = newTenantActor(tenantID, p.config, p.logger, p.observer)
	p.actors[tenantID] = a
	p.observer.ActorStarted(tenantID)
	p.logger.Debug("Tenant actor created",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("actors", len(p.actors)))
	return a, nil
}

// Actor returns the tenant's actor if it exists
func (p *ActorPool) Actor(tenantID uuid.UUID) (*TenantActor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.actors[tenantID]
	return a, ok
}

// Enqueue routes a task to its tenant's actor without waiting for the result.
// A full queue is reported immediately as erp.ErrQueueFull.
func (p *ActorPool) Enqueue(task Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", erp.ErrInvalidArgument)
	}
	info := task.Info()

	var err error
	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		var a *TenantActor
		a, err = p.GetOrCreateActor(info.Tenant.TenantID)
		if err != nil {
			break
		}
		err = a.Enqueue(task)
		if !errors.Is(err, errActorStopped) {
			break
		}
		// the actor retired after lookup; the next lookup creates a fresh one
		// or reports shutdown
	}

	if errors.Is(err, errActorStopped) {
		err = fmt.Errorf("%w: tenant actor is restarting", erp.ErrQueueFull)
	}
	if err != nil {
		p.observer.OperationRejected(info.Tenant.TenantID, info.Kind, string(erp.Kind(err)))
		if p.config.EnableDetailedLogging {
			p.logger.Debug("Operation rejected",
				zap.String("tenant_id", info.Tenant.TenantID.String()),
				zap.String("operation_id", info.ID.String()),
				zap.String("kind", info.Kind),
				zap.Error(err))
		}
		return err
	}

	if a, ok := p.Actor(info.Tenant.TenantID); ok {
		p.observer.OperationEnqueued(info.Tenant.TenantID, info.Kind, len(a.queue))
	}
	return nil
}

// Submit enqueues op and waits for its result. Queue-full rejections return
// immediately. If ctx ends while waiting the error wraps erp.ErrCancelled; an
// operation that has not started yet is then skipped by the worker when its
// own context is the same ctx.
func Submit[T any](ctx context.Context, p *ActorPool, op *Operation[T]) (T, error) {
	if op == nil {
		var zero T
		return zero, fmt.Errorf("%w: operation is nil", erp.ErrInvalidArgument)
	}
	if err := p.Enqueue(op); err != nil {
		var zero T
		return zero, err
	}
	return op.Result.Wait(ctx)
}

// Run is a convenience that builds an operation with the caller's context and
// submits it. A zero timeout uses the pool default.
func Run[T any](ctx context.Context, p *ActorPool, tenant erp.TenantContext, kind string, timeout time.Duration, fn ExecuteFunc[T]) (T, error) {
	if timeout == 0 {
		timeout = p.config.DefaultOperationTimeout
	}
	op, err := NewOperation(ctx, tenant, kind, timeout, fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return Submit(ctx, p, op)
}

// RemoveActor stops and removes a tenant's actor. Until the actor's worker
// has exited, submissions for the tenant fail with ErrActorStopping.
func (p *ActorPool) RemoveActor(ctx context.Context, tenantID uuid.UUID, drain bool) error {
	p.mu.Lock()
	a, ok := p.actors[tenantID]
	if ok {
		delete(p.actors, tenantID)
		p.retiring[tenantID] = a
	}
	p.mu.Unlock()

	if !ok {
		return ErrActorNotFound
	}

	err := a.Stop(ctx, drain)
	if err == nil {
		p.mu.Lock()
		if p.retiring[tenantID] == a {
			delete(p.retiring, tenantID)
		}
		p.mu.Unlock()
	}
	p.observer.ActorStopped(tenantID)
	p.logger.Info("Tenant actor removed",
		zap.String("tenant_id", tenantID.String()),
		zap.Bool("drain", drain),
		zap.Error(err))
	return err
}

// Shutdown stops every actor, draining or cancelling their queues, and
// rejects all later submissions with erp.ErrPoolShutdown.
func (p *ActorPool) Shutdown(ctx context.Context, drain bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	actors := p.actors
	p.actors = make(map[uuid.UUID]*TenantActor)
	p.mu.Unlock()

	if p.stopEvict != nil {
		close(p.stopEvict)
		<-p.evictDone
	}

	p.logger.Info("Stopping actor pool",
		zap.Int("actors", len(actors)),
		zap.Bool("drain", drain))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for id, a := range actors {
		wg.Add(1)
		go func(id uuid.UUID, a *TenantActor) {
			defer wg.Done()
			if err := a.Stop(ctx, drain); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
				mu.Unlock()
			}
			p.observer.ActorStopped(id)
		}(id, a)
	}
	wg.Wait()

	if len(errs) > 0 {
		p.logger.Warn("Actor pool shutdown timed out", zap.Int("unfinished_actors", len(errs)))
		return errors.Join(errs...)
	}
	p.logger.Info("Actor pool stopped gracefully")
	return nil
}

// IsClosed reports whether Shutdown was called
func (p *ActorPool) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// ActorCount returns the number of live actors
func (p *ActorPool) ActorCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.actors)
}

// Stats returns pool and per-actor statistics ordered by tenant id
func (p *ActorPool) Stats() PoolStats {
	p.mu.RLock()
	actors := make([]*TenantActor, 0, len(p.actors))
	for _, a := range p.actors {
		actors = append(actors, a)
	}
	closed := p.closed
	p.mu.RUnlock()

	stats := PoolStats{
		ActorCount: len(actors),
		MaxActors:  p.config.MaxActors,
		Closed:     closed,
		Actors:     make([]ActorStats, 0, len(actors)),
	}
	for _, a := range actors {
		s := a.Stats()
		stats.Queued += s.QueueDepth
		stats.Processed += s.Processed
		stats.Failed += s.Failed
		stats.Actors = append(stats.Actors, s)
	}
	sort.Slice(stats.Actors, func(i, j int) bool {
		return stats.Actors[i].TenantID.String() < stats.Actors[j].TenantID.String()
	})
	return stats
}

// ---------------------------------------------------------------------------
// Eviction
// ---------------------------------------------------------------------------

// EvictIdle removes actors that have had nothing queued or in flight for at
// least idleFor. Returns the number of evicted actors.
func (p *ActorPool) EvictIdle(idleFor time.Duration) int {
	p.mu.Lock()
	var evicted []uuid.UUID
	for id, a := range p.actors {
		if a.tryRetire(idleFor) {
			delete(p.actors, id)
			evicted = append(evicted, id)
		}
	}
	p.mu.Unlock()

	for _, id := range evicted {
		p.observer.ActorStopped(id)
	}
	if len(evicted) > 0 {
		p.logger.Debug("Evicted idle tenant actors", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// evictOneLocked retires the least recently active idle actor. Caller holds p.mu.
func (p *ActorPool) evictOneLocked() bool {
	var (
		victim   *TenantActor
		victimID uuid.UUID
	)
	for id, a := range p.actors {
		if a.pending.Load() != 0 {
			continue
		}
		if victim == nil || a.lastActivity.Load() < victim.lastActivity.Load() {
			victim, victimID = a, id
		}
	}
	if victim == nil || !victim.tryRetire(0) {
		return false
	}
	delete(p.actors, victimID)
	p.observer.ActorStopped(victimID)
	p.logger.Debug("Evicted tenant actor to stay within actor limit",
		zap.String("tenant_id", victimID.String()))
	return true
}

func (p *ActorPool) evictLoop() {
	defer close(p.evictDone)

	ticker := time.NewTicker(p.config.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopEvict:
			return
		case <-ticker.C:
			p.EvictIdle(p.config.IdleTimeout)
		}
	}
}
