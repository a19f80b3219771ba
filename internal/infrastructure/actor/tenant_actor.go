package actor

import (
	"context"
	"errors"
	"fmt"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName is the instrumentation name of operation spans
const TracerName = "github.com/erp/connector/actor"

// ActorState represents the lifecycle state of a tenant actor
type ActorState string

const (
	ActorStateRunning  ActorState = "RUNNING"
	ActorStateStopping ActorState = "STOPPING"
	ActorStateStopped  ActorState = "STOPPED"
)

// ActorStats is a point-in-time view of a tenant actor
type ActorStats struct {
	TenantID     uuid.UUID  `json:"tenant_id"`
	State        ActorState `json:"state"`
	Processed    int64      `json:"processed"`
	Failed       int64      `json:"failed"`
	TimedOut     int64      `json:"timed_out"`
	Cancelled    int64      `json:"cancelled"`
	QueueDepth   int        `json:"queue_depth"`
	QueueCap     int        `json:"queue_capacity"`
	InFlight     bool       `json:"in_flight"`
	LastActivity time.Time  `json:"last_activity"`
}

type envelope struct {
	task       Task
	enqueuedAt time.Time
}

// TenantActor serializes all operations of one tenant through a bounded FIFO
// queue drained by a single worker goroutine. At most one operation is in
// flight at any time.
type TenantActor struct {
	tenantID uuid.UUID
	config   PoolConfig
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer

	// mu guards state and the queue's send side so Enqueue never races close
	mu    sync.Mutex
	state ActorState
	queue chan envelope

	// ctx is cancelled on forced stop and interrupts the in-flight operation
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// pending counts queued plus in-flight operations
	pending atomic.Int64

	// written only by the worker
	processed    atomic.Int64
	failed       atomic.Int64
	timedOut     atomic.Int64
	cancelled    atomic.Int64
	inFlight     atomic.Bool
	lastActivity atomic.Int64
}

func newTenantActor(tenantID uuid.UUID, cfg PoolConfig, logger *zap.Logger, observer Observer) *TenantActor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &TenantActor{
		tenantID: tenantID,
		config:   cfg,
		logger:   logger.With(zap.String("tenant_id", tenantID.String())),
		observer: observer,
		tracer:   otel.GetTracerProvider().Tracer(TracerName),
		state:    ActorStateRunning,
		queue:    make(chan envelope, cfg.QueueCapacity),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	a.touch()
	go a.run()
	return a
}

// TenantID returns the tenant this actor serves
func (a *TenantActor) TenantID() uuid.UUID {
	return a.tenantID
}

// Enqueue pushes a task onto the queue without blocking.
// Returns erp.ErrQueueFull when the queue is at capacity.
func (a *TenantActor) Enqueue(task Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != ActorStateRunning {
		return errActorStopped
	}

	a.pending.Add(1)
	select {
	case a.queue <- envelope{task: task, enqueuedAt: time.Now()}:
		return nil
	default:
		a.pending.Add(-1)
		return fmt.Errorf("%w: tenant %s has %d queued operations", erp.ErrQueueFull, a.tenantID, cap(a.queue))
	}
}

// Done is closed when the worker has exited
func (a *TenantActor) Done() <-chan struct{} {
	return a.done
}

// Stop stops the actor. With drain, already-queued operations are processed
// first; without it the in-flight operation is cancelled and queued ones fail
// with erp.ErrCancelled. A forced Stop escalates an earlier draining Stop.
// Stop waits for the worker to exit or ctx to end.
func (a *TenantActor) Stop(ctx context.Context, drain bool) error {
	a.mu.Lock()
	if a.state == ActorStateRunning {
		a.state = ActorStateStopping
		close(a.queue)
	}
	if !drain {
		a.cancel()
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		a.logger.Warn("Tenant actor stop timed out",
			zap.Bool("drain", drain),
			zap.Int("queue_depth", len(a.queue)))
		return ctx.Err()
	}
}

// tryRetire stops the actor if nothing is queued or in flight and it has been
// idle for at least idleFor. Enqueue holds mu, so no task can slip in between
// the check and the close.
func (a *TenantActor) tryRetire(idleFor time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != ActorStateRunning || a.pending.Load() != 0 {
		return false
	}
	if a.IdleFor() < idleFor {
		return false
	}
	a.state = ActorStateStopping
	close(a.queue)
	return true
}

// IdleFor returns how long ago the actor last accepted or finished work
func (a *TenantActor) IdleFor() time.Duration {
	return time.Since(time.Unix(0, a.lastActivity.Load()))
}

// Stats returns the actor's counters
func (a *TenantActor) Stats() ActorStats {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()

	select {
	case <-a.done:
		state = ActorStateStopped
	default:
	}

	return ActorStats{
		TenantID:     a.tenantID,
		State:        state,
		Processed:    a.processed.Load(),
		Failed:       a.failed.Load(),
		TimedOut:     a.timedOut.Load(),
		Cancelled:    a.cancelled.Load(),
		QueueDepth:   len(a.queue),
		QueueCap:     cap(a.queue),
		InFlight:     a.inFlight.Load(),
		LastActivity: time.Unix(0, a.lastActivity.Load()),
	}
}

func (a *TenantActor) touch() {
	a.lastActivity.Store(time.Now().UnixNano())
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func (a *TenantActor) run() {
	defer close(a.done)
	defer a.cancel()

	for env := range a.queue {
		a.process(env)
	}

	if a.config.EnableDetailedLogging {
		a.logger.Debug("Tenant actor worker exited",
			zap.Int64("processed", a.processed.Load()),
			zap.Int64("failed", a.failed.Load()))
	}
}

func (a *TenantActor) process(env envelope) {
	task := env.task
	info := task.Info()
	a.inFlight.Store(true)

	defer func() {
		a.inFlight.Store(false)
		a.pending.Add(-1)
		a.touch()
	}()
	// settle may panic on a double completion; the loop must survive it
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Tenant actor recovered from panic",
				zap.String("operation_id", info.ID.String()),
				zap.String("kind", info.Kind),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	queueWait := time.Since(env.enqueuedAt)
	start := time.Now()

	var err error
	switch {
	case a.ctx.Err() != nil:
		err = fmt.Errorf("%w: tenant actor stopped", erp.ErrCancelled)
	case task.Context().Err() != nil:
		err = fmt.Errorf("%w: %w", erp.ErrCancelled, context.Cause(task.Context()))
	default:
		err = a.execute(task, info)
	}
	execution := time.Since(start)

	outcome := a.record(err)
	a.observer.OperationCompleted(a.tenantID, info.Kind, outcome, queueWait, execution)

	if a.config.EnableDetailedLogging {
		a.logger.Debug("Operation completed",
			zap.String("operation_id", info.ID.String()),
			zap.String("kind", info.Kind),
			zap.String("outcome", outcome),
			zap.Duration("queue_wait", queueWait),
			zap.Duration("duration", execution),
			zap.Error(err))
	}

	// counters are updated before the caller can observe the result
	task.settle(err)
}

func (a *TenantActor) record(err error) string {
	switch {
	case err == nil:
		a.processed.Add(1)
		return OutcomeSuccess
	case errors.Is(err, erp.ErrTimeout):
		a.failed.Add(1)
		a.timedOut.Add(1)
		return OutcomeTimeout
	case errors.Is(err, erp.ErrCancelled):
		a.failed.Add(1)
		a.cancelled.Add(1)
		return OutcomeCancelled
	default:
		a.failed.Add(1)
		return OutcomeFailed
	}
}

// execute runs the task with its timeout. The call runs on its own goroutine
// so a connector that ignores cancellation cannot block the actor; when the
// timeout fires the call is abandoned and its eventual result discarded.
func (a *TenantActor) execute(task Task, info OperationInfo) error {
	ctx, cancel := context.WithTimeout(task.Context(), info.Timeout)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	ctx, span := a.tracer.Start(ctx, "erp.operation."+info.Kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tenant_id", info.Tenant.TenantID.String()),
			attribute.String("erp.operation.id", info.ID.String()),
			attribute.String("erp.operation.kind", info.Kind),
			attribute.Int64("erp.operation.timeout_ms", info.Timeout.Milliseconds()),
		))
	defer span.End()

	done := make(chan error, 1)
	go func() {
		labels := pprof.Labels("tenant_id", info.Tenant.TenantID.String(), "erp_operation", info.Kind)
		pprof.Do(ctx, labels, func(ctx context.Context) {
			done <- a.invoke(ctx, task, info)
		})
	}()

	var err error
	select {
	case err = <-done:
		if err != nil && ctx.Err() != nil {
			err = a.interruption(task, info)
		}
	case <-ctx.Done():
		err = a.interruption(task, info)
	}

	if err != nil && erp.Kind(err) == erp.KindUnknown {
		err = erp.NewConnectorError("", info.Kind, err, false)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// invoke calls the task, turning a panic into a connector error
func (a *TenantActor) invoke(ctx context.Context, task Task, info OperationInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Operation panicked",
				zap.String("operation_id", info.ID.String()),
				zap.String("kind", info.Kind),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = erp.NewConnectorError("", info.Kind, fmt.Errorf("panic: %v", r), false)
		}
	}()
	return task.invoke(ctx)
}

// interruption explains why an execution context ended
func (a *TenantActor) interruption(task Task, info OperationInfo) error {
	switch {
	case a.ctx.Err() != nil:
		return fmt.Errorf("%w: tenant actor stopped", erp.ErrCancelled)
	case task.Context().Err() != nil:
		return fmt.Errorf("%w: %w", erp.ErrCancelled, context.Cause(task.Context()))
	default:
		return fmt.Errorf("%w after %s", erp.ErrTimeout, info.Timeout)
	}
}
