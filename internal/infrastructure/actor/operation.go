package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
)

// ExecuteFunc performs the actual ERP call of an operation
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// OperationInfo describes an operation without its result type
type OperationInfo struct {
	ID      uuid.UUID
	Tenant  erp.TenantContext
	Kind    string
	Timeout time.Duration
}

// Task is an operation as seen by a tenant actor. Only Operation implements it.
type Task interface {
	Info() OperationInfo
	// Context is the caller's context; once it is done the operation is skipped
	// or its execution cancelled.
	Context() context.Context

	invoke(ctx context.Context) error
	settle(err error)
}

// Operation is a unit of work for one tenant with a typed result slot.
// Operations are never reused.
type Operation[T any] struct {
	ID      uuid.UUID
	Tenant  erp.TenantContext
	Kind    string
	Timeout time.Duration
	Result  *ResultSlot[T]

	ctx context.Context
	fn  ExecuteFunc[T]
	// out is written by the execution goroutine and read by settle only after
	// the worker received that goroutine's completion.
	out T
}

// NewOperation creates an operation. ctx is the caller's cancellation signal.
func NewOperation[T any](ctx context.Context, tenant erp.TenantContext, kind string, timeout time.Duration, fn ExecuteFunc[T]) (*Operation[T], error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if kind == "" {
		return nil, fmt.Errorf("%w: operation kind is required", erp.ErrInvalidArgument)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", erp.ErrInvalidArgument, timeout)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: execute function is required", erp.ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Operation[T]{
		ID:      uuid.New(),
		Tenant:  tenant,
		Kind:    kind,
		Timeout: timeout,
		Result:  NewResultSlot[T](),
		ctx:     ctx,
		fn:      fn,
	}, nil
}

// Info implements Task
func (o *Operation[T]) Info() OperationInfo {
	return OperationInfo{ID: o.ID, Tenant: o.Tenant, Kind: o.Kind, Timeout: o.Timeout}
}

// Context implements Task
func (o *Operation[T]) Context() context.Context {
	return o.ctx
}

// Execute runs the operation against the ERP. Called by the owning actor's worker.
func (o *Operation[T]) Execute(ctx context.Context) (T, error) {
	return o.fn(ctx)
}

// CompleteWithResult completes the result slot successfully
func (o *Operation[T]) CompleteWithResult(value T) {
	o.Result.Complete(value)
}

// CompleteWithError completes the result slot with a failure
func (o *Operation[T]) CompleteWithError(err error) {
	o.Result.Fail(err)
}

func (o *Operation[T]) invoke(ctx context.Context) error {
	v, err := o.Execute(ctx)
	if err != nil {
		return err
	}
	o.out = v
	return nil
}

func (o *Operation[T]) settle(err error) {
	if err != nil {
		o.CompleteWithError(err)
		return
	}
	o.CompleteWithResult(o.out)
}

var _ Task = (*Operation[struct{}])(nil)
