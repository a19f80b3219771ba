package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/erp/connector/internal/domain/erp"
)

const (
	slotPending int32 = iota
	slotCompleting
	slotSucceeded
	slotFailed
)

// ResultSlot is a single-assignment result the submitting caller waits on.
// It is completed exactly once; a second completion panics with
// ErrSlotAlreadyCompleted.
type ResultSlot[T any] struct {
	state atomic.Int32
	done  chan struct{}
	value T
	err   error
}

// NewResultSlot creates an uncompleted slot
func NewResultSlot[T any]() *ResultSlot[T] {
	return &ResultSlot[T]{done: make(chan struct{})}
}

// Complete stores a successful result
func (s *ResultSlot[T]) Complete(value T) {
	s.complete(value, nil)
}

// Fail stores a failure. A nil error is replaced by a generic one so the slot
// never reports failure without a cause.
func (s *ResultSlot[T]) Fail(err error) {
	if err == nil {
		err = errors.New("operation failed without error")
	}
	var zero T
	s.complete(zero, err)
}

func (s *ResultSlot[T]) complete(value T, err error) {
	if !s.state.CompareAndSwap(slotPending, slotCompleting) {
		panic(ErrSlotAlreadyCompleted)
	}
	s.value = value
	s.err = err
	if err != nil {
		s.state.Store(slotFailed)
	} else {
		s.state.Store(slotSucceeded)
	}
	close(s.done)
}

// Done is closed once the slot is completed
func (s *ResultSlot[T]) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the slot is completed or ctx is done. When ctx ends first
// the error wraps erp.ErrCancelled; the operation itself may still run.
func (s *ResultSlot[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.value, s.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", erp.ErrCancelled, ctx.Err())
	}
}

// IsCompleted reports whether the slot holds a result
func (s *ResultSlot[T]) IsCompleted() bool {
	st := s.state.Load()
	return st == slotSucceeded || st == slotFailed
}

// HasSucceeded reports whether the slot completed successfully
func (s *ResultSlot[T]) HasSucceeded() bool {
	return s.state.Load() == slotSucceeded
}

// HasFailed reports whether the slot completed with an error
func (s *ResultSlot[T]) HasFailed() bool {
	return s.state.Load() == slotFailed
}
