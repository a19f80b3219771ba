package actor

import (
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/erp"
)

var (
	// ErrInvalidConfig is returned when pool configuration is invalid
	ErrInvalidConfig = errors.New("invalid actor pool configuration")

	// ErrSlotAlreadyCompleted is the panic value raised when a result slot is completed twice
	ErrSlotAlreadyCompleted = errors.New("result slot already completed")

	// ErrActorNotFound is returned by RemoveActor for unknown tenants
	ErrActorNotFound = errors.New("tenant actor not found")

	// ErrActorLimitReached is returned when MaxActors live actors exist and none is idle.
	// It wraps erp.ErrQueueFull so callers treat it as backpressure.
	ErrActorLimitReached = fmt.Errorf("%w: actor limit reached", erp.ErrQueueFull)

	// ErrActorStopping is returned while a removed actor still works off its queue.
	// No second actor is created for the tenant until the old worker exits.
	ErrActorStopping = fmt.Errorf("%w: tenant actor is stopping", erp.ErrQueueFull)

	// errActorStopped is returned by a tenant actor that no longer accepts work.
	// The pool turns it into a retry against a fresh actor or ErrPoolShutdown.
	errActorStopped = errors.New("tenant actor stopped")
)
