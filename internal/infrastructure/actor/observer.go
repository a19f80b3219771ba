package actor

import (
	"time"

	"github.com/google/uuid"
)

// Operation outcomes reported to an Observer
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// Observer receives actor pool events, typically to record metrics.
// Implementations must be fast and safe for concurrent use; they are called
// from worker goroutines.
type Observer interface {
	OperationEnqueued(tenantID uuid.UUID, kind string, queueDepth int)
	OperationRejected(tenantID uuid.UUID, kind string, reason string)
	OperationCompleted(tenantID uuid.UUID, kind string, outcome string, queueWait, execution time.Duration)
	ActorStarted(tenantID uuid.UUID)
	ActorStopped(tenantID uuid.UUID)
}

// NopObserver ignores all events
type NopObserver struct{}

func (NopObserver) OperationEnqueued(uuid.UUID, string, int) {}
func (NopObserver) OperationRejected(uuid.UUID, string, string) {}
func (NopObserver) OperationCompleted(uuid.UUID, string, string, time.Duration, time.Duration) {}
func (NopObserver) ActorStarted(uuid.UUID) {}
func (NopObserver) ActorStopped(uuid.UUID) {}

var _ Observer = NopObserver{}
