package erp

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sync enums
// ---------------------------------------------------------------------------

// SyncKind selects full or incremental synchronization
type SyncKind string

const (
	// SyncKindFull fetches every record
	SyncKindFull SyncKind = "FULL"
	// SyncKindDelta fetches records modified since the last successful run
	SyncKindDelta SyncKind = "DELTA"
)

// IsValid returns true if the kind is valid
func (k SyncKind) IsValid() bool {
	return k == SyncKindFull || k == SyncKindDelta
}

// SyncEntity is the kind of record being synchronized
type SyncEntity string

const (
	SyncEntityArticles  SyncEntity = "ARTICLES"
	SyncEntityCustomers SyncEntity = "CUSTOMERS"
	SyncEntityOrders    SyncEntity = "ORDERS"
)

// IsValid returns true if the entity is valid
func (e SyncEntity) IsValid() bool {
	switch e {
	case SyncEntityArticles, SyncEntityCustomers, SyncEntityOrders:
		return true
	default:
		return false
	}
}

// RequiredCapability returns the connector capability needed to sync the entity
func (e SyncEntity) RequiredCapability() Capabilities {
	switch e {
	case SyncEntityArticles:
		return CapabilityArticles
	case SyncEntityCustomers:
		return CapabilityCustomers
	case SyncEntityOrders:
		return CapabilityOrders
	default:
		return 0
	}
}

// SyncStatus represents the status of a sync run
type SyncStatus string

const (
	// SyncStatusRunning indicates the run is in progress
	SyncStatusRunning SyncStatus = "RUNNING"
	// SyncStatusSucceeded indicates all pages were fetched
	SyncStatusSucceeded SyncStatus = "SUCCEEDED"
	// SyncStatusPartial indicates some pages were fetched before a failure
	SyncStatusPartial SyncStatus = "PARTIAL"
	// SyncStatusFailed indicates the run failed before fetching anything
	SyncStatusFailed SyncStatus = "FAILED"
)

// IsFinal returns true for terminal statuses
func (s SyncStatus) IsFinal() bool {
	return s != SyncStatusRunning
}

// ---------------------------------------------------------------------------
// SyncRun aggregate
// ---------------------------------------------------------------------------

// SyncRun tracks one synchronization of an entity for a tenant
type SyncRun struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ErpType     ErpType
	Entity      SyncEntity
	Kind        SyncKind
	Status      SyncStatus
	Since       *time.Time
	Pages       int
	Records     int
	Error       string
	SnapshotKey string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// NewSyncRun starts a new run
func NewSyncRun(tenantID uuid.UUID, erpType ErpType, entity SyncEntity, kind SyncKind, since *time.Time) *SyncRun {
	return &SyncRun{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ErpType:   erpType,
		Entity:    entity,
		Kind:      kind,
		Status:    SyncStatusRunning,
		Since:     since,
		StartedAt: time.Now(),
	}
}

// RecordPage adds one fetched page with n records
func (r *SyncRun) RecordPage(n int) {
	r.Pages++
	r.Records += n
}

// Succeed marks the run successful
func (r *SyncRun) Succeed() {
	r.finish(SyncStatusSucceeded)
}

// Fail marks the run failed. Runs that already fetched records become PARTIAL.
func (r *SyncRun) Fail(err error) {
	if err != nil {
		r.Error = err.Error()
	}
	if r.Records > 0 {
		r.finish(SyncStatusPartial)
		return
	}
	r.finish(SyncStatusFailed)
}

func (r *SyncRun) finish(status SyncStatus) {
	now := time.Now()
	r.Status = status
	r.FinishedAt = &now
}

// Duration returns the run's wall time so far
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncRunRepository persists sync runs
type SyncRunRepository interface {
	Save(ctx context.Context, run *SyncRun) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*SyncRun, error)
	// FindLatest returns the most recently started run with the given status,
	// or ErrSyncRunNotFound
	FindLatest(ctx context.Context, tenantID uuid.UUID, entity SyncEntity, status SyncStatus) (*SyncRun, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]SyncRun, error)
}
