package models

import (
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
)

// SyncRunModel is the persistence model for the SyncRun aggregate
type SyncRunModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index:idx_sync_runs_tenant_entity,priority:1"`
	ErpType     string    `gorm:"type:varchar(20);not null"`
	Entity      string    `gorm:"type:varchar(20);not null;index:idx_sync_runs_tenant_entity,priority:2"`
	Kind        string    `gorm:"type:varchar(10);not null"`
	Status      string    `gorm:"type:varchar(20);not null;index:idx_sync_runs_tenant_entity,priority:3"`
	Since       *time.Time
	Pages       int    `gorm:"not null;default:0"`
	Records     int    `gorm:"not null;default:0"`
	Error       string `gorm:"type:text"`
	SnapshotKey string `gorm:"type:varchar(255)"`
	StartedAt   time.Time `gorm:"not null;index:idx_sync_runs_tenant_entity,priority:4"`
	FinishedAt  *time.Time
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *SyncRunModel) ToDomain() *erp.SyncRun {
	return &erp.SyncRun{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ErpType:     erp.ErpType(m.ErpType),
		Entity:      erp.SyncEntity(m.Entity),
		Kind:        erp.SyncKind(m.Kind),
		Status:      erp.SyncStatus(m.Status),
		Since:       m.Since,
		Pages:       m.Pages,
		Records:     m.Records,
		Error:       m.Error,
		SnapshotKey: m.SnapshotKey,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncRun
func (m *SyncRunModel) FromDomain(run *erp.SyncRun) {
	m.ID = run.ID
	m.TenantID = run.TenantID
	m.ErpType = string(run.ErpType)
	m.Entity = string(run.Entity)
	m.Kind = string(run.Kind)
	m.Status = string(run.Status)
	m.Since = run.Since
	m.Pages = run.Pages
	m.Records = run.Records
	m.Error = run.Error
	m.SnapshotKey = run.SnapshotKey
	m.StartedAt = run.StartedAt
	m.FinishedAt = run.FinishedAt
}

// SyncRunModelFromDomain creates a persistence model from a domain SyncRun
func SyncRunModelFromDomain(run *erp.SyncRun) *SyncRunModel {
	m := &SyncRunModel{}
	m.FromDomain(run)
	return m
}
