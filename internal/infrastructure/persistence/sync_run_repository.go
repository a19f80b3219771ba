package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/erp/connector/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultSyncRunListLimit = 50
	maxSyncRunListLimit     = 500
)

// GormSyncRunRepository implements erp.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *tenant.TenantDB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: tenant.NewTenantDB(db)}
}

// Save inserts or updates a run
func (r *GormSyncRunRepository) Save(ctx context.Context, run *erp.SyncRun) error {
	if run == nil || run.ID == uuid.Nil {
		return fmt.Errorf("%w: sync run id is required", erp.ErrInvalidArgument)
	}
	return r.db.DB().WithContext(ctx).Save(models.SyncRunModelFromDomain(run)).Error
}

// FindByID finds a run of a tenant
func (r *GormSyncRunRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*erp.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.ForTenant(ctx, tenantID).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, erp.ErrSyncRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatest returns the most recently started run of an entity with the given status
func (r *GormSyncRunRepository) FindLatest(ctx context.Context, tenantID uuid.UUID, entity erp.SyncEntity, status erp.SyncStatus) (*erp.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.ForTenant(ctx, tenantID).
		Where("entity = ? AND status = ?", string(entity), string(status)).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, erp.ErrSyncRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByTenant returns the newest runs of a tenant
func (r *GormSyncRunRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]erp.SyncRun, error) {
	if limit <= 0 {
		limit = defaultSyncRunListLimit
	}
	if limit > maxSyncRunListLimit {
		limit = maxSyncRunListLimit
	}

	var runModels []models.SyncRunModel
	if err := r.db.ForTenant(ctx, tenantID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]erp.SyncRun, len(runModels))
	for i, model := range runModels {
		runs[i] = *model.ToDomain()
	}
	return runs, nil
}

var _ erp.SyncRunRepository = (*GormSyncRunRepository)(nil)
