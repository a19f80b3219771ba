package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSyncRunTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.SyncRunModel{})
	require.NoError(t, err)

	return db
}

func newTestRun(tenantID uuid.UUID, entity erp.SyncEntity, startedAt time.Time) *erp.SyncRun {
	run := erp.NewSyncRun(tenantID, erp.ErpTypeSandbox, entity, erp.SyncKindFull, nil)
	run.StartedAt = startedAt
	return run
}

func TestSyncRunRepository_SaveAndFind(t *testing.T) {
	repo := NewGormSyncRunRepository(setupSyncRunTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()

	run := newTestRun(tenantID, erp.SyncEntityArticles, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Save(ctx, run))

	found, err := repo.FindByID(ctx, tenantID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, erp.SyncStatusRunning, found.Status)
	assert.Equal(t, erp.SyncEntityArticles, found.Entity)
	assert.Nil(t, found.FinishedAt)

	t.Run("save updates an existing run", func(t *testing.T) {
		run.RecordPage(40)
		run.RecordPage(2)
		run.SnapshotKey = "snapshots/run.json"
		run.Succeed()
		require.NoError(t, repo.Save(ctx, run))

		found, err := repo.FindByID(ctx, tenantID, run.ID)
		require.NoError(t, err)
		assert.Equal(t, erp.SyncStatusSucceeded, found.Status)
		assert.Equal(t, 2, found.Pages)
		assert.Equal(t, 42, found.Records)
		assert.Equal(t, "snapshots/run.json", found.SnapshotKey)
		require.NotNil(t, found.FinishedAt)
	})

	t.Run("other tenant cannot see the run", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New(), run.ID)
		assert.ErrorIs(t, err, erp.ErrSyncRunNotFound)
	})

	t.Run("rejects run without id", func(t *testing.T) {
		err := repo.Save(ctx, &erp.SyncRun{})
		assert.ErrorIs(t, err, erp.ErrInvalidArgument)
	})
}

func TestSyncRunRepository_FindLatest(t *testing.T) {
	repo := NewGormSyncRunRepository(setupSyncRunTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	older := newTestRun(tenantID, erp.SyncEntityCustomers, base.Add(1*time.Hour))
	older.Succeed()
	newer := newTestRun(tenantID, erp.SyncEntityCustomers, base.Add(2*time.Hour))
	newer.Succeed()
	failed := newTestRun(tenantID, erp.SyncEntityCustomers, base.Add(3*time.Hour))
	failed.Fail(errors.New("erp down"))
	otherEntity := newTestRun(tenantID, erp.SyncEntityOrders, base.Add(4*time.Hour))
	otherEntity.Succeed()

	for _, r := range []*erp.SyncRun{older, newer, failed, otherEntity} {
		require.NoError(t, repo.Save(ctx, r))
	}

	latest, err := repo.FindLatest(ctx, tenantID, erp.SyncEntityCustomers, erp.SyncStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	latestFailed, err := repo.FindLatest(ctx, tenantID, erp.SyncEntityCustomers, erp.SyncStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, failed.ID, latestFailed.ID)
	assert.Equal(t, "erp down", latestFailed.Error)

	_, err = repo.FindLatest(ctx, tenantID, erp.SyncEntityArticles, erp.SyncStatusSucceeded)
	assert.ErrorIs(t, err, erp.ErrSyncRunNotFound)
}

func TestSyncRunRepository_ListByTenant(t *testing.T) {
	repo := NewGormSyncRunRepository(setupSyncRunTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, repo.Save(ctx, newTestRun(tenantID, erp.SyncEntityArticles, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.Save(ctx, newTestRun(uuid.New(), erp.SyncEntityArticles, base)))

	runs, err := repo.ListByTenant(ctx, tenantID, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt), "newest first")
	assert.Equal(t, base.Add(4*time.Hour), runs[0].StartedAt.UTC())

	all, err := repo.ListByTenant(ctx, tenantID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSyncRunRepository_FindLatestSQL(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormSyncRunRepository(db.DB)

	tenantID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "sync_runs" WHERE \(?entity = \$1 AND status = \$2\)? AND tenant_id = \$3 ORDER BY started_at DESC.* LIMIT \$4`).
		WithArgs("ORDERS", "SUCCEEDED", tenantID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindLatest(context.Background(), tenantID, erp.SyncEntityOrders, erp.SyncStatusSucceeded)
	assert.ErrorIs(t, err, erp.ErrSyncRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
