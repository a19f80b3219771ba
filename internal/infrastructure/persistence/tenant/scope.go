// Package tenant scopes GORM queries to a single tenant.
//
// Every tenant-owned table carries a tenant_id column. Repositories read
// through TenantDB.ForTenant so that a query can never return another
// tenant's rows:
//
//	runs := tenant.NewTenantDB(gormDB)
//	runs.ForTenant(ctx, tenantID).Where("entity = ?", "ARTICLES").Find(&models)
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Column is the tenant column of tenant-owned tables
const Column = "tenant_id"

// ErrTenantIDRequired is added to a statement scoped to uuid.Nil
var ErrTenantIDRequired = errors.New("tenant_id is required")

// Scope restricts a query to tenantID. A nil tenant fails the statement
// instead of leaving it unscoped.
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where(Column+" = ?", tenantID)
	}
}

// TenantDB hands out tenant-scoped sessions of one GORM DB
type TenantDB struct {
	db *gorm.DB
}

// NewTenantDB creates a new TenantDB
func NewTenantDB(db *gorm.DB) *TenantDB {
	return &TenantDB{db: db}
}

// ForTenant returns a session bound to ctx that only sees rows of tenantID
func (t *TenantDB) ForTenant(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return t.db.WithContext(ctx).Scopes(Scope(tenantID))
}

// DB returns the unscoped DB. Writes use it, since the row carries its own
// tenant_id.
func (t *TenantDB) DB() *gorm.DB {
	return t.db
}
