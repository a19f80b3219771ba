package integration

import (
	"context"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Sink receives the pages fetched by a sync run. Implementations forward
// them to the downstream catalog and customer services.
type Sink interface {
	Articles(ctx context.Context, run *erp.SyncRun, items []erp.Article) error
	Customers(ctx context.Context, run *erp.SyncRun, items []erp.Customer) error
	Orders(ctx context.Context, run *erp.SyncRun, items []erp.Order) error
}

// LoggingSink only logs what it receives. It is the default when no
// downstream service is wired.
type LoggingSink struct{}

// Articles implements Sink
func (LoggingSink) Articles(ctx context.Context, run *erp.SyncRun, items []erp.Article) error {
	logPage(ctx, run, len(items))
	return nil
}

// Customers implements Sink
func (LoggingSink) Customers(ctx context.Context, run *erp.SyncRun, items []erp.Customer) error {
	logPage(ctx, run, len(items))
	return nil
}

// Orders implements Sink
func (LoggingSink) Orders(ctx context.Context, run *erp.SyncRun, items []erp.Order) error {
	logPage(ctx, run, len(items))
	return nil
}

func logPage(ctx context.Context, run *erp.SyncRun, n int) {
	logger.L(ctx).Debug("sync page received",
		zap.String("run_id", run.ID.String()),
		zap.String("entity", string(run.Entity)),
		zap.Int("page", run.Pages),
		zap.Int("records", n),
	)
}

var _ Sink = LoggingSink{}
