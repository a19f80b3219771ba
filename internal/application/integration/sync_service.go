package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxSyncPages stops a run whose connector never reports the last page
const maxSyncPages = 10000

// SnapshotStore archives sync snapshots and reads them back. It is satisfied
// by the S3 and in-memory object storages.
type SnapshotStore interface {
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error
	GetObject(ctx context.Context, storageKey string) ([]byte, error)
	ObjectExists(ctx context.Context, storageKey string) (bool, error)
}

// SnapshotPresigner is implemented by stores that hand out download URLs.
// expiresIn <= 0 uses the store default.
type SnapshotPresigner interface {
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}

// Snapshot is an archived run. URL is set when the store presigns downloads,
// Data otherwise.
type Snapshot struct {
	Key       string
	URL       string
	ExpiresAt time.Time
	Data      []byte
}

// SyncOptions configures a SyncService
type SyncOptions struct {
	PageSize int
	// SnapshotPrefix is the object key prefix of archived runs
	SnapshotPrefix string
	// QueueFullRetries is how often a page rejected with ErrQueueFull is
	// resubmitted before the run fails
	QueueFullRetries int
	QueueFullBackoff time.Duration
}

// DefaultSyncOptions returns the default sync options
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		PageSize:         erp.DefaultPageSize,
		SnapshotPrefix:   "sync-snapshots",
		QueueFullRetries: 5,
		QueueFullBackoff: 500 * time.Millisecond,
	}
}

// SyncService pulls articles, customers and orders page by page through the
// tenant's actor, so that a long sync interleaves with interactive calls
// instead of blocking them.
type SyncService struct {
	pool      *actor.ActorPool
	resolver  ConnectorResolver
	runs      erp.SyncRunRepository
	sink      Sink
	snapshots SnapshotStore
	opts      SyncOptions
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[syncKey]struct{}
}

type syncKey struct {
	tenantID uuid.UUID
	entity   erp.SyncEntity
}

// NewSyncService creates a new SyncService. sink defaults to LoggingSink;
// snapshots may be nil to disable archiving.
func NewSyncService(
	pool *actor.ActorPool,
	resolver ConnectorResolver,
	runs erp.SyncRunRepository,
	sink Sink,
	snapshots SnapshotStore,
	opts SyncOptions,
	log *zap.Logger,
) *SyncService {
	if sink == nil {
		sink = LoggingSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	defaults := DefaultSyncOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = defaults.PageSize
	}
	if opts.SnapshotPrefix == "" {
		opts.SnapshotPrefix = defaults.SnapshotPrefix
	}
	if opts.QueueFullRetries < 0 {
		opts.QueueFullRetries = 0
	}
	if opts.QueueFullBackoff <= 0 {
		opts.QueueFullBackoff = defaults.QueueFullBackoff
	}
	return &SyncService{
		pool:      pool,
		resolver:  resolver,
		runs:      runs,
		sink:      sink,
		snapshots: snapshots,
		opts:      opts,
		logger:    log,
		inFlight:  make(map[syncKey]struct{}),
	}
}

// SyncArticles synchronizes the tenant's articles
func (s *SyncService) SyncArticles(ctx context.Context, tenant erp.TenantContext, kind erp.SyncKind) (*erp.SyncRun, error) {
	return s.Sync(ctx, tenant, erp.SyncEntityArticles, kind)
}

// SyncCustomers synchronizes the tenant's customers
func (s *SyncService) SyncCustomers(ctx context.Context, tenant erp.TenantContext, kind erp.SyncKind) (*erp.SyncRun, error) {
	return s.Sync(ctx, tenant, erp.SyncEntityCustomers, kind)
}

// SyncOrders synchronizes the tenant's orders
func (s *SyncService) SyncOrders(ctx context.Context, tenant erp.TenantContext, kind erp.SyncKind) (*erp.SyncRun, error) {
	return s.Sync(ctx, tenant, erp.SyncEntityOrders, kind)
}

// Sync runs one synchronization. The returned run is non-nil once the run was
// started, also when it ended FAILED or PARTIAL.
func (s *SyncService) Sync(ctx context.Context, tenant erp.TenantContext, entity erp.SyncEntity, kind erp.SyncKind) (*erp.SyncRun, error) {
	if !entity.IsValid() {
		return nil, fmt.Errorf("%w: unknown sync entity %q", erp.ErrInvalidArgument, entity)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown sync kind %q", erp.ErrInvalidArgument, kind)
	}
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	key := syncKey{tenantID: tenant.TenantID, entity: entity}
	if !s.acquire(key) {
		return nil, fmt.Errorf("%w: %s for tenant %s", erp.ErrSyncInProgress, entity, tenant.TenantID)
	}
	defer s.release(key)

	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "run",
		telemetry.AttrTenantID.String(tenant.TenantID.String()),
		telemetry.AttrSyncEntity.String(string(entity)),
		telemetry.AttrSyncKind.String(string(kind)),
	)
	defer span.End()

	conn, err := s.resolver.Resolve(ctx, tenant)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !conn.Capabilities().Has(entity.RequiredCapability()) {
		err := fmt.Errorf("%w: %s sync on %s", erp.ErrUnsupportedOperation, entity, conn.ErpType())
		telemetry.RecordError(span, err)
		return nil, err
	}

	since, err := s.since(ctx, tenant.TenantID, entity, kind)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	run := erp.NewSyncRun(tenant.TenantID, conn.ErpType(), entity, kind, since)
	if err := s.runs.Save(ctx, run); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save sync run: %w", err)
	}

	log := contextLogger(ctx, s.logger).With(
		zap.String("run_id", run.ID.String()),
		zap.String("entity", string(entity)),
		zap.String("kind", string(kind)),
	)
	log.Info("sync started", zap.Timep("since", since))

	var snapshot any
	switch entity {
	case erp.SyncEntityArticles:
		snapshot, err = syncPages(ctx, s, tenant, run, OpGetArticles,
			func(ctx context.Context, page erp.PageQuery) (*erp.Page[erp.Article], error) {
				return conn.GetArticles(ctx, erp.ArticleQuery{PageQuery: page})
			}, s.sink.Articles)
	case erp.SyncEntityCustomers:
		snapshot, err = syncPages(ctx, s, tenant, run, OpGetCustomers,
			func(ctx context.Context, page erp.PageQuery) (*erp.Page[erp.Customer], error) {
				return conn.GetCustomers(ctx, erp.CustomerQuery{PageQuery: page})
			}, s.sink.Customers)
	case erp.SyncEntityOrders:
		snapshot, err = syncPages(ctx, s, tenant, run, OpGetOrders,
			func(ctx context.Context, page erp.PageQuery) (*erp.Page[erp.Order], error) {
				return conn.GetOrders(ctx, erp.OrderQuery{PageQuery: page})
			}, s.sink.Orders)
	}

	// the final state is stored even if the caller went away
	saveCtx := context.WithoutCancel(ctx)

	if err != nil {
		run.Fail(err)
		telemetry.RecordError(span, err)
		if saveErr := s.runs.Save(saveCtx, run); saveErr != nil {
			log.Error("failed to save sync run", zap.Error(saveErr))
		}
		log.Warn("sync failed",
			zap.String("status", string(run.Status)),
			zap.Int("pages", run.Pages),
			zap.Int("records", run.Records),
			zap.Error(err),
		)
		return run, err
	}

	if s.snapshots != nil {
		s.archive(saveCtx, run, snapshot, log)
	}

	run.Succeed()
	if err := s.runs.Save(saveCtx, run); err != nil {
		telemetry.RecordError(span, err)
		return run, fmt.Errorf("failed to save sync run: %w", err)
	}
	log.Info("sync finished",
		zap.Int("pages", run.Pages),
		zap.Int("records", run.Records),
		zap.Duration("duration", run.Duration()),
	)
	return run, nil
}

// GetRun returns a sync run of the tenant
func (s *SyncService) GetRun(ctx context.Context, tenantID, id uuid.UUID) (*erp.SyncRun, error) {
	return s.runs.FindByID(ctx, tenantID, id)
}

// GetSnapshot returns the archived snapshot of a tenant's run. With inline
// the document is read through the service even if the store could presign.
func (s *SyncService) GetSnapshot(ctx context.Context, tenantID, runID uuid.UUID, inline bool) (*Snapshot, error) {
	run, err := s.runs.FindByID(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if s.snapshots == nil || run.SnapshotKey == "" {
		return nil, fmt.Errorf("%w: run %s", erp.ErrSnapshotNotFound, runID)
	}

	key := run.SnapshotKey
	exists, err := s.snapshots.ObjectExists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check snapshot: %w", err)
	}
	if !exists {
		// removed by a bucket lifecycle rule
		return nil, fmt.Errorf("%w: %s", erp.ErrSnapshotNotFound, key)
	}

	if presigner, ok := s.snapshots.(SnapshotPresigner); ok && !inline {
		url, expiresAt, err := presigner.GenerateDownloadURL(ctx, key, 0)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Key: key, URL: url, ExpiresAt: expiresAt}, nil
	}

	data, err := s.snapshots.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Key: key, Data: data}, nil
}

// ListRuns returns the newest sync runs of the tenant
func (s *SyncService) ListRuns(ctx context.Context, tenantID uuid.UUID, limit int) ([]erp.SyncRun, error) {
	return s.runs.ListByTenant(ctx, tenantID, limit)
}

// since returns the delta start: the start time of the last successful run.
// A delta without a previous success reads everything.
func (s *SyncService) since(ctx context.Context, tenantID uuid.UUID, entity erp.SyncEntity, kind erp.SyncKind) (*time.Time, error) {
	if kind != erp.SyncKindDelta {
		return nil, nil
	}
	last, err := s.runs.FindLatest(ctx, tenantID, entity, erp.SyncStatusSucceeded)
	if errors.Is(err, erp.ErrSyncRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last sync run: %w", err)
	}
	since := last.StartedAt
	return &since, nil
}

// syncPages fetches pages until the connector reports the last one. Each
// page is a separate actor operation.
func syncPages[T any](
	ctx context.Context,
	s *SyncService,
	tenant erp.TenantContext,
	run *erp.SyncRun,
	kind string,
	fetch func(ctx context.Context, page erp.PageQuery) (*erp.Page[T], error),
	deliver func(ctx context.Context, run *erp.SyncRun, items []T) error,
) ([]T, error) {
	var all []T
	for page := 1; page <= maxSyncPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, fmt.Errorf("%w: %v", erp.ErrCancelled, err)
		}

		q := erp.PageQuery{Page: page, PageSize: s.opts.PageSize, ModifiedSince: run.Since}
		result, err := submitPage(ctx, s, tenant, kind, page, func(opCtx context.Context) (*erp.Page[T], error) {
			return fetch(opCtx, q)
		})
		if err != nil {
			return all, err
		}

		run.RecordPage(len(result.Items))
		if err := deliver(ctx, run, result.Items); err != nil {
			return all, fmt.Errorf("sink rejected page %d: %w", page, err)
		}
		if s.snapshots != nil {
			all = append(all, result.Items...)
		}
		if err := s.runs.Save(ctx, run); err != nil {
			return all, fmt.Errorf("failed to save sync progress: %w", err)
		}
		if !result.HasMore {
			return all, nil
		}
	}
	return all, fmt.Errorf("%w: more than %d pages", erp.ErrConnector, maxSyncPages)
}

// submitPage runs one page fetch on the tenant's actor. Pages rejected with
// ErrQueueFull are resubmitted with exponential backoff; every other error
// ends the run.
func submitPage[T any](
	ctx context.Context,
	s *SyncService,
	tenant erp.TenantContext,
	kind string,
	page int,
	fn actor.ExecuteFunc[*erp.Page[T]],
) (*erp.Page[T], error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.QueueFullBackoff
	b.MaxInterval = 10 * s.opts.QueueFullBackoff

	result, err := backoff.Retry(ctx, func() (*erp.Page[T], error) {
		res, err := actor.Run(ctx, s.pool, tenant, kind, s.timeout(ctx), fn)
		if err != nil && !errors.Is(err, erp.ErrQueueFull) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.QueueFullRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.AddEvent(ctx, "sync.page.rejected", telemetry.AttrPage.Int(page))
			contextLogger(ctx, s.logger).Debug("sync page rejected, retrying",
				zap.Int("page", page),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, erp.NewConnectorError("", kind, errors.New("connector returned no page"), false)
	}
	return result, nil
}

func (s *SyncService) timeout(ctx context.Context) time.Duration {
	if d := OperationTimeout(ctx); d > 0 {
		return d
	}
	return s.pool.DefaultTimeout()
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

type snapshotDocument struct {
	RunID    uuid.UUID      `json:"run_id"`
	TenantID uuid.UUID      `json:"tenant_id"`
	ErpType  erp.ErpType    `json:"erp_type"`
	Entity   erp.SyncEntity `json:"entity"`
	Kind     erp.SyncKind   `json:"kind"`
	Since    *time.Time     `json:"since,omitempty"`
	TakenAt  time.Time      `json:"taken_at"`
	Records  int            `json:"records"`
	Items    any            `json:"items"`
}

// SnapshotKey returns the object key a run is archived under
func SnapshotKey(prefix string, run *erp.SyncRun) string {
	return path.Join(prefix, run.TenantID.String(), strings.ToLower(string(run.Entity)),
		run.StartedAt.UTC().Format("20060102T150405Z")+"-"+run.ID.String()+".json")
}

// archive uploads the fetched records. A failed upload is logged and does not
// fail the run.
func (s *SyncService) archive(ctx context.Context, run *erp.SyncRun, items any, log *logger.ContextLogger) {
	data, err := json.Marshal(snapshotDocument{
		RunID:    run.ID,
		TenantID: run.TenantID,
		ErpType:  run.ErpType,
		Entity:   run.Entity,
		Kind:     run.Kind,
		Since:    run.Since,
		TakenAt:  time.Now().UTC(),
		Records:  run.Records,
		Items:    items,
	})
	if err != nil {
		log.Warn("failed to encode sync snapshot", zap.Error(err))
		return
	}

	key := SnapshotKey(s.opts.SnapshotPrefix, run)
	if err := s.snapshots.Upload(ctx, key, data, "application/json"); err != nil {
		log.Warn("failed to upload sync snapshot", zap.String("key", key), zap.Error(err))
		return
	}
	run.SnapshotKey = key
}

func (s *SyncService) acquire(key syncKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *SyncService) release(key syncKey) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}
