package integration

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockConnector is a mock implementation of erp.Connector
type MockConnector struct {
	mock.Mock
	erpType erp.ErpType
	caps    erp.Capabilities
}

func newMockConnector(caps erp.Capabilities) *MockConnector {
	return &MockConnector{erpType: erp.ErpTypeRest, caps: caps}
}

func (m *MockConnector) ErpType() erp.ErpType           { return m.erpType }
func (m *MockConnector) Capabilities() erp.Capabilities { return m.caps }

func (m *MockConnector) GetArticles(ctx context.Context, query erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Page[erp.Article]), args.Error(1)
}

func (m *MockConnector) GetCustomers(ctx context.Context, query erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Page[erp.Customer]), args.Error(1)
}

func (m *MockConnector) GetOrders(ctx context.Context, query erp.OrderQuery) (*erp.Page[erp.Order], error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Page[erp.Order]), args.Error(1)
}

func (m *MockConnector) CreateOrder(ctx context.Context, req *erp.CreateOrderRequest) (*erp.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Order), args.Error(1)
}

func (m *MockConnector) UpdateOrder(ctx context.Context, req *erp.UpdateOrderRequest) (*erp.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Order), args.Error(1)
}

func (m *MockConnector) TestConnection(ctx context.Context) (*erp.ConnectionResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.ConnectionResult), args.Error(1)
}

// MockResolver is a mock implementation of ConnectorResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, tenant erp.TenantContext) (erp.Connector, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(erp.Connector), args.Error(1)
}

// MockSyncRunRepository is a mock implementation of erp.SyncRunRepository
type MockSyncRunRepository struct {
	mock.Mock
}

func (m *MockSyncRunRepository) Save(ctx context.Context, run *erp.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockSyncRunRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*erp.SyncRun, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.SyncRun), args.Error(1)
}

func (m *MockSyncRunRepository) FindLatest(ctx context.Context, tenantID uuid.UUID, entity erp.SyncEntity, status erp.SyncStatus) (*erp.SyncRun, error) {
	args := m.Called(ctx, tenantID, entity, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.SyncRun), args.Error(1)
}

func (m *MockSyncRunRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]erp.SyncRun, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]erp.SyncRun), args.Error(1)
}

// memorySyncRuns keeps copies of saved runs so tests can look at every
// state a run went through
type memorySyncRuns struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]erp.SyncRun
	states []erp.SyncStatus
}

func newMemorySyncRuns() *memorySyncRuns {
	return &memorySyncRuns{runs: make(map[uuid.UUID]erp.SyncRun)}
}

func (r *memorySyncRuns) Save(_ context.Context, run *erp.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	r.states = append(r.states, run.Status)
	return nil
}

func (r *memorySyncRuns) FindByID(_ context.Context, tenantID, id uuid.UUID) (*erp.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, erp.ErrSyncRunNotFound
	}
	return &run, nil
}

func (r *memorySyncRuns) FindLatest(_ context.Context, tenantID uuid.UUID, entity erp.SyncEntity, status erp.SyncStatus) (*erp.SyncRun, error) {
	runs := r.list(tenantID)
	for i := range runs {
		if runs[i].Entity == entity && runs[i].Status == status {
			return &runs[i], nil
		}
	}
	return nil, erp.ErrSyncRunNotFound
}

func (r *memorySyncRuns) ListByTenant(_ context.Context, tenantID uuid.UUID, limit int) ([]erp.SyncRun, error) {
	runs := r.list(tenantID)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *memorySyncRuns) list(tenantID uuid.UUID) []erp.SyncRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	var runs []erp.SyncRun
	for _, run := range r.runs {
		if run.TenantID == tenantID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs
}

// recordingSink remembers how many records each page delivered
type recordingSink struct {
	mu    sync.Mutex
	pages []int
	err   error
}

func (s *recordingSink) record(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, n)
	return s.err
}

func (s *recordingSink) Articles(_ context.Context, _ *erp.SyncRun, items []erp.Article) error {
	return s.record(len(items))
}

func (s *recordingSink) Customers(_ context.Context, _ *erp.SyncRun, items []erp.Customer) error {
	return s.record(len(items))
}

func (s *recordingSink) Orders(_ context.Context, _ *erp.SyncRun, items []erp.Order) error {
	return s.record(len(items))
}

func newTestPool(t *testing.T, capacity int) *actor.ActorPool {
	t.Helper()
	cfg := actor.DefaultPoolConfig()
	cfg.QueueCapacity = capacity
	cfg.DefaultOperationTimeout = 2 * time.Second
	pool, err := actor.NewActorPool(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx, false)
	})
	return pool
}

func newTenant() erp.TenantContext {
	return erp.NewTenantContext(uuid.New())
}
