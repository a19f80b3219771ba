package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// SyncJobStatus represents the status of a scheduled sync job
type SyncJobStatus string

const (
	SyncJobStatusPending SyncJobStatus = "PENDING"
	SyncJobStatusRunning SyncJobStatus = "RUNNING"
	SyncJobStatusSuccess SyncJobStatus = "SUCCESS"
	SyncJobStatusPartial SyncJobStatus = "PARTIAL"
	SyncJobStatusFailed  SyncJobStatus = "FAILED"
)

// SyncJob syncs a set of entities of one tenant
type SyncJob struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Kind        erp.SyncKind
	Entities    []erp.SyncEntity
	Status      SyncJobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time

	// RunIDs holds the sync runs the job produced
	RunIDs    []uuid.UUID
	Skipped   []erp.SyncEntity
	Succeeded int
	Failures  int
}

// NewSyncJob creates a new sync job
func NewSyncJob(tenantID uuid.UUID, kind erp.SyncKind, entities ...erp.SyncEntity) *SyncJob {
	if len(entities) == 0 {
		entities = AllEntities()
	}
	return &SyncJob{
		ID:       uuid.New(),
		TenantID: tenantID,
		Kind:     kind,
		Entities: entities,
		Status:   SyncJobStatusPending,
	}
}

// AllEntities returns every syncable entity
func AllEntities() []erp.SyncEntity {
	return []erp.SyncEntity{erp.SyncEntityArticles, erp.SyncEntityCustomers, erp.SyncEntityOrders}
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete sets the final status from the number of failed entities
func (j *SyncJob) Complete() {
	now := time.Now()
	j.CompletedAt = &now

	switch {
	case j.Failures == 0:
		j.Status = SyncJobStatusSuccess
	case j.Succeeded > 0:
		j.Status = SyncJobStatusPartial
	default:
		j.Status = SyncJobStatusFailed
	}
}

// ---------------------------------------------------------------------------
// Syncer Interface
// ---------------------------------------------------------------------------

// Syncer runs one entity synchronization for a tenant
type Syncer interface {
	Sync(ctx context.Context, tenant erp.TenantContext, entity erp.SyncEntity, kind erp.SyncKind) (*erp.SyncRun, error)
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync job scheduler
type SyncSchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers. Each job runs through the
	// tenant's actor, so workers only bound how many tenants sync at once.
	MaxConcurrentJobs int
	// QueueSize is the number of jobs that may wait for a worker
	QueueSize int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// MaxHistory is the number of finished jobs kept for monitoring
	MaxHistory int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: 5,
		QueueSize:         100,
		JobTimeout:        30 * time.Minute,
		MaxHistory:        100,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.QueueSize <= 0 || c.JobTimeout <= 0 || c.MaxHistory < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler runs sync jobs on a fixed set of workers
type SyncScheduler struct {
	config SyncSchedulerConfig
	syncer Syncer
	logger *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	historyMu sync.RWMutex
	history   []*SyncJob
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, syncer Syncer, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		config:  config,
		syncer:  syncer,
		logger:  logger,
		jobs:    make(chan *SyncJob, config.QueueSize),
		history: make([]*SyncJob, 0, config.MaxHistory),
	}, nil
}

// Start starts the workers
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob queues a job without blocking
func (s *SyncScheduler) SubmitJob(job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("tenant_id", job.TenantID.String()),
			zap.String("kind", string(job.Kind)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleSync queues a sync of the given entities, all of them when none
// are given
func (s *SyncScheduler) ScheduleSync(tenantID uuid.UUID, kind erp.SyncKind, entities ...erp.SyncEntity) (*SyncJob, error) {
	job := NewSyncJob(tenantID, kind, entities...)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob syncs every entity of the job in order. Entities the tenant's
// connector cannot read are skipped.
func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
	)
	log.Info("Processing sync job", zap.String("kind", string(job.Kind)))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	tenant := erp.NewTenantContext(job.TenantID)
	var errs []error
	for _, entity := range job.Entities {
		run, err := s.syncer.Sync(jobCtx, tenant, entity, job.Kind)
		if run != nil {
			job.RunIDs = append(job.RunIDs, run.ID)
		}
		switch {
		case err == nil:
			job.Succeeded++
		case errors.Is(err, erp.ErrUnsupportedOperation):
			job.Skipped = append(job.Skipped, entity)
		default:
			job.Failures++
			errs = append(errs, err)
			log.Warn("Entity sync failed", zap.String("entity", string(entity)), zap.Error(err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		job.Error = err.Error()
	}
	job.Complete()

	log.Info("Sync job completed",
		zap.String("status", string(job.Status)),
		zap.Int("runs", len(job.RunIDs)),
		zap.Int("failures", job.Failures),
	)
	s.addToHistory(job)
}

func (s *SyncScheduler) addToHistory(job *SyncJob) {
	if s.config.MaxHistory == 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*SyncJob{job}, s.history...)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[:s.config.MaxHistory]
	}
}

// GetJobHistory returns the most recent finished jobs, newest first
func (s *SyncScheduler) GetJobHistory(limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}
