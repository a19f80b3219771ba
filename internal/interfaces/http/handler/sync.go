package handler

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"

	"github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/scheduler"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 200
)

// SyncOperations is the part of integration.SyncService the HTTP API uses
type SyncOperations interface {
	Sync(ctx context.Context, tenant erp.TenantContext, entity erp.SyncEntity, kind erp.SyncKind) (*erp.SyncRun, error)
	GetRun(ctx context.Context, tenantID, id uuid.UUID) (*erp.SyncRun, error)
	ListRuns(ctx context.Context, tenantID uuid.UUID, limit int) ([]erp.SyncRun, error)
	GetSnapshot(ctx context.Context, tenantID, runID uuid.UUID, inline bool) (*integration.Snapshot, error)
}

// JobScheduler queues background syncs
type JobScheduler interface {
	ScheduleSync(tenantID uuid.UUID, kind erp.SyncKind, entities ...erp.SyncEntity) (*scheduler.SyncJob, error)
	GetJobHistory(limit int) []*scheduler.SyncJob
}

// SyncHandler triggers and reports entity synchronizations
type SyncHandler struct {
	BaseHandler
	syncService SyncOperations
	scheduler   JobScheduler
}

// NewSyncHandler creates a new SyncHandler. jobs may be nil when background
// sync is disabled; async requests are then refused.
func NewSyncHandler(syncService SyncOperations, jobs JobScheduler) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		scheduler:   jobs,
	}
}

// TriggerSync godoc
// @Summary      Synchronize an entity
// @Description  Pages the entity out of the tenant's ERP, one actor operation per page.
// @Description  With async=true the sync is queued and 202 is returned with the job.
// @Tags         sync
// @Produce      json
// @Param        entity  path   string  true   "ARTICLES, CUSTOMERS or ORDERS"
// @Param        kind    query  string  false  "FULL or DELTA (default)"
// @Param        async   query  bool    false  "Queue instead of waiting"
// @Router       /erp/sync/{entity} [post]
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	entity, err := dto.ParseSyncEntity(c.Param("entity"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req dto.SyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	if req.Async {
		h.schedule(c, tenant, entity, req.SyncKind())
		return
	}

	run, err := h.syncService.Sync(c.Request.Context(), tenant, entity, req.SyncKind())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewSyncRunResponse(run))
}

func (h *SyncHandler) schedule(c *gin.Context, tenant erp.TenantContext, entity erp.SyncEntity, kind erp.SyncKind) {
	if h.scheduler == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSchedulerDisabled, "Background sync is disabled")
		return
	}

	job, err := h.scheduler.ScheduleSync(tenant.TenantID, kind, entity)
	switch {
	case errors.Is(err, scheduler.ErrJobQueueFull):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSchedulerBusy, "Sync job queue is full")
		return
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSchedulerDisabled, "Background sync is not running")
		return
	case err != nil:
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, queuedJobResponse(job))
}

// ListRuns godoc
// @Summary      List recent sync runs
// @Tags         sync
// @Produce      json
// @Param        limit  query  int  false  "Max runs (default 20, max 200)"
// @Router       /erp/sync/runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	limit, ok := h.limit(c)
	if !ok {
		return
	}

	runs, err := h.syncService.ListRuns(c.Request.Context(), tenant.TenantID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewSyncRunResponses(runs))
}

// GetRun godoc
// @Summary      Get a sync run
// @Tags         sync
// @Produce      json
// @Param        id  path  string  true  "Run ID"
// @Router       /erp/sync/runs/{id} [get]
func (h *SyncHandler) GetRun(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, err := h.syncService.GetRun(c.Request.Context(), tenant.TenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewSyncRunResponse(run))
}

// GetSnapshot godoc
// @Summary      Get the archived snapshot of a sync run
// @Description  Returns a presigned download link when the object store supports it.
// @Description  Otherwise, or with inline=true, the archived JSON document is returned as is.
// @Tags         sync
// @Produce      json
// @Param        id      path   string  true   "Run ID"
// @Param        inline  query  bool    false  "Return the document instead of a link"
// @Router       /erp/sync/runs/{id}/snapshot [get]
func (h *SyncHandler) GetSnapshot(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	inline := false
	if raw := c.Query("inline"); raw != "" {
		if inline, err = strconv.ParseBool(raw); err != nil {
			h.BadRequest(c, "inline must be a boolean")
			return
		}
	}

	snap, err := h.syncService.GetSnapshot(c.Request.Context(), tenant.TenantID, id, inline)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if snap.URL != "" {
		h.Success(c, dto.SnapshotLinkResponse{
			RunID:     id.String(),
			Key:       snap.Key,
			URL:       snap.URL,
			ExpiresAt: snap.ExpiresAt,
		})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+path.Base(snap.Key)+`"`)
	c.Data(http.StatusOK, "application/json", snap.Data)
}

// ListJobs returns the tenant's recently finished background jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	tenant, ok := h.tenantContext(c)
	if !ok {
		return
	}
	if h.scheduler == nil {
		h.Success(c, []dto.SyncJobResponse{})
		return
	}

	limit, ok := h.limit(c)
	if !ok {
		return
	}

	jobs := make([]dto.SyncJobResponse, 0, limit)
	for _, job := range h.scheduler.GetJobHistory(0) {
		if job.TenantID != tenant.TenantID {
			continue
		}
		jobs = append(jobs, jobResponse(job))
		if len(jobs) == limit {
			break
		}
	}
	h.Success(c, jobs)
}

func (h *SyncHandler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultRunListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		h.BadRequest(c, "limit must be a positive integer")
		return 0, false
	}
	return min(limit, maxRunListLimit), true
}

// queuedJobResponse only reads the fields a worker never writes; the job may
// already be running.
func queuedJobResponse(job *scheduler.SyncJob) dto.SyncJobResponse {
	return dto.SyncJobResponse{
		ID:       job.ID.String(),
		TenantID: job.TenantID.String(),
		Kind:     string(job.Kind),
		Entities: entityNames(job.Entities),
		Status:   string(scheduler.SyncJobStatusPending),
	}
}

// jobResponse converts a finished job from the history
func jobResponse(job *scheduler.SyncJob) dto.SyncJobResponse {
	resp := dto.SyncJobResponse{
		ID:          job.ID.String(),
		TenantID:    job.TenantID.String(),
		Kind:        string(job.Kind),
		Entities:    entityNames(job.Entities),
		Status:      string(job.Status),
		Error:       job.Error,
		Skipped:     entityNames(job.Skipped),
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	for _, id := range job.RunIDs {
		resp.RunIDs = append(resp.RunIDs, id.String())
	}
	return resp
}

func entityNames(entities []erp.SyncEntity) []string {
	if len(entities) == 0 {
		return nil
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = string(e)
	}
	return names
}
