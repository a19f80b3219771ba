package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// readinessTimeout bounds every dependency check of the readiness probe
const readinessTimeout = 2 * time.Second

// Pinger is a dependency the readiness probe checks, e.g. *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PoolState reports whether the actor pool still accepts work
type PoolState interface {
	IsClosed() bool
}

// HealthHandler answers liveness and readiness probes
type HealthHandler struct {
	BaseHandler
	version   string
	startTime time.Time
	db        Pinger
	pool      PoolState
}

// NewHealthHandler creates a new HealthHandler. db may be nil when sync runs
// are kept in memory.
func NewHealthHandler(version string, db Pinger, pool PoolState) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		db:        db,
		pool:      pool,
	}
}

// HealthResponse is the body of both probes
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Live godoc
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Router       /health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	h.Success(c, h.response("ok", nil))
}

// Ready godoc
// @Summary      Readiness probe
// @Description  Fails with 503 while the pool is shut down or the database is unreachable
// @Tags         health
// @Produce      json
// @Router       /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := make(map[string]string, 2)
	ready := true

	if h.pool != nil {
		if h.pool.IsClosed() {
			checks["actor_pool"] = "shutting down"
			ready = false
		} else {
			checks["actor_pool"] = "ok"
		}
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, dto.NewSuccessResponse(h.response("unavailable", checks)))
		return
	}
	h.Success(c, h.response("ok", checks))
}

func (h *HealthHandler) response(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}
}
