package handler

import (
	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/gin-gonic/gin"
)

// PoolStatsSource is satisfied by *actor.ActorPool
type PoolStatsSource interface {
	Stats() actor.PoolStats
}

// PoolHandler exposes the actor pool state to operators
type PoolHandler struct {
	BaseHandler
	pool PoolStatsSource
}

// NewPoolHandler creates a new PoolHandler
func NewPoolHandler(pool PoolStatsSource) *PoolHandler {
	return &PoolHandler{pool: pool}
}

// GetStats godoc
// @Summary      Actor pool statistics
// @Description  Per-tenant queue depth, in-flight state and operation counters
// @Tags         ops
// @Produce      json
// @Router       /erp/pool/stats [get]
func (h *PoolHandler) GetStats(c *gin.Context) {
	h.Success(c, h.pool.Stats())
}
