package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/volume-engine/internal/cache"
	"github.com/irfndi/volume-engine/internal/services"
)

// PlanCacheAdmin is the part of the plan cache exposed to operators.
type PlanCacheAdmin interface {
	GetStats() cache.PlanCacheStats
	Invalidate(ctx context.Context, creatorID string) error
	Clear(ctx context.Context) error
}

// SystemInfoProvider exposes worker sizing state.
type SystemInfoProvider interface {
	GetSystemInfo() map[string]interface{}
	GetPerformanceHistory(limit int) []services.BatchSnapshot
}

// CacheHandler serves the /admin endpoints for the plan cache and worker sizing.
type CacheHandler struct {
	cache  PlanCacheAdmin
	system SystemInfoProvider
}

// NewCacheHandler creates a new cache handler. system may be nil.
func NewCacheHandler(planCache PlanCacheAdmin, system SystemInfoProvider) *CacheHandler {
	return &CacheHandler{cache: planCache, system: system}
}

// GetCacheStats returns plan cache hit/miss counters and the hit rate.
// GET /admin/cache/stats
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	stats := h.cache.GetStats()
	hitRate := 0.0
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     stats,
		"hit_rate": hitRate,
	})
}

// InvalidateCreator drops cached entries for one creator.
// DELETE /admin/cache/creators/:creator_id
func (h *CacheHandler) InvalidateCreator(c *gin.Context) {
	creatorID := c.Param("creator_id")
	if err := h.cache.Invalidate(c.Request.Context(), creatorID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cache entries invalidated for " + creatorID,
	})
}

// ClearCache drops every plan cache entry.
// DELETE /admin/cache
func (h *CacheHandler) ClearCache(c *gin.Context) {
	if err := h.cache.Clear(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Plan cache cleared",
	})
}

// GetSystemInfo returns worker sizing state and recent batch history.
// GET /admin/system?history=N
func (h *CacheHandler) GetSystemInfo(c *gin.Context) {
	if h.system == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "resource optimizer not configured"})
		return
	}

	limit := 10
	if raw := c.Query("history"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.system.GetSystemInfo(),
		"history": h.system.GetPerformanceHistory(limit),
	})
}
