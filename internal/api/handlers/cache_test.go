package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/volume-engine/internal/cache"
	"github.com/irfndi/volume-engine/internal/services"
	"github.com/irfndi/volume-engine/internal/volume"
)

func newCacheRouter(t *testing.T, system SystemInfoProvider) (*gin.Engine, *cache.RedisPlanCache, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	planCache := cache.NewRedisPlanCache(client, time.Hour, time.Minute, nil)
	h := NewCacheHandler(planCache, system)

	router := gin.New()
	router.GET("/admin/cache/stats", h.GetCacheStats)
	router.DELETE("/admin/cache", h.ClearCache)
	router.DELETE("/admin/cache/creators/:creator_id", h.InvalidateCreator)
	router.GET("/admin/system", h.GetSystemInfo)
	return router, planCache, mr
}

func TestCacheHandler_StatsAndInvalidate(t *testing.T) {
	router, planCache, mr := newCacheRouter(t, nil)
	ctx := context.Background()

	require.NoError(t, planCache.SetInventory(ctx, "c-1", volume.CaptionInventory{"bundle": 3}))
	require.NoError(t, planCache.SetInventory(ctx, "c-2", volume.CaptionInventory{"bundle": 1}))
	_, hit := planCache.GetInventory(ctx, "c-1")
	require.True(t, hit)
	_, hit = planCache.GetInventory(ctx, "c-9")
	require.False(t, hit)

	w := serve(router, http.MethodGet, "/admin/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data    cache.PlanCacheStats `json:"data"`
		HitRate float64              `json:"hit_rate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Data.Hits)
	assert.Equal(t, int64(1), body.Data.Misses)
	assert.Equal(t, int64(2), body.Data.Sets)
	assert.InDelta(t, 0.5, body.HitRate, 1e-9)

	w = serve(router, http.MethodDelete, "/admin/cache/creators/c-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists("volume:inventory:c-1"))
	assert.True(t, mr.Exists("volume:inventory:c-2"))

	w = serve(router, http.MethodDelete, "/admin/cache", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists("volume:inventory:c-2"))
}

func TestCacheHandler_RedisDown(t *testing.T) {
	router, _, mr := newCacheRouter(t, nil)
	mr.Close()

	w := serve(router, http.MethodDelete, "/admin/cache", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type stubSystem struct {
	limit int
}

func (s *stubSystem) GetSystemInfo() map[string]interface{} {
	return map[string]interface{}{"cpu_cores": 4}
}

func (s *stubSystem) GetPerformanceHistory(limit int) []services.BatchSnapshot {
	s.limit = limit
	return []services.BatchSnapshot{{Creators: 12}}
}

func TestCacheHandler_GetSystemInfo(t *testing.T) {
	sys := &stubSystem{}
	router, _, _ := newCacheRouter(t, sys)

	w := serve(router, http.MethodGet, "/admin/system?history=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, sys.limit)
	assert.Contains(t, w.Body.String(), `"creators":12`)

	serve(router, http.MethodGet, "/admin/system?history=bogus", "")
	assert.Equal(t, 10, sys.limit)

	unconfigured, _, _ := newCacheRouter(t, nil)
	w = serve(unconfigured, http.MethodGet, "/admin/system", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
