package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/irfndi/volume-engine/internal/middleware"
	"github.com/irfndi/volume-engine/internal/models"
	"github.com/irfndi/volume-engine/internal/volume"
)

// MaxBatchSize bounds the creator ids accepted by one batch request.
const MaxBatchSize = 500

// VolumePlanner is the service behind the volume endpoints.
type VolumePlanner interface {
	Plan(ctx context.Context, creatorID string, asOf time.Time) (*volume.VolumePlan, error)
	PlanBatch(ctx context.Context, creatorIDs []string, asOf time.Time) (*models.BatchPlanResponse, error)
	LatestPlan(ctx context.Context, creatorID string) (*volume.VolumePlan, error)
	RecordOutcome(ctx context.Context, predictionID string, req models.OutcomeRequest) (*models.OutcomeResponse, error)
	Preview(ctx context.Context, req models.PreviewRequest) (*volume.VolumePlan, error)
}

// VolumeHandler serves volume plans over HTTP.
type VolumeHandler struct {
	planner VolumePlanner
}

// NewVolumeHandler creates a new volume handler
func NewVolumeHandler(planner VolumePlanner) *VolumeHandler {
	return &VolumeHandler{planner: planner}
}

// ComputePlan computes and stores a plan for one creator.
// POST /api/v1/creators/:creator_id/volume-plan
func (h *VolumeHandler) ComputePlan(c *gin.Context) {
	creatorID := c.Param("creator_id")
	middleware.AddSpanAttribute(c, "creator.id", creatorID)

	// The body is optional.
	var req models.VolumePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var asOf time.Time
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	plan, err := h.planner.Plan(c.Request.Context(), creatorID, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// GetLatestPlan returns the latest stored plan for a creator.
// GET /api/v1/creators/:creator_id/volume-plan
func (h *VolumeHandler) GetLatestPlan(c *gin.Context) {
	creatorID := c.Param("creator_id")
	middleware.AddSpanAttribute(c, "creator.id", creatorID)

	plan, err := h.planner.LatestPlan(c.Request.Context(), creatorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// ComputeBatch computes plans for many creators.
// POST /api/v1/volume-plans/batch
func (h *VolumeHandler) ComputeBatch(c *gin.Context) {
	var req models.BatchPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if len(req.CreatorIDs) > MaxBatchSize {
		respondBadRequest(c, "Too many creator_ids: at most 500 per batch")
		return
	}
	middleware.AddSpanAttribute(c, "batch.size", len(req.CreatorIDs))

	var asOf time.Time
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	resp, err := h.planner.PlanBatch(c.Request.Context(), req.CreatorIDs, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecordOutcome stores the observed result of a prediction.
// POST /api/v1/predictions/:prediction_id/outcome
func (h *VolumeHandler) RecordOutcome(c *gin.Context) {
	predictionID := c.Param("prediction_id")
	if _, err := uuid.Parse(predictionID); err != nil {
		respondBadRequest(c, "prediction_id must be a UUID")
		return
	}
	middleware.AddSpanAttribute(c, "plan.prediction_id", predictionID)

	var req models.OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.planner.RecordOutcome(c.Request.Context(), predictionID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Preview runs the engine on the request body without reading or storing anything.
// POST /api/v1/volume-plans/preview
func (h *VolumeHandler) Preview(c *gin.Context) {
	var req models.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	plan, err := h.planner.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}
