package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/volume-engine/internal/database"
	"github.com/irfndi/volume-engine/internal/models"
	"github.com/irfndi/volume-engine/internal/utils"
	"github.com/irfndi/volume-engine/internal/volume"
)

const testPredictionID = "7b0f7c43-54a4-4c5e-9a40-0d3b3c8f2f11"

type MockVolumePlanner struct {
	mock.Mock
}

func (m *MockVolumePlanner) Plan(ctx context.Context, creatorID string, asOf time.Time) (*volume.VolumePlan, error) {
	args := m.Called(ctx, creatorID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*volume.VolumePlan), args.Error(1)
}

func (m *MockVolumePlanner) PlanBatch(ctx context.Context, creatorIDs []string, asOf time.Time) (*models.BatchPlanResponse, error) {
	args := m.Called(ctx, creatorIDs, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchPlanResponse), args.Error(1)
}

func (m *MockVolumePlanner) LatestPlan(ctx context.Context, creatorID string) (*volume.VolumePlan, error) {
	args := m.Called(ctx, creatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*volume.VolumePlan), args.Error(1)
}

func (m *MockVolumePlanner) RecordOutcome(ctx context.Context, predictionID string, req models.OutcomeRequest) (*models.OutcomeResponse, error) {
	args := m.Called(ctx, predictionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OutcomeResponse), args.Error(1)
}

func (m *MockVolumePlanner) Preview(ctx context.Context, req models.PreviewRequest) (*volume.VolumePlan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*volume.VolumePlan), args.Error(1)
}

func newVolumeRouter(planner VolumePlanner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewVolumeHandler(planner)
	router := gin.New()
	router.POST("/creators/:creator_id/volume-plan", h.ComputePlan)
	router.GET("/creators/:creator_id/volume-plan", h.GetLatestPlan)
	router.POST("/volume-plans/batch", h.ComputeBatch)
	router.POST("/volume-plans/preview", h.Preview)
	router.POST("/predictions/:prediction_id/outcome", h.RecordOutcome)
	return router
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestVolumeHandler_ComputePlan(t *testing.T) {
	planner := new(MockVolumePlanner)
	router := newVolumeRouter(planner)
	plan := &volume.VolumePlan{CreatorID: "c-1", Tier: volume.TierMid, PredictionID: testPredictionID}

	t.Run("without body", func(t *testing.T) {
		planner.On("Plan", mock.Anything, "c-1", time.Time{}).Return(plan, nil).Once()
		w := serve(router, http.MethodPost, "/creators/c-1/volume-plan", "")
		require.Equal(t, http.StatusOK, w.Code)

		var got volume.VolumePlan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, volume.TierMid, got.Tier)
		assert.Equal(t, testPredictionID, got.PredictionID)
	})

	t.Run("with as_of in another zone", func(t *testing.T) {
		want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		planner.On("Plan", mock.Anything, "c-1", mock.MatchedBy(func(at time.Time) bool {
			return at.Equal(want) && at.Location() == time.UTC
		})).Return(plan, nil).Once()
		w := serve(router, http.MethodPost, "/creators/c-1/volume-plan", `{"as_of":"2026-03-02T16:00:00+07:00"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/creators/c-1/volume-plan", `{"as_of":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	planner.AssertExpectations(t)
}

func TestVolumeHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{"unknown creator", fmt.Errorf("load: %w", database.ErrCreatorNotFound), http.StatusNotFound, ""},
		{"missing horizons", fmt.Errorf("creator c-1: %w", volume.ErrAllHorizonsMissing), http.StatusUnprocessableEntity, ""},
		{"invalid signal", volume.ErrInvalidSignal, http.StatusUnprocessableEntity, ""},
		{"validation", utils.NewFieldError("creator_id", "is required"), http.StatusBadRequest, "creator_id"},
		{"timeout", fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ""},
		{"infrastructure", errors.New("connection refused"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			planner := new(MockVolumePlanner)
			planner.On("Plan", mock.Anything, "c-1", mock.Anything).Return(nil, tc.err)

			w := serve(newVolumeRouter(planner), http.MethodPost, "/creators/c-1/volume-plan", "")
			assert.Equal(t, tc.status, w.Code)

			resp := decodeError(t, w)
			assert.Equal(t, tc.field, resp.Field)
			if tc.status >= http.StatusInternalServerError {
				assert.NotContains(t, resp.Error, "connection refused")
			}
		})
	}
}

func TestVolumeHandler_GetLatestPlan(t *testing.T) {
	planner := new(MockVolumePlanner)
	planner.On("LatestPlan", mock.Anything, "c-1").Return(&volume.VolumePlan{CreatorID: "c-1"}, nil)
	planner.On("LatestPlan", mock.Anything, "c-2").Return(nil, database.ErrPlanNotFound)
	router := newVolumeRouter(planner)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/creators/c-1/volume-plan", "").Code)

	w := serve(router, http.MethodGet, "/creators/c-2/volume-plan", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "not found")
}

func TestVolumeHandler_ComputeBatch(t *testing.T) {
	planner := new(MockVolumePlanner)
	router := newVolumeRouter(planner)

	resp := &models.BatchPlanResponse{
		Results: []models.BatchPlanResult{
			{CreatorID: "a", Plan: &volume.VolumePlan{CreatorID: "a"}},
			{CreatorID: "b", Error: "creator not found"},
		},
		Succeeded: 1,
		Failed:    1,
	}
	planner.On("PlanBatch", mock.Anything, []string{"a", "b"}, time.Time{}).Return(resp, nil)

	w := serve(router, http.MethodPost, "/volume-plans/batch", `{"creator_ids":["a","b"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.BatchPlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, "creator not found", got.Results[1].Error)

	t.Run("empty list", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/volume-plans/batch", `{"creator_ids":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/volume-plans/batch", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too many", func(t *testing.T) {
		ids := make([]string, MaxBatchSize+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("%q", fmt.Sprintf("c-%d", i))
		}
		w := serve(router, http.MethodPost, "/volume-plans/batch", `{"creator_ids":[`+strings.Join(ids, ",")+`]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Error, "at most 500")
	})

	planner.AssertNumberOfCalls(t, "PlanBatch", 1)
}

func TestVolumeHandler_RecordOutcome(t *testing.T) {
	planner := new(MockVolumePlanner)
	router := newVolumeRouter(planner)

	planner.On("RecordOutcome", mock.Anything, testPredictionID, mock.MatchedBy(func(r models.OutcomeRequest) bool {
		return r.RevenueSends == 30 && r.ObservedRevenue.Equal(decimal.RequireFromString("812.40"))
	})).Return(&models.OutcomeResponse{
		Outcome:  models.PredictionOutcome{ID: 1, PredictionID: testPredictionID, CreatorID: "c-1"},
		Planned:  volume.CategoryTotals{Revenue: 30},
		Accuracy: decimal.RequireFromString("1"),
	}, nil)

	w := serve(router, http.MethodPost, "/predictions/"+testPredictionID+"/outcome",
		`{"revenue_sends":30,"engagement_sends":0,"retention_sends":0,"observed_revenue":"812.40"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"send_accuracy":"1"`)

	t.Run("not a uuid", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/predictions/pred-1/outcome", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Error, "UUID")
	})

	t.Run("unknown prediction", func(t *testing.T) {
		other := "00000000-0000-0000-0000-000000000001"
		planner.On("RecordOutcome", mock.Anything, other, mock.Anything).Return(nil, database.ErrPredictionNotFound)
		w := serve(router, http.MethodPost, "/predictions/"+other+"/outcome", `{}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("negative counts", func(t *testing.T) {
		other := "00000000-0000-0000-0000-000000000002"
		planner.On("RecordOutcome", mock.Anything, other, mock.Anything).
			Return(nil, utils.NewFieldError("revenue_sends", "must not be negative"))
		w := serve(router, http.MethodPost, "/predictions/"+other+"/outcome", `{"revenue_sends":-1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "revenue_sends", decodeError(t, w).Field)
	})
}

func TestVolumeHandler_Preview(t *testing.T) {
	planner := new(MockVolumePlanner)
	router := newVolumeRouter(planner)

	planner.On("Preview", mock.Anything, mock.MatchedBy(func(r models.PreviewRequest) bool {
		return r.Signals.CreatorID == "c-1" && r.Config != nil && r.Config.ElasticityBound == 0.5 &&
			r.Config.BumpMultiplierMin == 1 && r.Config.FollowupDailyCap == volume.DefaultConfig().FollowupDailyCap
	})).Return(&volume.VolumePlan{CreatorID: "c-1"}, nil)

	body := `{"signals":{"creator_id":"c-1","page_type":"paid","signals":[]},"config":{"elasticity_bound":0.5}}`
	w := serve(router, http.MethodPost, "/volume-plans/preview", body)
	assert.Equal(t, http.StatusOK, w.Code)

	t.Run("invalid config", func(t *testing.T) {
		p := new(MockVolumePlanner)
		p.On("Preview", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: %w", volume.ErrInvalidConfig, utils.NewFieldError("elasticity_bound", "must be within [0,1], got 2")))
		w := serve(newVolumeRouter(p), http.MethodPost, "/volume-plans/preview", `{"signals":{}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "elasticity_bound", decodeError(t, w).Field)
	})
}
