package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/volume-engine/internal/utils"
	"github.com/irfndi/volume-engine/internal/volume"
)

func TestOutcomeRequest_Validate(t *testing.T) {
	valid := OutcomeRequest{RevenueSends: 40, EngagementSends: 38, RetentionSends: 12, ObservedRevenue: decimal.NewFromFloat(1520.5)}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*OutcomeRequest)
		field  string
	}{
		{"negative revenue sends", func(r *OutcomeRequest) { r.RevenueSends = -1 }, "revenue_sends"},
		{"negative engagement sends", func(r *OutcomeRequest) { r.EngagementSends = -1 }, "engagement_sends"},
		{"negative retention sends", func(r *OutcomeRequest) { r.RetentionSends = -3 }, "retention_sends"},
		{"negative revenue", func(r *OutcomeRequest) { r.ObservedRevenue = decimal.NewFromInt(-5) }, "observed_revenue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, utils.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestOutcomeRequest_Outcome(t *testing.T) {
	req := OutcomeRequest{RevenueSends: 40, EngagementSends: 38, RetentionSends: 12, ObservedRevenue: decimal.RequireFromString("1520.555"), Notes: "holiday week"}
	outcome := req.Outcome("pred-1")

	assert.Equal(t, "pred-1", outcome.PredictionID)
	assert.Equal(t, volume.CategoryTotals{Revenue: 40, Engagement: 38, Retention: 12}, outcome.Sends())
	assert.Equal(t, "1520.56", outcome.ObservedRevenue.StringFixed(2))
	assert.Equal(t, "holiday week", outcome.Notes)
}

func TestOutcomeRequest_DecodesStringRevenue(t *testing.T) {
	var req OutcomeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"revenue_sends":3,"observed_revenue":"12.30"}`), &req))
	assert.True(t, decimal.RequireFromString("12.3").Equal(req.ObservedRevenue))
}

func TestPreviewRequest_PartialConfigKeepsDefaults(t *testing.T) {
	var req PreviewRequest
	body := `{"signals":{"creator_id":"c-1","page_type":"paid"},"config":{"elasticity_bound":0.2}}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NotNil(t, req.Config)

	want := volume.DefaultConfig()
	want.ElasticityBound = 0.2
	assert.Equal(t, want, *req.Config)
	assert.Equal(t, "c-1", req.Signals.CreatorID)
	require.NoError(t, req.Config.Validate())
}

func TestPreviewRequest_NoConfigLeavesOverrideUnset(t *testing.T) {
	for _, body := range []string{`{"signals":{"creator_id":"c-1"}}`, `{"signals":{"creator_id":"c-1"},"config":null}`} {
		var req PreviewRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		assert.Nil(t, req.Config, body)
		assert.Equal(t, "c-1", req.Signals.CreatorID)
	}
}

func TestPreviewRequest_RejectsMalformedConfig(t *testing.T) {
	var req PreviewRequest
	err := json.Unmarshal([]byte(`{"signals":{},"config":{"elasticity_bound":"high"}}`), &req)
	assert.Error(t, err)
}

func TestSendAccuracy(t *testing.T) {
	planned := volume.CategoryTotals{Revenue: 40, Engagement: 40, Retention: 20}

	assert.Equal(t, "1", SendAccuracy(planned, planned).String())
	assert.Equal(t, "0.9", SendAccuracy(planned, volume.CategoryTotals{Revenue: 40, Engagement: 30, Retention: 20}).String())
	assert.Equal(t, "0.9", SendAccuracy(planned, volume.CategoryTotals{Revenue: 50, Engagement: 40, Retention: 20}).String())
	assert.True(t, SendAccuracy(planned, volume.CategoryTotals{Revenue: 400}).IsZero())
	// Nothing planned and nothing sent is a perfect match.
	assert.Equal(t, "1", SendAccuracy(volume.CategoryTotals{}, volume.CategoryTotals{}).String())
}
