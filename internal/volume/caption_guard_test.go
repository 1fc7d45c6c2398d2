package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func revenueAllocations() []ContentAllocation {
	return []ContentAllocation{
		{Category: CategoryRevenue, ContentType: "bundle", Rank: RankTop, Count: 6},
		{Category: CategoryRevenue, ContentType: "solo", Rank: RankMid, Count: 4},
		{Category: CategoryRevenue, ContentType: "tease", Rank: RankLow, Count: 2},
	}
}

func TestCaptionPoolGuard_DropsWhenNoCapacity(t *testing.T) {
	inventory := CaptionInventory{"bundle": 0, "solo": 4, "tease": 2}

	result := NewCaptionPoolGuard().Guard(revenueAllocations(), CategoryTotals{Revenue: 12}, inventory)

	counts := countsByType(result.Allocations, CategoryRevenue)
	assert.Equal(t, 0, counts["bundle"])
	assert.Equal(t, 4, counts["solo"])
	assert.Equal(t, 6, result.Totals.Revenue)
	assert.True(t, result.Shortfall)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "bundle needs 6 fresh captions, 0 available")
	require.Len(t, result.Adjustments, 1)
	assert.Equal(t, "shortfall_dropped", result.Adjustments[0].Reason)
	assert.Equal(t, -6.0, result.Adjustments[0].Delta)
}

func TestCaptionPoolGuard_RedistributesToUnconstrainedType(t *testing.T) {
	inventory := CaptionInventory{"Bundle": 2, "tease": 2}

	result := NewCaptionPoolGuard().Guard(revenueAllocations(), CategoryTotals{Revenue: 12}, inventory)

	counts := countsByType(result.Allocations, CategoryRevenue)
	assert.Equal(t, map[string]int{"bundle": 2, "solo": 8, "tease": 2}, counts)
	assert.Equal(t, 12, result.Totals.Revenue)
	require.Len(t, result.Adjustments, 1)
	assert.Equal(t, "redistributed", result.Adjustments[0].Reason)
	assert.Equal(t, 4.0, result.Adjustments[0].Delta)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "4 redistributed, 0 dropped")
}

func TestCaptionPoolGuard_PartialRedistribution(t *testing.T) {
	inventory := CaptionInventory{"bundle": 0, "solo": 6, "tease": 2}

	result := NewCaptionPoolGuard().Guard(revenueAllocations(), CategoryTotals{Revenue: 12}, inventory)

	counts := countsByType(result.Allocations, CategoryRevenue)
	assert.Equal(t, map[string]int{"bundle": 0, "solo": 6, "tease": 2}, counts)
	assert.Equal(t, 8, result.Totals.Revenue)
	require.Len(t, result.Adjustments, 2)
	assert.Equal(t, "redistributed", result.Adjustments[0].Reason)
	assert.Equal(t, "shortfall_dropped", result.Adjustments[1].Reason)
	assert.Equal(t, -4.0, result.Adjustments[1].Delta)
}

func TestCaptionPoolGuard_InventorySharedAcrossCategories(t *testing.T) {
	allocs := []ContentAllocation{
		{Category: CategoryRevenue, ContentType: "solo", Rank: RankTop, Count: 5},
		{Category: CategoryEngagement, ContentType: "solo", Rank: RankTop, Count: 5},
	}

	result := NewCaptionPoolGuard().Guard(allocs, CategoryTotals{Revenue: 5, Engagement: 5}, CaptionInventory{"solo": 7})

	assert.Equal(t, 5, result.Allocations[0].Count)
	assert.Equal(t, 2, result.Allocations[1].Count)
	assert.Equal(t, CategoryTotals{Revenue: 5, Engagement: 2}, result.Totals)
	assert.Len(t, result.Warnings, 1)
}

func TestCaptionPoolGuard_NilInventory(t *testing.T) {
	allocs := revenueAllocations()

	result := NewCaptionPoolGuard().Guard(allocs, CategoryTotals{Revenue: 12}, nil)

	assert.Equal(t, allocs, result.Allocations)
	assert.False(t, result.Shortfall)
	assert.Empty(t, result.Warnings)
}
