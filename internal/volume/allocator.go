package volume

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// AllocationResult is the per-category content split.
type AllocationResult struct {
	Allocations []ContentAllocation
	Adjustments []Adjustment
}

// Allocator splits category totals across content types.
type Allocator interface {
	Allocate(totals CategoryTotals, rankings []ContentRanking, confidence float64) AllocationResult
}

// ContentAllocator weights content types by rank, flattened by low confidence.
type ContentAllocator struct{}

// NewContentAllocator creates a content allocator.
func NewContentAllocator() *ContentAllocator {
	return &ContentAllocator{}
}

// Allocate apportions each category total over its ranked content types.
// Types ranked avoid never receive an entry, nor does a category with no sends.
func (a *ContentAllocator) Allocate(totals CategoryTotals, rankings []ContentRanking, confidence float64) AllocationResult {
	var result AllocationResult
	byCategory := EligibleRankings(rankings)
	confidence = clamp(confidence, 0, 1)

	for _, cat := range Categories {
		total := totals.Get(cat)
		if total == 0 {
			continue
		}
		eligible := byCategory[cat]
		if len(eligible) == 0 {
			if total > 0 {
				result.Adjustments = append(result.Adjustments, Adjustment{
					Stage:  "allocation",
					Reason: "no_ranked_types",
					Detail: fmt.Sprintf("%s: %d sends left without a content type", cat, total),
				})
			}
			continue
		}

		weights := make([]float64, len(eligible))
		for i, r := range eligible {
			weights[i] = 1 + confidence*(r.Rank.Weight()-1)
		}
		counts := apportion(total, weights)
		for i, r := range eligible {
			result.Allocations = append(result.Allocations, ContentAllocation{
				Category:    cat,
				ContentType: r.ContentType,
				Rank:        r.Rank,
				Count:       counts[i],
			})
		}
	}
	return result
}

// EligibleRankings normalises content types, drops avoid-ranked and unknown
// entries, and orders each category best rank first. A type ranked avoid
// anywhere in its category is excluded even if also ranked higher.
func EligibleRankings(rankings []ContentRanking) map[Category][]ContentRanking {
	type key struct {
		cat Category
		ct  string
	}
	best := make(map[key]ContentRanking)
	avoided := make(map[key]bool)
	for _, r := range rankings {
		ct := NormalizeContentType(r.ContentType)
		if ct == "" {
			continue
		}
		k := key{r.Category, ct}
		if r.Rank == RankAvoid {
			avoided[k] = true
			continue
		}
		if r.Rank.Weight() == 0 {
			continue
		}
		if cur, ok := best[k]; !ok || r.Rank.Weight() > cur.Rank.Weight() {
			best[k] = ContentRanking{ContentType: ct, Category: r.Category, Rank: r.Rank}
		}
	}

	out := make(map[Category][]ContentRanking)
	for k, r := range best {
		if avoided[k] {
			continue
		}
		out[k.cat] = append(out[k.cat], r)
	}
	for cat := range out {
		list := out[cat]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Rank.Weight() != list[j].Rank.Weight() {
				return list[i].Rank.Weight() > list[j].Rank.Weight()
			}
			return list[i].ContentType < list[j].ContentType
		})
	}
	return out
}

// NormalizeContentType case-folds and trims a content type key.
func NormalizeContentType(ct string) string {
	return cases.Fold().String(strings.TrimSpace(ct))
}

// apportion splits total over weights with the largest-remainder method.
// Ties go to the earlier (better ranked) entry.
func apportion(total int, weights []float64) []int {
	out := make([]int, len(weights))
	if total <= 0 || len(weights) == 0 {
		return out
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return out
	}

	fracs := make([]float64, len(weights))
	assigned := 0
	for i, w := range weights {
		raw := float64(total) * w / sum
		whole := int(math.Floor(raw + floorEpsilon))
		out[i] = whole
		fracs[i] = raw - float64(whole)
		assigned += whole
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return fracs[order[i]] > fracs[order[j]]
	})
	for i := 0; assigned < total; i = (i + 1) % len(order) {
		out[order[i]]++
		assigned++
	}
	for i := len(order) - 1; assigned > total; i = (i + len(order) - 1) % len(order) {
		if out[order[i]] > 0 {
			out[order[i]]--
			assigned--
		}
	}
	return out
}
