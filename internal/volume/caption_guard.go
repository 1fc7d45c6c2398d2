package volume

import "fmt"

// GuardResult is the inventory-checked allocation.
type GuardResult struct {
	Allocations []ContentAllocation
	Totals      CategoryTotals
	Warnings    []string
	Adjustments []Adjustment
	Shortfall   bool
}

// CaptionGuard degrades allocations that caption inventory cannot fulfil.
type CaptionGuard interface {
	Guard(allocations []ContentAllocation, totals CategoryTotals, inventory CaptionInventory) GuardResult
}

// CaptionPoolGuard caps allocations to fresh caption inventory. Inventory is
// shared across categories; content types absent from the inventory are
// unconstrained.
type CaptionPoolGuard struct{}

// NewCaptionPoolGuard creates a caption pool guard.
func NewCaptionPoolGuard() *CaptionPoolGuard {
	return &CaptionPoolGuard{}
}

type pool struct {
	remaining map[string]int
}

func newPool(inventory CaptionInventory) *pool {
	p := &pool{remaining: make(map[string]int, len(inventory))}
	for ct, n := range inventory {
		ct = NormalizeContentType(ct)
		if n < 0 {
			n = 0
		}
		p.remaining[ct] += n
	}
	return p
}

// take reserves up to n captions and returns how many were granted.
func (p *pool) take(ct string, n int) int {
	left, tracked := p.remaining[ct]
	if !tracked {
		return n
	}
	if n > left {
		n = left
	}
	p.remaining[ct] = left - n
	return n
}

// Guard caps, redistributes and drops shortfalls. It never fails.
func (g *CaptionPoolGuard) Guard(allocations []ContentAllocation, totals CategoryTotals, inventory CaptionInventory) GuardResult {
	result := GuardResult{
		Allocations: append([]ContentAllocation(nil), allocations...),
		Totals:      totals,
	}
	if inventory == nil {
		return result
	}
	p := newPool(inventory)

	for _, cat := range Categories {
		var idx []int
		for i, a := range result.Allocations {
			if a.Category == cat {
				idx = append(idx, i)
			}
		}

		type shortage struct {
			at        int
			need      int
			available int
			missing   int
		}
		var shortages []shortage
		for _, i := range idx {
			a := &result.Allocations[i]
			if a.Count == 0 {
				continue
			}
			need := a.Count
			available := p.remaining[a.ContentType]
			granted := p.take(a.ContentType, need)
			if granted < need {
				a.Count = granted
				shortages = append(shortages, shortage{at: i, need: need, available: available, missing: need - granted})
			}
		}

		for _, s := range shortages {
			short := result.Allocations[s.at]
			left := s.missing
			moved := 0
			for _, j := range idx {
				if left == 0 {
					break
				}
				target := &result.Allocations[j]
				if j == s.at || target.ContentType == short.ContentType {
					continue
				}
				given := p.take(target.ContentType, left)
				if given == 0 {
					continue
				}
				target.Count += given
				left -= given
				moved += given
				result.Adjustments = append(result.Adjustments, Adjustment{
					Stage:  "caption_guard",
					Reason: "redistributed",
					Delta:  float64(given),
					Detail: fmt.Sprintf("%s: %d sends moved from %s to %s", cat, given, short.ContentType, target.ContentType),
				})
			}

			if left > 0 {
				result.Totals.Set(cat, result.Totals.Get(cat)-left)
				result.Adjustments = append(result.Adjustments, Adjustment{
					Stage:  "caption_guard",
					Reason: "shortfall_dropped",
					Delta:  float64(-left),
					Detail: fmt.Sprintf("%s: %d %s sends dropped", cat, left, short.ContentType),
				})
			}

			result.Shortfall = true
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"%s: %s needs %d fresh captions, %d available; %d redistributed, %d dropped",
				cat, short.ContentType, s.need, s.available, moved, left))
		}
	}
	return result
}
