package volume

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ElasticityResult is the outcome of bounding a proposal.
type ElasticityResult struct {
	Totals      CategoryTotals
	Capped      bool
	Adjustments []Adjustment
}

// ChangeBounder limits the change between consecutive plans.
type ChangeBounder interface {
	Bound(proposed CategoryTotals, previous *PreviousPlan, page PageType) ElasticityResult
}

// ElasticityBounder clamps each category's weekly change to a fraction of the previous total.
type ElasticityBounder struct {
	bound decimal.Decimal
}

// NewElasticityBounder creates a bounder with the given fractional bound.
func NewElasticityBounder(bound float64) *ElasticityBounder {
	return &ElasticityBounder{bound: decimal.NewFromFloat(bound)}
}

// Bound clamps proposed totals against the previous plan. A nil previous plan
// leaves the proposal untouched.
func (b *ElasticityBounder) Bound(proposed CategoryTotals, previous *PreviousPlan, page PageType) ElasticityResult {
	result := ElasticityResult{Totals: proposed}
	if !page.AllowsRetention() {
		result.Totals.Retention = 0
	}
	if previous == nil {
		return result
	}

	for _, cat := range Categories {
		if cat == CategoryRetention && !page.AllowsRetention() {
			continue
		}
		prev := previous.BaseTotals.Get(cat)
		next := result.Totals.Get(cat)
		clamped, capped := b.clampOne(prev, next)
		if !capped {
			continue
		}
		result.Totals.Set(cat, clamped)
		result.Capped = true
		result.Adjustments = append(result.Adjustments, Adjustment{
			Stage:  "elasticity",
			Reason: "bound_exceeded",
			Delta:  float64(clamped - next),
			Detail: fmt.Sprintf("%s: previous %d, proposed %d, clamped to %d", cat, prev, next, clamped),
		})
	}
	return result
}

// clampOne reports capped whenever |next-prev| exceeds bound*max(prev,1).
// The clamped value moves by round(allowed), and by at least one send under a
// positive bound so small totals are not frozen.
func (b *ElasticityBounder) clampOne(prev, next int) (int, bool) {
	reference := prev
	if reference < 1 {
		reference = 1
	}
	allowed := b.bound.Mul(decimal.NewFromInt(int64(reference)))
	change := decimal.NewFromInt(int64(next - prev))
	if change.Abs().LessThanOrEqual(allowed) {
		return next, false
	}

	step := allowed.Round(0).IntPart()
	if step < 1 && allowed.IsPositive() {
		step = 1
	}
	if magnitude := change.Abs().IntPart(); step > magnitude {
		step = magnitude
	}
	if next < prev {
		out := prev - int(step)
		if out < 0 {
			out = 0
		}
		return out, true
	}
	return prev + int(step), true
}
