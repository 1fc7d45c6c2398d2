package volume

import (
	"math"
	"sort"
)

// floorEpsilon absorbs float noise so 2.9999999 floors to 3.
const floorEpsilon = 1e-9

// DayDistributor spreads weekly totals across the week.
type DayDistributor interface {
	Multipliers(rates [DaysPerWeek]float64) [DaysPerWeek]float64
	Distribute(weekly int, multipliers [DaysPerWeek]float64) DailySeries
}

// DowDistributor is the default DayDistributor.
type DowDistributor struct{}

// NewDowDistributor creates a day-of-week distributor.
func NewDowDistributor() *DowDistributor {
	return &DowDistributor{}
}

// Multipliers normalises historical rates to multipliers that sum to 7.
// Days without signal keep a neutral 1.0.
func (d *DowDistributor) Multipliers(rates [DaysPerWeek]float64) [DaysPerWeek]float64 {
	var out [DaysPerWeek]float64
	positive := 0
	sum := 0.0
	for _, r := range rates {
		if r > 0 && !math.IsInf(r, 0) {
			positive++
			sum += r
		}
	}
	for i, r := range rates {
		if positive == 0 || r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			out[i] = 1.0
			continue
		}
		out[i] = r * float64(positive) / sum
	}
	return out
}

// Distribute splits an integer weekly total so the seven integer days sum to it exactly.
func (d *DowDistributor) Distribute(weekly int, multipliers [DaysPerWeek]float64) DailySeries {
	var out DailySeries
	if weekly <= 0 {
		return out
	}

	type remainder struct {
		day  int
		frac float64
	}
	rems := make([]remainder, DaysPerWeek)
	assigned := 0
	share := float64(weekly) / DaysPerWeek
	for i, m := range multipliers {
		raw := share * m
		whole := int(math.Floor(raw + floorEpsilon))
		if whole < 0 {
			whole = 0
		}
		out[i] = whole
		assigned += whole
		rems[i] = remainder{day: i, frac: raw - float64(whole)}
	}

	sort.SliceStable(rems, func(i, j int) bool {
		if rems[i].frac != rems[j].frac {
			return rems[i].frac > rems[j].frac
		}
		if multipliers[rems[i].day] != multipliers[rems[j].day] {
			return multipliers[rems[i].day] > multipliers[rems[j].day]
		}
		return rems[i].day < rems[j].day
	})

	left := weekly - assigned
	for i := 0; left > 0; i = (i + 1) % DaysPerWeek {
		out[rems[i].day]++
		left--
	}
	// Float noise can overshoot by a unit; take it back from the smallest remainders.
	for i := DaysPerWeek - 1; left < 0; i = (i + DaysPerWeek - 1) % DaysPerWeek {
		if out[rems[i].day] > 0 {
			out[rems[i].day]--
			left++
		}
	}
	return out
}
