package volume

// Tier score thresholds on the 0-100 performance score.
const (
	tierTopScore  = 75.0
	tierHighScore = 60.0
	tierMidScore  = 45.0
)

// baselineDaily holds revenue/engagement/retention sends per day for levels 1-5.
var baselineDaily = [5][3]int{
	{2, 2, 1},
	{3, 3, 1},
	{4, 4, 2},
	{5, 5, 2},
	{6, 6, 3},
}

// TierResult is the output of tier classification.
type TierResult struct {
	Tier          Tier    `json:"tier"`
	BaselineLevel int     `json:"baseline_level"`
	Score         float64 `json:"score"`
	// NoData is set when neither signals nor messages were supplied.
	NoData bool `json:"no_data"`
	// Sparse is set when data exists but is below the minimum message count.
	Sparse bool `json:"sparse"`
}

// TierClassifier maps aggregate history to a performance tier.
type TierClassifier interface {
	Classify(signals []PerformanceSignal, messageCount int) TierResult
}

// BaseTierClassifier scores the longest available horizon.
type BaseTierClassifier struct {
	MinDataMessages int
}

// NewBaseTierClassifier creates a classifier with the given minimum message count.
func NewBaseTierClassifier(minDataMessages int) *BaseTierClassifier {
	return &BaseTierClassifier{MinDataMessages: minDataMessages}
}

// Classify assigns a tier. Sparse or missing data always yields TierNew.
func (c *BaseTierClassifier) Classify(signals []PerformanceSignal, messageCount int) TierResult {
	if len(signals) == 0 && messageCount == 0 {
		return TierResult{Tier: TierNew, BaselineLevel: TierNew.Level(), NoData: true}
	}

	score := 0.0
	if longest, ok := longestHorizon(signals); ok {
		score = (longest.Opportunity + (100 - longest.Saturation)) / 2
	}

	if messageCount < c.MinDataMessages {
		return TierResult{Tier: TierNew, BaselineLevel: TierNew.Level(), Score: score, Sparse: true}
	}

	var tier Tier
	switch {
	case score >= tierTopScore:
		tier = TierTop
	case score >= tierHighScore:
		tier = TierHigh
	case score >= tierMidScore:
		tier = TierMid
	default:
		tier = TierLow
	}
	return TierResult{Tier: tier, BaselineLevel: tier.Level(), Score: score}
}

func longestHorizon(signals []PerformanceSignal) (PerformanceSignal, bool) {
	var best PerformanceSignal
	found := false
	for _, s := range signals {
		if !found || s.Horizon.Days() > best.Horizon.Days() {
			best = s
			found = true
		}
	}
	return best, found
}

// BaselineTotals returns the weekly totals for a baseline level. Retention is
// zero when the page type does not permit it.
func BaselineTotals(level int, page PageType) CategoryTotals {
	if level < 1 {
		level = 1
	}
	if level > len(baselineDaily) {
		level = len(baselineDaily)
	}
	row := baselineDaily[level-1]
	totals := CategoryTotals{
		Revenue:    row[0] * DaysPerWeek,
		Engagement: row[1] * DaysPerWeek,
	}
	if page.AllowsRetention() {
		totals.Retention = row[2] * DaysPerWeek
	}
	return totals
}

// levelForRevenue returns the highest level whose baseline revenue per day
// does not exceed ppvPerDay, with a floor of 1.
func levelForRevenue(ppvPerDay int) int {
	level := 1
	for i, row := range baselineDaily {
		if row[0] <= ppvPerDay {
			level = i + 1
		}
	}
	return level
}
