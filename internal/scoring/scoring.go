// Package scoring computes achievement percentages and score bands for KPI
// actuals. All functions are pure; invalid input yields a zero result with
// the Invalid band instead of an error.
package scoring

import (
	"fmt"
	"math"

	"github.com/noah-isme/kpi-hub-api/internal/models"
)

// DefaultCap bounds achievement percentages for ratio-based KPI types.
const DefaultCap = 150.0

// Bands in descending order of achievement.
const (
	BandOutstanding = "Outstanding"
	BandExcellent   = "Excellent"
	BandGood        = "Good"
	BandFair        = "Fair"
	BandNeedsImprov = "Needs Improvement"
	BandInvalid     = "Invalid"
	BandNotAchieved = "Not Achieved"
	BandMilestone   = "Milestone"
)

// Result is the outcome of scoring one actual value.
type Result struct {
	Percentage  float64 `json:"percentage"`
	Score       float64 `json:"score"`
	Band        string  `json:"band"`
	Explanation string  `json:"explanation"`
}

// Evaluate dispatches on the KPI type. The milestone scale is only consulted
// for MILESTONE KPIs; cap <= 0 falls back to DefaultCap.
func Evaluate(kpiType models.KpiType, actual, target float64, scale []models.MilestoneStep, cap float64) Result {
	if cap <= 0 {
		cap = DefaultCap
	}
	switch kpiType {
	case models.KpiTypeHigherBetter:
		return HigherBetter(actual, target, cap)
	case models.KpiTypeLowerBetter:
		return LowerBetter(actual, target, cap)
	case models.KpiTypeBoolean:
		return Boolean(actual > 0)
	case models.KpiTypeMilestone:
		return Milestone(actual, scale)
	case models.KpiTypeBehavior:
		// Behavior KPIs are rated on a 1-5 scale against a 5-point target.
		return HigherBetter(actual, 5, cap)
	default:
		return invalid(fmt.Sprintf("unknown KPI type %q", kpiType))
	}
}

// HigherBetter scores actual/target, capped.
func HigherBetter(actual, target, cap float64) Result {
	if target <= 0 {
		return invalid("target must be positive")
	}
	pct := math.Min(actual/target*100, cap)
	if pct < 0 {
		pct = 0
	}
	score, band := bandFor(pct)
	return Result{
		Percentage:  round2(pct),
		Score:       score,
		Band:        band,
		Explanation: fmt.Sprintf("achieved %.2f of target %.2f (%.1f%%)", actual, target, pct),
	}
}

// LowerBetter scores target/actual, capped. An actual of zero is a perfect
// outcome regardless of target.
func LowerBetter(actual, target, cap float64) Result {
	if target <= 0 {
		return invalid("target must be positive")
	}
	if actual < 0 {
		return invalid("actual must not be negative")
	}
	var pct float64
	if actual == 0 {
		pct = cap
	} else {
		pct = math.Min(target/actual*100, cap)
	}
	score, band := bandFor(pct)
	return Result{
		Percentage:  round2(pct),
		Score:       score,
		Band:        band,
		Explanation: fmt.Sprintf("kept %.2f against ceiling %.2f (%.1f%%)", actual, target, pct),
	}
}

// Boolean scores a done/not-done KPI. The scale is intentionally asymmetric:
// done earns 100%% and score 4, not done earns nothing.
func Boolean(done bool) Result {
	if done {
		return Result{Percentage: 100, Score: 4, Band: BandExcellent, Explanation: "deliverable completed"}
	}
	return Result{Percentage: 0, Score: 0, Band: BandNotAchieved, Explanation: "deliverable not completed"}
}

// Milestone evaluates a cascading threshold scale. Every step the actual
// satisfies contributes; the result is the maximum score level among the
// satisfied steps, not the first or last match. No satisfied step scores 0.
// Direction is detected from the first two thresholds: ascending means
// actual >= threshold passes, descending means actual <= threshold passes.
func Milestone(actual float64, scale []models.MilestoneStep) Result {
	if len(scale) == 0 {
		return invalid("milestone scale is empty")
	}

	ascending := true
	if len(scale) > 1 && scale[1].Threshold < scale[0].Threshold {
		ascending = false
	}

	best := math.Inf(-1)
	bestThreshold := 0.0
	for _, step := range scale {
		satisfied := actual >= step.Threshold
		if !ascending {
			satisfied = actual <= step.Threshold
		}
		if satisfied && step.Score > best {
			best = step.Score
			bestThreshold = step.Threshold
		}
	}

	if math.IsInf(best, -1) {
		return Result{Percentage: 0, Score: 0, Band: BandNotAchieved, Explanation: "no milestone threshold satisfied"}
	}
	return Result{
		Percentage:  best,
		Score:       best,
		Band:        BandMilestone,
		Explanation: fmt.Sprintf("milestone threshold %.2f satisfied for score %.2f", bestThreshold, best),
	}
}

// bandFor maps an achievement percentage onto the 1-5 score scale.
func bandFor(pct float64) (float64, string) {
	switch {
	case pct >= 120:
		return 5, BandOutstanding
	case pct >= 100:
		return 4, BandExcellent
	case pct >= 80:
		return 3, BandGood
	case pct >= 60:
		return 2, BandFair
	default:
		return 1, BandNeedsImprov
	}
}

// ValidateScale checks the cascading-scale invariant: score levels must
// strictly increase in threshold order.
func ValidateScale(scale []models.MilestoneStep) error {
	if len(scale) == 0 {
		return fmt.Errorf("milestone scale requires at least one step")
	}
	for i := 1; i < len(scale); i++ {
		if scale[i].Score <= scale[i-1].Score {
			return fmt.Errorf("milestone scores must strictly increase: step %d (%.2f) <= step %d (%.2f)",
				i+1, scale[i].Score, i, scale[i-1].Score)
		}
	}
	return nil
}

func invalid(reason string) Result {
	return Result{Band: BandInvalid, Explanation: reason}
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
