package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/models"
)

func TestHigherBetterBands(t *testing.T) {
	cases := []struct {
		name   string
		actual float64
		target float64
		pct    float64
		score  float64
		band   string
	}{
		{"outstanding capped", 200, 100, 150, 5, BandOutstanding},
		{"excellent", 100, 100, 100, 4, BandExcellent},
		{"good", 92, 100, 92, 3, BandGood},
		{"fair", 65, 100, 65, 2, BandFair},
		{"needs improvement", 30, 100, 30, 1, BandNeedsImprov},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := HigherBetter(tc.actual, tc.target, DefaultCap)
			assert.Equal(t, tc.pct, res.Percentage)
			assert.Equal(t, tc.score, res.Score)
			assert.Equal(t, tc.band, res.Band)
		})
	}
}

func TestHigherBetterInvalidTarget(t *testing.T) {
	res := HigherBetter(50, 0, DefaultCap)
	assert.Equal(t, 0.0, res.Percentage)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, BandInvalid, res.Band)
}

func TestLowerBetterZeroActualAlwaysCaps(t *testing.T) {
	for _, target := range []float64{1, 10, 500, 12345} {
		res := LowerBetter(0, target, DefaultCap)
		assert.Equal(t, DefaultCap, res.Percentage)
		assert.Equal(t, 5.0, res.Score)
		assert.Equal(t, BandOutstanding, res.Band)
	}
}

func TestLowerBetterRatio(t *testing.T) {
	res := LowerBetter(20, 10, DefaultCap)
	assert.Equal(t, 50.0, res.Percentage)
	assert.Equal(t, BandNeedsImprov, res.Band)
}

func TestBooleanAsymmetricScale(t *testing.T) {
	done := Boolean(true)
	assert.Equal(t, 100.0, done.Percentage)
	assert.Equal(t, 4.0, done.Score)

	missed := Boolean(false)
	assert.Equal(t, 0.0, missed.Percentage)
	assert.Equal(t, 0.0, missed.Score)
}

func TestMilestoneCascadingScale(t *testing.T) {
	scale := []models.MilestoneStep{
		{Threshold: 80, Score: 10},
		{Threshold: 85, Score: 50},
		{Threshold: 90, Score: 80},
		{Threshold: 100, Score: 100},
	}

	// actual=92 satisfies 80, 85 and 90 but not 100; the maximum satisfied
	// score wins, not the first or last match.
	res := Milestone(92, scale)
	assert.Equal(t, 80.0, res.Score)

	assert.Equal(t, 100.0, Milestone(120, scale).Score)
	assert.Equal(t, 10.0, Milestone(80, scale).Score)

	none := Milestone(70, scale)
	assert.Equal(t, 0.0, none.Score)
	assert.Equal(t, BandNotAchieved, none.Band)
}

func TestMilestoneDescendingDirection(t *testing.T) {
	// Descending thresholds: lower actuals are better, actual <= threshold passes.
	scale := []models.MilestoneStep{
		{Threshold: 20, Score: 25},
		{Threshold: 15, Score: 50},
		{Threshold: 10, Score: 75},
		{Threshold: 5, Score: 100},
	}

	assert.Equal(t, 75.0, Milestone(8, scale).Score)
	assert.Equal(t, 100.0, Milestone(3, scale).Score)
	assert.Equal(t, 0.0, Milestone(30, scale).Score)
}

func TestValidateScale(t *testing.T) {
	require.NoError(t, ValidateScale([]models.MilestoneStep{
		{Threshold: 80, Score: 10},
		{Threshold: 90, Score: 80},
	}))

	err := ValidateScale([]models.MilestoneStep{
		{Threshold: 80, Score: 50},
		{Threshold: 90, Score: 50},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increase")

	require.Error(t, ValidateScale(nil))
}

func TestEvaluateDispatch(t *testing.T) {
	res := Evaluate(models.KpiTypeHigherBetter, 92, 100, nil, 0)
	assert.Equal(t, 92.0, res.Percentage)
	assert.Equal(t, 3.0, res.Score)
	assert.Equal(t, BandGood, res.Band)

	behavior := Evaluate(models.KpiTypeBehavior, 4, 0, nil, 0)
	assert.Equal(t, 80.0, behavior.Percentage)

	unknown := Evaluate(models.KpiType("BOGUS"), 1, 1, nil, 0)
	assert.Equal(t, BandInvalid, unknown.Band)
}
