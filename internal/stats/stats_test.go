package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	assert.Equal(t, -16.67, Round2(-16.666666))
	assert.Equal(t, 125.0, Round2(125))
	assert.Equal(t, 0.33, Round2(1.0/3.0))
	assert.Equal(t, 0.0, Round2(0))
}

func TestPercentileNearestRank(t *testing.T) {
	values := []float64{40, 10, 30, 20}
	assert.Equal(t, 30.0, P75(values))
	assert.Equal(t, []float64{40, 10, 30, 20}, values, "input must not be reordered")

	assert.Equal(t, 7.0, P75([]float64{7}))
	assert.Equal(t, 0.0, P75(nil))
	assert.Equal(t, 80.0, P75([]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}))
}

func TestMean(t *testing.T) {
	assert.Equal(t, 125.0, Mean([]float64{50, 150, 200, 100}))
	assert.Equal(t, 0.0, Mean(nil))
}

func TestRatioGuardsZeroDenominator(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(3, 0))
	assert.Equal(t, 0.0, Ratio(0, 0))
	assert.Equal(t, 0.25, Ratio(1, 4))
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, -16.67, PercentChange(100, 120))
	assert.Equal(t, 100.0, PercentChange(10, 5))
}

func TestWeekStartIsMonday(t *testing.T) {
	cases := map[string]string{
		"2024-01-01T10:00:00Z": "2024-01-01", // Monday
		"2024-01-07T23:59:59Z": "2024-01-01", // Sunday
		"2024-01-08T00:00:00Z": "2024-01-08",
		"2024-03-01T12:00:00Z": "2024-02-26", // Friday
	}
	for in, want := range cases {
		ts, err := time.Parse(time.RFC3339, in)
		assert.NoError(t, err)
		assert.Equal(t, want, WeekStart(ts).Format("2006-01-02"), in)
	}
}

func TestGroupByWeekOmitsEmptyWeeks(t *testing.T) {
	days := []string{"2024-01-02", "2024-01-03", "2024-01-24", "2024-01-17"}
	var stamps []time.Time
	for _, d := range days {
		ts, err := time.Parse("2006-01-02", d)
		assert.NoError(t, err)
		stamps = append(stamps, ts)
	}

	buckets := GroupByWeek(stamps, func(ts time.Time) time.Time { return ts })

	if assert.Len(t, buckets, 3) {
		assert.Equal(t, "2024-01-01", buckets[0].WeekStart.Format("2006-01-02"))
		assert.Len(t, buckets[0].Items, 2)
		assert.Equal(t, "2024-01-15", buckets[1].WeekStart.Format("2006-01-02"))
		assert.Equal(t, "2024-01-22", buckets[2].WeekStart.Format("2006-01-02"))
	}
}
