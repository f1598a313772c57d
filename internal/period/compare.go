package period

import "github.com/example/devinsights/internal/stats"

// Polarity tells the comparator which direction of change is good for a metric.
type Polarity int

const (
	HigherIsBetter Polarity = iota
	LowerIsBetter
)

// Trend classifies a period-over-period change.
type Trend string

const (
	TrendImproved  Trend = "improved"
	TrendWorsened  Trend = "worsened"
	TrendUnchanged Trend = "unchanged"
)

// Comparison is the change from the previous window to the current one.
type Comparison struct {
	PercentageChange float64 `json:"percentageChange"`
	Trend            Trend   `json:"trend"`
}

// Result pairs the samples of both windows with their comparison.
type Result[T any] struct {
	CurrentPeriod  T          `json:"currentPeriod"`
	PreviousPeriod T          `json:"previousPeriod"`
	Comparison     Comparison `json:"comparison"`
}

// Compare derives the percentage change and trend from two already rounded values.
//
// A previous value of zero with a positive current value counts as a 100% change,
// which is an improvement only for metrics where higher is better.
func Compare(current, previous float64, polarity Polarity) Comparison {
	switch {
	case previous > 0:
		change := stats.PercentChange(current, previous)
		return Comparison{PercentageChange: change, Trend: classify(change, polarity)}
	case current > 0:
		return Comparison{PercentageChange: 100, Trend: classify(100, polarity)}
	default:
		return Comparison{PercentageChange: 0, Trend: TrendUnchanged}
	}
}

func classify(change float64, polarity Polarity) Trend {
	switch {
	case change == 0:
		return TrendUnchanged
	case (change > 0) == (polarity == HigherIsBetter):
		return TrendImproved
	default:
		return TrendWorsened
	}
}

// NewResult builds a Result from two samples and the values the comparison is based on.
func NewResult[T any](current, previous T, currentValue, previousValue float64, polarity Polarity) Result[T] {
	return Result[T]{
		CurrentPeriod:  current,
		PreviousPeriod: previous,
		Comparison:     Compare(currentValue, previousValue, polarity),
	}
}
