// Package stats holds the numeric building blocks shared by the metric use cases.
package stats

import (
	"math"
	"sort"
	"time"
)

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// Percentile returns the nearest-rank p-th percentile (0 < p <= 100) of values.
// An empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// P75 is the 75th percentile used by every lead time metric.
func P75(values []float64) float64 {
	return Percentile(values, 75)
}

// Mean returns the arithmetic mean of values, or 0 for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Ratio divides num by den, returning 0 when den is zero.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// PercentChange returns ((current - previous) / previous) * 100 rounded to two decimals.
// The caller must handle previous == 0.
func PercentChange(current, previous float64) float64 {
	return Round2((current - previous) / previous * 100)
}

// WeekStart truncates t to 00:00 UTC of the Monday that starts its ISO week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// Bucket is the set of items that fall in one ISO week.
type Bucket[T any] struct {
	WeekStart time.Time
	Items     []T
}

// GroupByWeek buckets items by the ISO week of at(item). Only weeks that hold at least
// one item are returned, ordered ascending by week start.
func GroupByWeek[T any](items []T, at func(T) time.Time) []Bucket[T] {
	index := make(map[time.Time]int)
	var buckets []Bucket[T]
	for _, item := range items {
		week := WeekStart(at(item))
		i, ok := index[week]
		if !ok {
			i = len(buckets)
			index[week] = i
			buckets = append(buckets, Bucket[T]{WeekStart: week})
		}
		buckets[i].Items = append(buckets[i].Items, item)
	}
	sort.Slice(buckets, func(a, b int) bool {
		return buckets[a].WeekStart.Before(buckets[b].WeekStart)
	})
	return buckets
}
