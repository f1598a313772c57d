package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/stats"
	"github.com/example/devinsights/internal/warehouse"
)

// pullRequestTiming holds the timestamps of one closed pull request and its commits.
type pullRequestTiming struct {
	closedAt      time.Time
	openedAt      time.Time
	firstCommitAt time.Time
	lastCommitAt  time.Time
	hasOpenedAt   bool
}

// leadTimeMinutes is the whole minutes from the first commit to the close.
func (t pullRequestTiming) leadTimeMinutes() float64 {
	return float64(int64(t.closedAt.Sub(t.firstCommitAt) / time.Minute))
}

// stages returns the coding, pickup and review durations in seconds. ok is false when
// the timestamps are out of order or the opened timestamp is missing.
func (t pullRequestTiming) stages() (coding, pickup, review float64, ok bool) {
	if !t.hasOpenedAt || t.lastCommitAt.Before(t.firstCommitAt) || t.closedAt.Before(t.openedAt) {
		return 0, 0, 0, false
	}
	coding = float64(int64(t.lastCommitAt.Sub(t.firstCommitAt) / time.Second))
	pickup = float64(int64(t.openedAt.Sub(t.lastCommitAt) / time.Second))
	review = float64(int64(t.closedAt.Sub(t.openedAt) / time.Second))
	return coding, pickup, review, true
}

// timings loads one row per closed pull request with at least one commit, closed
// between the given date parameters.
func (uc *ProductivityUseCase) timings(ctx context.Context, op string, w period.Window, startParam, endParam string, params map[string]any) ([]pullRequestTiming, error) {
	sql := fmt.Sprintf(`
        SELECT
          pr._id AS pull_request_id,
          pr.parsed_closed_at AS closed_at,
          SAFE_CAST(pr.openedAt AS TIMESTAMP) AS opened_at,
          MIN(SAFE_CAST(JSON_VALUE(c.commit_timestamp) AS TIMESTAMP)) AS first_commit_at,
          MAX(SAFE_CAST(JSON_VALUE(c.commit_timestamp) AS TIMESTAMP)) AS last_commit_at
        FROM %s AS pr
        JOIN %s AS c ON c.pull_request_id = pr._id
        WHERE pr.organizationId = @organizationId
          AND %s
          %s
        GROUP BY pull_request_id, closed_at, opened_at
        HAVING COUNT(c.commit_hash) > 0`,
		uc.pullRequests(), uc.table(warehouse.DatasetMongo, warehouse.TableCommits),
		closedPullRequests("pr", startParam, endParam), repositoryFilter(w, "pr.repo_full_name"))

	rows, err := uc.query(ctx, op, w, sql, params)
	if err != nil {
		return nil, err
	}

	timings := make([]pullRequestTiming, 0, len(rows))
	for _, row := range rows {
		closedAt, ok := row.Time("closed_at")
		if !ok {
			continue
		}
		firstCommitAt, ok := row.Time("first_commit_at")
		if !ok {
			continue
		}
		lastCommitAt, ok := row.Time("last_commit_at")
		if !ok {
			lastCommitAt = firstCommitAt
		}
		openedAt, hasOpenedAt := row.Time("opened_at")
		timings = append(timings, pullRequestTiming{
			closedAt:      closedAt,
			openedAt:      openedAt,
			firstCommitAt: firstCommitAt,
			lastCommitAt:  lastCommitAt,
			hasOpenedAt:   hasOpenedAt,
		})
	}
	return timings, nil
}

func closedAtOf(t pullRequestTiming) time.Time { return t.closedAt }

func leadTimeSample(timings []pullRequestTiming) LeadTimeSample {
	minutes := make([]float64, 0, len(timings))
	for _, t := range timings {
		minutes = append(minutes, t.leadTimeMinutes())
	}
	p75 := stats.Round2(stats.P75(minutes))
	return LeadTimeSample{LeadTimeP75Minutes: p75, LeadTimeP75Hours: minutesToHours(p75)}
}

// LeadTimeChart reports the weekly p75 lead time of closed pull requests.
func (uc *ProductivityUseCase) LeadTimeChart(ctx context.Context, w period.Window) ([]LeadTimePoint, error) {
	const op = "productivity.lead_time_chart"

	timings, err := uc.timings(ctx, op, w, "startDate", "endDate", w.Params())
	if err != nil {
		return nil, err
	}

	buckets := stats.GroupByWeek(timings, closedAtOf)
	points := make([]LeadTimePoint, 0, len(buckets))
	for _, b := range buckets {
		sample := leadTimeSample(b.Items)
		points = append(points, LeadTimePoint{
			WeekStart:          weekLabel(b.WeekStart),
			LeadTimeP75Minutes: sample.LeadTimeP75Minutes,
			LeadTimeP75Hours:   sample.LeadTimeP75Hours,
		})
	}
	return points, nil
}

// LeadTimeHighlight compares the p75 lead time of w with its previous window. Each
// percentile is taken over every qualifying pull request of its window.
func (uc *ProductivityUseCase) LeadTimeHighlight(ctx context.Context, w period.Window) (LeadTimeHighlight, error) {
	const op = "productivity.lead_time_highlight"

	timings, err := uc.timings(ctx, op, w, "previousStartDate", "currentEndDate", w.ComparisonParams())
	if err != nil {
		return LeadTimeHighlight{}, err
	}

	prev := w.Previous()
	var cur, old []pullRequestTiming
	for _, t := range timings {
		switch {
		case w.Contains(t.closedAt):
			cur = append(cur, t)
		case prev.Contains(t.closedAt):
			old = append(old, t)
		}
	}

	current, previous := leadTimeSample(cur), leadTimeSample(old)
	return period.NewResult(current, previous, current.LeadTimeP75Minutes, previous.LeadTimeP75Minutes, LeadTimePolarity), nil
}

// LeadTimeBreakdown splits each week's lead time into coding, pickup and review p75s.
// A zero duration is left out of that stage's percentile. The total is the sum of the
// three percentiles, not the percentile of the summed durations.
func (uc *ProductivityUseCase) LeadTimeBreakdown(ctx context.Context, w period.Window) ([]LeadTimeBreakdownPoint, error) {
	const op = "productivity.lead_time_breakdown"

	timings, err := uc.timings(ctx, op, w, "startDate", "endDate", w.Params())
	if err != nil {
		return nil, err
	}

	type stageSet struct {
		timing                 pullRequestTiming
		coding, pickup, review float64
	}
	var eligible []stageSet
	for _, t := range timings {
		coding, pickup, review, ok := t.stages()
		if !ok {
			continue
		}
		eligible = append(eligible, stageSet{timing: t, coding: coding, pickup: pickup, review: review})
	}

	buckets := stats.GroupByWeek(eligible, func(s stageSet) time.Time { return s.timing.closedAt })
	points := make([]LeadTimeBreakdownPoint, 0, len(buckets))
	for _, b := range buckets {
		var coding, pickup, review []float64
		for _, s := range b.Items {
			coding = appendNonZero(coding, s.coding)
			pickup = appendNonZero(pickup, s.pickup)
			review = appendNonZero(review, s.review)
		}
		codingP75, pickupP75, reviewP75 := stats.P75(coding), stats.P75(pickup), stats.P75(review)

		codingMinutes := stats.Round2(codingP75 / 60)
		pickupMinutes := stats.Round2(pickupP75 / 60)
		reviewMinutes := stats.Round2(reviewP75 / 60)
		totalMinutes := stats.Round2((codingP75 + pickupP75 + reviewP75) / 60)

		points = append(points, LeadTimeBreakdownPoint{
			WeekStart:         weekLabel(b.WeekStart),
			PRCount:           int64(len(b.Items)),
			CodingTimeMinutes: codingMinutes,
			CodingTimeHours:   minutesToHours(codingMinutes),
			PickupTimeMinutes: pickupMinutes,
			PickupTimeHours:   minutesToHours(pickupMinutes),
			ReviewTimeMinutes: reviewMinutes,
			ReviewTimeHours:   minutesToHours(reviewMinutes),
			TotalTimeMinutes:  totalMinutes,
			TotalTimeHours:    minutesToHours(totalMinutes),
		})
	}
	return points, nil
}

func appendNonZero(values []float64, v float64) []float64 {
	if v == 0 {
		return values
	}
	return append(values, v)
}
