package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/devinsights/internal/apperr"
	"github.com/example/devinsights/internal/logging"
	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/stats"
	"github.com/example/devinsights/internal/warehouse"
)

// Polarity of every highlight metric.
const (
	DeployFrequencyPolarity = period.HigherIsBetter
	LeadTimePolarity        = period.LowerIsBetter
	PRSizePolarity          = period.LowerIsBetter
	BugRatioPolarity        = period.LowerIsBetter
)

const (
	periodCurrent  = "current"
	periodPrevious = "previous"

	deliveryStatusSent = "sent"
	bugFixType         = "bug_fix"
)

// querier runs warehouse queries on behalf of a use case and attaches request context to failures.
type querier struct {
	gw     warehouse.Gateway
	logger *zap.Logger
}

// query validates w, runs sql and logs any warehouse failure with the window it was for.
// Invalid windows never reach the warehouse.
func (q querier) query(ctx context.Context, op string, w period.Window, sql string, params warehouse.Params) ([]warehouse.Row, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	rows, err := q.gw.Query(ctx, op, sql, params)
	if err != nil {
		logging.FromContext(ctx, q.logger, op).Error("warehouse query failed",
			zap.String("organization_id", w.OrganizationID),
			zap.String("start_date", w.StartDate()),
			zap.String("end_date", w.EndDate()),
			zap.String("repository", w.Repository),
			zap.Error(err),
		)
		return nil, apperr.Upstream(op, err)
	}
	return rows, nil
}

func (q querier) table(dataset warehouse.Dataset, name string) string {
	return q.gw.TablePath(dataset, name)
}

func (q querier) pullRequests() string {
	return q.table(warehouse.DatasetMongo, warehouse.TablePullRequests)
}

// repositoryFilter adds the optional repository equality clause. The value is always bound as @repository.
func repositoryFilter(w period.Window, column string) string {
	if w.Repository == "" {
		return ""
	}
	return fmt.Sprintf("AND %s = @repository", column)
}

// closedBetween matches pull requests whose close timestamp falls on any day from @start to @end.
func closedBetween(alias, startParam, endParam string) string {
	return fmt.Sprintf(`%[1]s.closedAt IS NOT NULL AND %[1]s.closedAt <> ''
          AND %[1]s.parsed_closed_at >= TIMESTAMP(@%[2]s)
          AND %[1]s.parsed_closed_at < TIMESTAMP_ADD(TIMESTAMP(@%[3]s), INTERVAL 1 DAY)`, alias, startParam, endParam)
}

// closedPullRequests is closedBetween restricted to the closed status.
func closedPullRequests(alias, startParam, endParam string) string {
	return fmt.Sprintf("%s.status = 'closed'\n          AND %s", alias, closedBetween(alias, startParam, endParam))
}

// withParams copies base and adds extra.
func withParams(base map[string]any, extra warehouse.Params) warehouse.Params {
	out := make(warehouse.Params, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// minutesToHours converts rounded minutes to rounded hours.
func minutesToHours(minutes float64) float64 {
	return stats.Round2(minutes / 60)
}

// weekLabel formats a bucket start as YYYY-MM-DD.
func weekLabel(t time.Time) string {
	return t.Format(period.DateLayout)
}
