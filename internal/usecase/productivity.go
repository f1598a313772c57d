package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/stats"
	"github.com/example/devinsights/internal/warehouse"
)

// ProductivityUseCase computes delivery metrics from closed pull requests and their commits.
type ProductivityUseCase struct {
	querier
}

// NewProductivityUseCase constructs a new use case instance.
func NewProductivityUseCase(gw warehouse.Gateway, logger *zap.Logger) *ProductivityUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductivityUseCase{querier{gw: gw, logger: logger.Named("productivity_usecase")}}
}

// DeployFrequencyChart counts closed pull requests per ISO week. Weeks without any are omitted.
func (uc *ProductivityUseCase) DeployFrequencyChart(ctx context.Context, w period.Window) ([]DeployFrequencyPoint, error) {
	const op = "productivity.deploy_frequency_chart"

	sql := fmt.Sprintf(`
        SELECT
          FORMAT_DATE('%%Y-%%m-%%d', DATE(TIMESTAMP_TRUNC(pr.parsed_closed_at, WEEK(MONDAY)))) AS week_start,
          COUNT(*) AS pr_count
        FROM %s AS pr
        WHERE pr.organizationId = @organizationId
          AND %s
          %s
        GROUP BY week_start
        ORDER BY week_start`,
		uc.pullRequests(), closedPullRequests("pr", "startDate", "endDate"), repositoryFilter(w, "pr.repo_full_name"))

	rows, err := uc.query(ctx, op, w, sql, w.Params())
	if err != nil {
		return nil, err
	}

	points := make([]DeployFrequencyPoint, 0, len(rows))
	for _, row := range rows {
		count := row.Int64("pr_count")
		if count == 0 {
			continue
		}
		points = append(points, DeployFrequencyPoint{WeekStart: row.String("week_start"), PRCount: count})
	}
	return points, nil
}

// DeployFrequencyHighlight compares the average closed pull requests per week of w and its previous window.
func (uc *ProductivityUseCase) DeployFrequencyHighlight(ctx context.Context, w period.Window) (DeployFrequencyHighlight, error) {
	const op = "productivity.deploy_frequency_highlight"

	sql := fmt.Sprintf(`
        SELECT
          IF(pr.parsed_closed_at >= TIMESTAMP(@currentStartDate), '%s', '%s') AS period,
          COUNT(*) AS total_deployments
        FROM %s AS pr
        WHERE pr.organizationId = @organizationId
          AND %s
          %s
        GROUP BY period`,
		periodCurrent, periodPrevious,
		uc.pullRequests(), closedPullRequests("pr", "previousStartDate", "currentEndDate"), repositoryFilter(w, "pr.repo_full_name"))

	rows, err := uc.query(ctx, op, w, sql, w.ComparisonParams())
	if err != nil {
		return DeployFrequencyHighlight{}, err
	}

	totals := map[string]int64{}
	for _, row := range rows {
		totals[row.String("period")] += row.Int64("total_deployments")
	}

	current := deployFrequencySample(totals[periodCurrent], w.Weeks())
	previous := deployFrequencySample(totals[periodPrevious], w.Previous().Weeks())
	return period.NewResult(current, previous, current.AveragePerWeek, previous.AveragePerWeek, DeployFrequencyPolarity), nil
}

func deployFrequencySample(total int64, weeks int) DeployFrequencySample {
	return DeployFrequencySample{
		TotalDeployments: total,
		AveragePerWeek:   stats.Round2(stats.Ratio(float64(total), float64(weeks))),
	}
}

type pullRequestSize struct {
	closedAt time.Time
	changes  float64
}

// PRSizeHighlight compares the mean total changes per closed pull request of w and its previous window.
func (uc *ProductivityUseCase) PRSizeHighlight(ctx context.Context, w period.Window) (PRSizeHighlight, error) {
	const op = "productivity.pr_size_highlight"

	sql := fmt.Sprintf(`
        SELECT
          pr._id AS pull_request_id,
          pr.parsed_closed_at AS closed_at,
          COALESCE(pr.totalChanges, 0) AS total_changes
        FROM %s AS pr
        WHERE pr.organizationId = @organizationId
          AND %s
          %s`,
		uc.pullRequests(), closedPullRequests("pr", "previousStartDate", "currentEndDate"), repositoryFilter(w, "pr.repo_full_name"))

	rows, err := uc.query(ctx, op, w, sql, w.ComparisonParams())
	if err != nil {
		return PRSizeHighlight{}, err
	}

	sizes := make([]pullRequestSize, 0, len(rows))
	for _, row := range rows {
		closedAt, ok := row.Time("closed_at")
		if !ok {
			continue
		}
		sizes = append(sizes, pullRequestSize{closedAt: closedAt, changes: row.Float64("total_changes")})
	}

	current := prSizeSample(sizes, w)
	previous := prSizeSample(sizes, w.Previous())
	return period.NewResult(current, previous, current.AveragePRSize, previous.AveragePRSize, PRSizePolarity), nil
}

func prSizeSample(sizes []pullRequestSize, w period.Window) PRSizeSample {
	var changes []float64
	for _, s := range sizes {
		if w.Contains(s.closedAt) {
			changes = append(changes, s.changes)
		}
	}
	return PRSizeSample{
		AveragePRSize: stats.Round2(stats.Mean(changes)),
		TotalPRs:      int64(len(changes)),
	}
}

// PullRequestsByDeveloper counts closed pull requests per week and author.
func (uc *ProductivityUseCase) PullRequestsByDeveloper(ctx context.Context, w period.Window) ([]PullRequestsByDeveloperPoint, error) {
	const op = "productivity.pull_requests_by_developer"

	sql := fmt.Sprintf(`
        SELECT
          FORMAT_DATE('%%Y-%%m-%%d', DATE(TIMESTAMP_TRUNC(pr.parsed_closed_at, WEEK(MONDAY)))) AS week_start,
          JSON_VALUE(a.author_username) AS author,
          COUNT(DISTINCT pr._id) AS pr_count
        FROM %s AS pr
        JOIN %s AS a ON a.pull_request_id = pr._id
        WHERE pr.organizationId = @organizationId
          AND %s
          %s
        GROUP BY week_start, author
        ORDER BY week_start, pr_count DESC, author`,
		uc.pullRequests(), uc.table(warehouse.DatasetMongo, warehouse.TablePullRequestAuthors),
		closedPullRequests("pr", "startDate", "endDate"), repositoryFilter(w, "pr.repo_full_name"))

	rows, err := uc.query(ctx, op, w, sql, w.Params())
	if err != nil {
		return nil, err
	}

	points := make([]PullRequestsByDeveloperPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, PullRequestsByDeveloperPoint{
			WeekStart: row.String("week_start"),
			Author:    row.StringOr("author", "Unknown"),
			PRCount:   row.Int64("pr_count"),
		})
	}
	return points, nil
}

// PullRequestsOpenedVsClosed compares weekly opened and closed counts. A pull request opened
// in one week and closed in another contributes to both weeks.
func (uc *ProductivityUseCase) PullRequestsOpenedVsClosed(ctx context.Context, w period.Window) ([]OpenedVsClosedPoint, error) {
	const op = "productivity.pull_requests_opened_vs_closed"

	repo := repositoryFilter(w, "pr.repo_full_name")
	sql := fmt.Sprintf(`
        WITH opened AS (
          SELECT
            FORMAT_DATE('%%Y-%%m-%%d', DATE(TIMESTAMP_TRUNC(pr.parsed_created_at, WEEK(MONDAY)))) AS week_start,
            COUNT(*) AS opened_count
          FROM %[1]s AS pr
          WHERE pr.organizationId = @organizationId
            AND pr.parsed_created_at >= TIMESTAMP(@startDate)
            AND pr.parsed_created_at < TIMESTAMP_ADD(TIMESTAMP(@endDate), INTERVAL 1 DAY)
            %[2]s
          GROUP BY week_start
        ),
        closed AS (
          SELECT
            FORMAT_DATE('%%Y-%%m-%%d', DATE(TIMESTAMP_TRUNC(pr.parsed_closed_at, WEEK(MONDAY)))) AS week_start,
            COUNT(*) AS closed_count
          FROM %[1]s AS pr
          WHERE pr.organizationId = @organizationId
            AND %[3]s
            %[2]s
          GROUP BY week_start
        )
        SELECT
          COALESCE(o.week_start, c.week_start) AS week_start,
          COALESCE(o.opened_count, 0) AS opened_count,
          COALESCE(c.closed_count, 0) AS closed_count
        FROM opened AS o
        FULL OUTER JOIN closed AS c ON o.week_start = c.week_start
        ORDER BY week_start`,
		uc.pullRequests(), repo, closedPullRequests("pr", "startDate", "endDate"))

	rows, err := uc.query(ctx, op, w, sql, w.Params())
	if err != nil {
		return nil, err
	}

	points := make([]OpenedVsClosedPoint, 0, len(rows))
	for _, row := range rows {
		opened, closed := row.Int64("opened_count"), row.Int64("closed_count")
		if opened == 0 && closed == 0 {
			continue
		}
		points = append(points, OpenedVsClosedPoint{
			WeekStart:   row.String("week_start"),
			OpenedCount: opened,
			ClosedCount: closed,
			Ratio:       stats.Round2(stats.Ratio(float64(closed), float64(opened))),
		})
	}
	return points, nil
}
