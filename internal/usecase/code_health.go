package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/stats"
	"github.com/example/devinsights/internal/warehouse"
)

// ImplementationLookback is the trailing range the implementation rate covers, regardless of the requested window.
const ImplementationLookback = 14 * 24 * time.Hour

const unknownRepository = "Unknown"

var implementedStatuses = []string{"implemented", "partially_implemented"}

// CodeHealthUseCase computes review suggestion and bug fix metrics.
type CodeHealthUseCase struct {
	querier
	now func() time.Time
}

// NewCodeHealthUseCase constructs a new use case instance.
func NewCodeHealthUseCase(gw warehouse.Gateway, logger *zap.Logger) *CodeHealthUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeHealthUseCase{
		querier: querier{gw: gw, logger: logger.Named("code_health_usecase")},
		now:     time.Now,
	}
}

// suggestionsFrom unnests the sent suggestions of pull requests closed in the window.
func (uc *CodeHealthUseCase) suggestionsFrom(w period.Window) string {
	return fmt.Sprintf(`%s AS pr
        CROSS JOIN UNNEST(JSON_EXTRACT_ARRAY(pr.files)) AS file_entry
        CROSS JOIN UNNEST(JSON_EXTRACT_ARRAY(file_entry, '$.suggestions')) AS suggestion
        WHERE pr.organizationId = @organizationId
          AND %s
          AND JSON_VALUE(suggestion, '$.deliveryStatus') = @deliveryStatus
          %s`,
		uc.pullRequests(), closedBetween("pr", "startDate", "endDate"), repositoryFilter(w, "pr.repo_full_name"))
}

// SuggestionsByCategory counts sent suggestions per label, largest first.
func (uc *CodeHealthUseCase) SuggestionsByCategory(ctx context.Context, w period.Window) ([]SuggestionCategoryCount, error) {
	const op = "code_health.suggestions_by_category"

	sql := fmt.Sprintf(`
        SELECT
          COALESCE(JSON_VALUE(suggestion, '$.label'), 'Unknown') AS category,
          COUNT(*) AS suggestions_count
        FROM %s
        GROUP BY category
        ORDER BY suggestions_count DESC, category`, uc.suggestionsFrom(w))

	rows, err := uc.query(ctx, op, w, sql, withParams(w.Params(), warehouse.Params{"deliveryStatus": deliveryStatusSent}))
	if err != nil {
		return nil, err
	}

	counts := make([]SuggestionCategoryCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, SuggestionCategoryCount{
			Category: row.StringOr("category", "Unknown"),
			Count:    row.Int64("suggestions_count"),
		})
	}
	return counts, nil
}

// SuggestionsByRepository counts sent suggestions per repository and label. Repositories
// are ordered by their total, largest first.
func (uc *CodeHealthUseCase) SuggestionsByRepository(ctx context.Context, w period.Window) ([]RepositorySuggestions, error) {
	const op = "code_health.suggestions_by_repository"

	sql := fmt.Sprintf(`
        SELECT
          COALESCE(JSON_VALUE(pr.repository, '$.name'), 'Unknown') AS repository,
          COALESCE(JSON_VALUE(suggestion, '$.label'), 'Unknown') AS category,
          COUNT(*) AS suggestions_count
        FROM %s
        GROUP BY repository, category
        ORDER BY repository, suggestions_count DESC, category`, uc.suggestionsFrom(w))

	rows, err := uc.query(ctx, op, w, sql, withParams(w.Params(), warehouse.Params{"deliveryStatus": deliveryStatusSent}))
	if err != nil {
		return nil, err
	}
	return groupByRepository(rows), nil
}

func groupByRepository(rows []warehouse.Row) []RepositorySuggestions {
	index := map[string]int{}
	var repos []RepositorySuggestions
	for _, row := range rows {
		name := row.StringOr("repository", unknownRepository)
		i, ok := index[name]
		if !ok {
			i = len(repos)
			index[name] = i
			repos = append(repos, RepositorySuggestions{Repository: name, Categories: []SuggestionCategoryCount{}})
		}
		count := row.Int64("suggestions_count")
		repos[i].TotalCount += count
		repos[i].Categories = append(repos[i].Categories, SuggestionCategoryCount{
			Category: row.StringOr("category", "Unknown"),
			Count:    count,
		})
	}

	for _, r := range repos {
		sort.SliceStable(r.Categories, func(a, b int) bool {
			return r.Categories[a].Count > r.Categories[b].Count
		})
	}
	sort.SliceStable(repos, func(a, b int) bool {
		if repos[a].TotalCount != repos[b].TotalCount {
			return repos[a].TotalCount > repos[b].TotalCount
		}
		return repositoryBefore(repos[a].Repository, repos[b].Repository)
	})
	return repos
}

// repositoryBefore orders tied repositories by name, case-insensitively,
// with the unknown bucket last.
func repositoryBefore(a, b string) bool {
	if (a == unknownRepository) != (b == unknownRepository) {
		return b == unknownRepository
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

func (uc *CodeHealthUseCase) bugFixTypes() string {
	return uc.table(warehouse.DatasetCustom, warehouse.TablePullRequestTypes)
}

// BugRatioChart reports, per week, the share of closed pull requests classified as bug fixes.
func (uc *CodeHealthUseCase) BugRatioChart(ctx context.Context, w period.Window) ([]BugRatioPoint, error) {
	const op = "code_health.bug_ratio_chart"

	sql := fmt.Sprintf(`
        SELECT
          FORMAT_DATE('%%Y-%%m-%%d', DATE(TIMESTAMP_TRUNC(pr.parsed_closed_at, WEEK(MONDAY)))) AS week_start,
          COUNT(DISTINCT pr._id) AS total_prs,
          COUNT(DISTINCT IF(t.type = @bugFixType, pr._id, NULL)) AS bug_fix_prs
        FROM %s AS pr
        LEFT JOIN %s AS t ON t.pull_request_id = pr._id
        WHERE pr.organizationId = @organizationId
          AND %s
          %s
        GROUP BY week_start
        ORDER BY week_start`,
		uc.pullRequests(), uc.bugFixTypes(),
		closedPullRequests("pr", "startDate", "endDate"), repositoryFilter(w, "pr.repo_full_name"))

	rows, err := uc.query(ctx, op, w, sql, withParams(w.Params(), warehouse.Params{"bugFixType": bugFixType}))
	if err != nil {
		return nil, err
	}

	points := make([]BugRatioPoint, 0, len(rows))
	for _, row := range rows {
		sample := bugRatioSample(row.Int64("total_prs"), row.Int64("bug_fix_prs"))
		if sample.TotalPRs == 0 {
			continue
		}
		points = append(points, BugRatioPoint{
			WeekStart: row.String("week_start"),
			TotalPRs:  sample.TotalPRs,
			BugFixPRs: sample.BugFixPRs,
			Ratio:     sample.Ratio,
		})
	}
	return points, nil
}

// BugRatioHighlight compares the bug fix ratio of w with its previous window.
func (uc *CodeHealthUseCase) BugRatioHighlight(ctx context.Context, w period.Window) (BugRatioHighlight, error) {
	const op = "code_health.bug_ratio_highlight"

	sql := fmt.Sprintf(`
        SELECT
          IF(pr.parsed_closed_at >= TIMESTAMP(@currentStartDate), '%s', '%s') AS period,
          COUNT(DISTINCT pr._id) AS total_prs,
          COUNT(DISTINCT IF(t.type = @bugFixType, pr._id, NULL)) AS bug_fix_prs
        FROM %s AS pr
        LEFT JOIN %s AS t ON t.pull_request_id = pr._id
        WHERE pr.organizationId = @organizationId
          AND %s
          %s
        GROUP BY period`,
		periodCurrent, periodPrevious, uc.pullRequests(), uc.bugFixTypes(),
		closedPullRequests("pr", "previousStartDate", "currentEndDate"), repositoryFilter(w, "pr.repo_full_name"))

	rows, err := uc.query(ctx, op, w, sql, withParams(w.ComparisonParams(), warehouse.Params{"bugFixType": bugFixType}))
	if err != nil {
		return BugRatioHighlight{}, err
	}

	var current, previous BugRatioSample
	for _, row := range rows {
		sample := bugRatioSample(row.Int64("total_prs"), row.Int64("bug_fix_prs"))
		switch row.String("period") {
		case periodCurrent:
			current = sample
		case periodPrevious:
			previous = sample
		}
	}
	return period.NewResult(current, previous, current.Ratio, previous.Ratio, BugRatioPolarity), nil
}

func bugRatioSample(total, bugFixes int64) BugRatioSample {
	return BugRatioSample{
		TotalPRs:  total,
		BugFixPRs: bugFixes,
		Ratio:     stats.Round2(stats.Ratio(float64(bugFixes), float64(total))),
	}
}

// SuggestionsImplementationRate reports the share of suggestions sent on pull requests created
// during the trailing lookback that were implemented or partially implemented. Only the
// organization and repository of w are used.
func (uc *CodeHealthUseCase) SuggestionsImplementationRate(ctx context.Context, w period.Window) (ImplementationRate, error) {
	const op = "code_health.suggestions_implementation_rate"

	sql := fmt.Sprintf(`
        SELECT
          COUNT(*) AS suggestions_sent,
          COUNTIF(JSON_VALUE(suggestion, '$.implementationStatus') IN UNNEST(@implementedStatuses)) AS suggestions_implemented
        FROM %s AS pr
        CROSS JOIN UNNEST(JSON_EXTRACT_ARRAY(pr.files)) AS file_entry
        CROSS JOIN UNNEST(JSON_EXTRACT_ARRAY(file_entry, '$.suggestions')) AS suggestion
        WHERE pr.organizationId = @organizationId
          AND pr.parsed_created_at >= @lookbackStart
          AND JSON_VALUE(suggestion, '$.deliveryStatus') = @deliveryStatus
          %s`,
		uc.pullRequests(), repositoryFilter(w, "pr.repo_full_name"))

	params := warehouse.Params{
		"organizationId":      w.OrganizationID,
		"lookbackStart":       uc.now().UTC().Add(-ImplementationLookback),
		"deliveryStatus":      deliveryStatusSent,
		"implementedStatuses": implementedStatuses,
	}
	if w.Repository != "" {
		params["repository"] = w.Repository
	}

	rows, err := uc.query(ctx, op, w, sql, params)
	if err != nil {
		return ImplementationRate{}, err
	}

	var rate ImplementationRate
	if len(rows) > 0 {
		rate.SuggestionsSent = rows[0].Int64("suggestions_sent")
		rate.SuggestionsImplemented = rows[0].Int64("suggestions_implemented")
	}
	rate.ImplementationRate = stats.Round2(stats.Ratio(float64(rate.SuggestionsImplemented), float64(rate.SuggestionsSent)) * 100)
	return rate, nil
}
