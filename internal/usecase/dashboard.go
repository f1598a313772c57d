package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/devinsights/internal/apperr"
	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/stats"
	"github.com/example/devinsights/internal/warehouse"
)

const (
	topCategoriesLimit = 3
	severityCritical   = "critical"
	noTopDeveloper     = "N/A"
)

// DashboardPeriod echoes the requested window.
type DashboardPeriod struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// TopDeveloper is the author with the most pull requests in the window.
type TopDeveloper struct {
	Name     string `json:"name"`
	TotalPRs int64  `json:"totalPRs"`
}

// CompanyRanking places the organization among all organizations by pull request count.
type CompanyRanking struct {
	Rank                 int64   `json:"rank"`
	TotalCompanies       int64   `json:"totalCompanies"`
	PercentageOfTotalPRs float64 `json:"percentageOfTotalPRs"`
	TotalPRsAllCompanies int64   `json:"totalPRsAllCompanies"`
}

// DashboardMetrics holds the basic dashboard figures.
type DashboardMetrics struct {
	TotalPRs                 int64                     `json:"totalPRs"`
	CriticalSuggestions      int64                     `json:"criticalSuggestions"`
	TotalSuggestions         int64                     `json:"totalSuggestions"`
	TopSuggestionsCategories []SuggestionCategoryCount `json:"topSuggestionsCategories"`
	TopDeveloper             TopDeveloper              `json:"topDeveloper"`
	CompanyRanking           CompanyRanking            `json:"companyRanking"`
}

// AdditionalMetrics is only filled for the complete dashboard. The breakdown
// is always sent there, as an empty list when no pull request qualifies.
type AdditionalMetrics struct {
	SuggestionsAppliedPercentage *float64                  `json:"suggestionsAppliedPercentage,omitempty"`
	SuggestionsImplementedCount  *int64                    `json:"suggestionsImplementedCount,omitempty"`
	CycleTime                    *LeadTimeHighlight        `json:"cycleTime,omitempty"`
	DeployFrequency              *DeployFrequencyHighlight `json:"deployFrequency,omitempty"`
	BugRatio                     *BugRatioHighlight        `json:"bugRatio,omitempty"`
	LeadTimeBreakdown            []LeadTimeBreakdownPoint  `json:"leadTimeBreakdown"`
}

// CompanyDashboard is the response of the dashboard route.
type CompanyDashboard struct {
	OrganizationID    string            `json:"organizationId"`
	Period            DashboardPeriod   `json:"period"`
	Metrics           DashboardMetrics  `json:"metrics"`
	AdditionalMetrics AdditionalMetrics `json:"additionalMetrics"`
}

// DashboardUseCase assembles the organization dashboard.
type DashboardUseCase struct {
	querier
	productivity *ProductivityUseCase
	codeHealth   *CodeHealthUseCase
}

// NewDashboardUseCase constructs a new use case instance.
func NewDashboardUseCase(gw warehouse.Gateway, productivity *ProductivityUseCase, codeHealth *CodeHealthUseCase, logger *zap.Logger) *DashboardUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardUseCase{
		querier:      querier{gw: gw, logger: logger.Named("dashboard_usecase")},
		productivity: productivity,
		codeHealth:   codeHealth,
	}
}

// CompanyDashboard returns the basic dashboard, built from a single warehouse query.
func (uc *DashboardUseCase) CompanyDashboard(ctx context.Context, w period.Window) (CompanyDashboard, error) {
	const op = "dashboard.company"

	repo := repositoryFilter(w, "pr.repo_full_name")
	closed := closedPullRequests("pr", "startDate", "endDate")
	sql := fmt.Sprintf(`
        WITH company_metrics AS (
          SELECT COUNT(*) AS total_prs
          FROM %[1]s AS pr
          WHERE pr.organizationId = @organizationId
            AND %[3]s
            %[4]s
        ),
        sent_suggestions AS (
          SELECT
            JSON_VALUE(suggestion, '$.label') AS category,
            JSON_VALUE(suggestion, '$.severity') AS severity
          FROM %[1]s AS pr
          CROSS JOIN UNNEST(JSON_EXTRACT_ARRAY(pr.files)) AS file_entry
          CROSS JOIN UNNEST(JSON_EXTRACT_ARRAY(file_entry, '$.suggestions')) AS suggestion
          WHERE pr.organizationId = @organizationId
            AND %[5]s
            AND JSON_VALUE(suggestion, '$.deliveryStatus') = @deliveryStatus
            %[4]s
        ),
        suggestion_metrics AS (
          SELECT
            COUNT(*) AS total_suggestions,
            COUNTIF(severity = @criticalSeverity) AS critical_suggestions
          FROM sent_suggestions
        ),
        top_categories AS (
          SELECT category, COUNT(*) AS count
          FROM sent_suggestions
          WHERE category IS NOT NULL
          GROUP BY category
          ORDER BY count DESC, category
          LIMIT %[6]d
        ),
        top_developer AS (
          SELECT JSON_VALUE(a.author_username) AS name, COUNT(DISTINCT pr._id) AS total_prs
          FROM %[1]s AS pr
          JOIN %[2]s AS a ON a.pull_request_id = pr._id
          WHERE pr.organizationId = @organizationId
            AND %[3]s
            AND JSON_VALUE(a.author_username) IS NOT NULL
            %[4]s
          GROUP BY name
          ORDER BY total_prs DESC, name
          LIMIT 1
        ),
        all_companies AS (
          SELECT
            COUNT(*) AS total_prs_all_companies,
            COUNT(DISTINCT pr.organizationId) AS total_companies
          FROM %[1]s AS pr
          WHERE %[3]s
        ),
        company_ranking AS (
          SELECT
            pr.organizationId AS organization_id,
            ROW_NUMBER() OVER (ORDER BY COUNT(*) DESC) AS company_rank
          FROM %[1]s AS pr
          WHERE %[3]s
          GROUP BY pr.organizationId
        )
        SELECT
          cm.total_prs,
          sm.total_suggestions,
          sm.critical_suggestions,
          TO_JSON_STRING(ARRAY(SELECT AS STRUCT category, count FROM top_categories ORDER BY count DESC, category)) AS top_categories,
          td.name AS top_developer,
          td.total_prs AS top_developer_prs,
          ac.total_prs_all_companies,
          ac.total_companies,
          cr.company_rank
        FROM company_metrics AS cm
        CROSS JOIN suggestion_metrics AS sm
        CROSS JOIN all_companies AS ac
        LEFT JOIN top_developer AS td ON TRUE
        LEFT JOIN company_ranking AS cr ON cr.organization_id = @organizationId`,
		uc.pullRequests(), uc.table(warehouse.DatasetMongo, warehouse.TablePullRequestAuthors),
		closed, repo, closedBetween("pr", "startDate", "endDate"), topCategoriesLimit)

	params := withParams(w.Params(), warehouse.Params{
		"deliveryStatus":   deliveryStatusSent,
		"criticalSeverity": severityCritical,
	})
	rows, err := uc.query(ctx, op, w, sql, params)
	if err != nil {
		return CompanyDashboard{}, err
	}

	dashboard := CompanyDashboard{
		OrganizationID: w.OrganizationID,
		Period:         DashboardPeriod{StartDate: w.StartDate(), EndDate: w.EndDate()},
		Metrics: DashboardMetrics{
			TopSuggestionsCategories: []SuggestionCategoryCount{},
			TopDeveloper:             TopDeveloper{Name: noTopDeveloper},
		},
	}
	if len(rows) == 0 {
		return dashboard, nil
	}

	row := rows[0]
	categories, err := decodeTopCategories(row.String("top_categories"))
	if err != nil {
		return CompanyDashboard{}, apperr.Upstream(op, err)
	}

	totalPRs := row.Int64("total_prs")
	allPRs := row.Int64("total_prs_all_companies")
	dashboard.Metrics = DashboardMetrics{
		TotalPRs:                 totalPRs,
		CriticalSuggestions:      row.Int64("critical_suggestions"),
		TotalSuggestions:         row.Int64("total_suggestions"),
		TopSuggestionsCategories: categories,
		TopDeveloper: TopDeveloper{
			Name:     row.StringOr("top_developer", noTopDeveloper),
			TotalPRs: row.Int64("top_developer_prs"),
		},
		CompanyRanking: CompanyRanking{
			Rank:                 row.Int64("company_rank"),
			TotalCompanies:       row.Int64("total_companies"),
			PercentageOfTotalPRs: stats.Round2(stats.Ratio(float64(totalPRs), float64(allPRs)) * 100),
			TotalPRsAllCompanies: allPRs,
		},
	}
	return dashboard, nil
}

func decodeTopCategories(raw string) ([]SuggestionCategoryCount, error) {
	categories := []SuggestionCategoryCount{}
	if raw == "" {
		return categories, nil
	}
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		return nil, fmt.Errorf("decode top suggestion categories: %w", err)
	}
	if len(categories) > topCategoriesLimit {
		categories = categories[:topCategoriesLimit]
	}
	return categories, nil
}

// CompleteDashboard returns the basic dashboard plus the additional metrics. All parts are
// fetched concurrently and any failure fails the whole dashboard.
func (uc *DashboardUseCase) CompleteDashboard(ctx context.Context, w period.Window) (CompanyDashboard, error) {
	if err := w.Validate(); err != nil {
		return CompanyDashboard{}, err
	}

	var (
		dashboard       CompanyDashboard
		rate            ImplementationRate
		cycleTime       LeadTimeHighlight
		deployFrequency DeployFrequencyHighlight
		bugRatio        BugRatioHighlight
		breakdown       []LeadTimeBreakdownPoint
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		dashboard, err = uc.CompanyDashboard(ctx, w)
		return err
	})
	g.Go(func() (err error) {
		rate, err = uc.codeHealth.SuggestionsImplementationRate(ctx, w)
		return err
	})
	g.Go(func() (err error) {
		cycleTime, err = uc.productivity.LeadTimeHighlight(ctx, w)
		return err
	})
	g.Go(func() (err error) {
		deployFrequency, err = uc.productivity.DeployFrequencyHighlight(ctx, w)
		return err
	})
	g.Go(func() (err error) {
		bugRatio, err = uc.codeHealth.BugRatioHighlight(ctx, w)
		return err
	})
	g.Go(func() (err error) {
		breakdown, err = uc.productivity.LeadTimeBreakdown(ctx, w)
		return err
	})
	if err := g.Wait(); err != nil {
		return CompanyDashboard{}, err
	}

	if breakdown == nil {
		breakdown = []LeadTimeBreakdownPoint{}
	}
	dashboard.AdditionalMetrics = AdditionalMetrics{
		SuggestionsAppliedPercentage: &rate.ImplementationRate,
		SuggestionsImplementedCount:  &rate.SuggestionsImplemented,
		CycleTime:                    &cycleTime,
		DeployFrequency:              &deployFrequency,
		BugRatio:                     &bugRatio,
		LeadTimeBreakdown:            breakdown,
	}
	return dashboard, nil
}
