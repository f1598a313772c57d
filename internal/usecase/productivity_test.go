package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/devinsights/internal/apperr"
	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/warehouse"
)

func TestPRSizeHighlightAveragesClosedPullRequests(t *testing.T) {
	gw := newStubGateway()
	gw.rows["productivity.pr_size_highlight"] = []warehouse.Row{
		{"pull_request_id": "a", "closed_at": ts("2024-01-03T10:00:00Z"), "total_changes": int64(50)},
		{"pull_request_id": "b", "closed_at": ts("2024-01-10T10:00:00Z"), "total_changes": int64(150)},
		{"pull_request_id": "c", "closed_at": ts("2024-01-18T10:00:00Z"), "total_changes": int64(200)},
		{"pull_request_id": "d", "closed_at": ts("2024-01-31T23:59:00Z"), "total_changes": int64(100)},
	}
	uc := NewProductivityUseCase(gw, zap.NewNop())

	got, err := uc.PRSizeHighlight(context.Background(), mustWindow("org-1", "2024-01-01", "2024-01-31", ""))
	require.NoError(t, err)

	assert.Equal(t, 125.0, got.CurrentPeriod.AveragePRSize)
	assert.Equal(t, int64(4), got.CurrentPeriod.TotalPRs)
	assert.Equal(t, PRSizeSample{}, got.PreviousPeriod)
	assert.Equal(t, period.Comparison{PercentageChange: 100, Trend: period.TrendWorsened}, got.Comparison)

	call := gw.lastCall()
	assert.Equal(t, "org-1", call.params["organizationId"])
	assert.Equal(t, "2023-11-30", call.params["previousStartDate"])
	assert.Equal(t, "2023-12-31", call.params["previousEndDate"])
}

func TestDeployFrequencyHighlightComparesWeeklyAverages(t *testing.T) {
	gw := newStubGateway()
	gw.rows["productivity.deploy_frequency_highlight"] = []warehouse.Row{
		{"period": "current", "total_deployments": int64(40)},
		{"period": "previous", "total_deployments": int64(20)},
	}
	uc := NewProductivityUseCase(gw, zap.NewNop())

	got, err := uc.DeployFrequencyHighlight(context.Background(), mustWindow("org-1", "2024-03-01", "2024-03-28", ""))
	require.NoError(t, err)

	assert.Equal(t, DeployFrequencySample{TotalDeployments: 40, AveragePerWeek: 10}, got.CurrentPeriod)
	assert.Equal(t, DeployFrequencySample{TotalDeployments: 20, AveragePerWeek: 5}, got.PreviousPeriod)
	assert.Equal(t, 100.0, got.Comparison.PercentageChange)
	assert.Equal(t, period.TrendImproved, got.Comparison.Trend)
}

func TestLeadTimeHighlightLowerIsBetter(t *testing.T) {
	gw := newStubGateway()
	gw.rows["productivity.lead_time_highlight"] = []warehouse.Row{
		{
			"closed_at":       ts("2024-03-05T12:00:00Z"),
			"first_commit_at": ts("2024-03-05T10:20:00Z"),
			"last_commit_at":  ts("2024-03-05T11:00:00Z"),
		},
		{
			"closed_at":       ts("2024-02-25T12:00:00Z"),
			"first_commit_at": ts("2024-02-25T10:00:00Z"),
			"last_commit_at":  ts("2024-02-25T10:30:00Z"),
		},
	}
	uc := NewProductivityUseCase(gw, zap.NewNop())

	got, err := uc.LeadTimeHighlight(context.Background(), mustWindow("org-1", "2024-03-01", "2024-03-07", ""))
	require.NoError(t, err)

	assert.Equal(t, LeadTimeSample{LeadTimeP75Minutes: 100, LeadTimeP75Hours: 1.67}, got.CurrentPeriod)
	assert.Equal(t, LeadTimeSample{LeadTimeP75Minutes: 120, LeadTimeP75Hours: 2}, got.PreviousPeriod)
	assert.Equal(t, -16.67, got.Comparison.PercentageChange)
	assert.Equal(t, period.TrendImproved, got.Comparison.Trend)
}

func TestLeadTimeChartOmitsEmptyWeeks(t *testing.T) {
	gw := newStubGateway()
	gw.rows["productivity.lead_time_chart"] = []warehouse.Row{
		{"closed_at": ts("2024-01-02T09:00:00Z"), "first_commit_at": ts("2024-01-02T08:00:00Z")},
		{"closed_at": ts("2024-01-16T09:00:00Z"), "first_commit_at": ts("2024-01-16T07:00:00Z")},
		{"closed_at": ts("2024-01-23T09:00:00Z"), "first_commit_at": ts("2024-01-23T06:00:00Z")},
		{"closed_at": ts("2024-01-24T09:00:00Z"), "first_commit_at": nil},
	}
	uc := NewProductivityUseCase(gw, zap.NewNop())

	got, err := uc.LeadTimeChart(context.Background(), mustWindow("org-1", "2024-01-01", "2024-01-28", ""))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, LeadTimePoint{WeekStart: "2024-01-01", LeadTimeP75Minutes: 60, LeadTimeP75Hours: 1}, got[0])
	assert.Equal(t, "2024-01-15", got[1].WeekStart)
	assert.Equal(t, "2024-01-22", got[2].WeekStart)
	assert.Equal(t, 180.0, got[2].LeadTimeP75Minutes)
}

func TestLeadTimeBreakdownSumsStagePercentiles(t *testing.T) {
	gw := newStubGateway()
	gw.rows["productivity.lead_time_breakdown"] = []warehouse.Row{
		{
			"first_commit_at": ts("2024-01-08T08:00:00Z"),
			"last_commit_at":  ts("2024-01-08T09:00:00Z"),
			"opened_at":       ts("2024-01-08T10:00:00Z"),
			"closed_at":       ts("2024-01-08T12:00:00Z"),
		},
		{
			"first_commit_at": ts("2024-01-09T08:00:00Z"),
			"last_commit_at":  ts("2024-01-09T08:00:00Z"),
			"opened_at":       ts("2024-01-09T08:30:00Z"),
			"closed_at":       ts("2024-01-09T10:00:00Z"),
		},
		{
			"first_commit_at": ts("2024-01-10T08:00:00Z"),
			"last_commit_at":  ts("2024-01-10T09:00:00Z"),
			"opened_at":       ts("2024-01-10T12:00:00Z"),
			"closed_at":       ts("2024-01-10T11:00:00Z"),
		},
	}
	uc := NewProductivityUseCase(gw, zap.NewNop())

	got, err := uc.LeadTimeBreakdown(context.Background(), mustWindow("org-1", "2024-01-08", "2024-01-14", ""))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, LeadTimeBreakdownPoint{
		WeekStart:         "2024-01-08",
		PRCount:           2,
		CodingTimeMinutes: 60,
		CodingTimeHours:   1,
		PickupTimeMinutes: 60,
		PickupTimeHours:   1,
		ReviewTimeMinutes: 120,
		ReviewTimeHours:   2,
		TotalTimeMinutes:  240,
		TotalTimeHours:    4,
	}, got[0])
}

func TestOpenedVsClosedGuardsRatio(t *testing.T) {
	gw := newStubGateway()
	gw.rows["productivity.pull_requests_opened_vs_closed"] = []warehouse.Row{
		{"week_start": "2024-01-01", "opened_count": int64(4), "closed_count": int64(3)},
		{"week_start": "2024-01-08", "opened_count": int64(0), "closed_count": int64(2)},
		{"week_start": "2024-01-15", "opened_count": int64(0), "closed_count": int64(0)},
	}
	uc := NewProductivityUseCase(gw, zap.NewNop())

	got, err := uc.PullRequestsOpenedVsClosed(context.Background(), mustWindow("org-1", "2024-01-01", "2024-01-21", ""))
	require.NoError(t, err)

	assert.Equal(t, []OpenedVsClosedPoint{
		{WeekStart: "2024-01-01", OpenedCount: 4, ClosedCount: 3, Ratio: 0.75},
		{WeekStart: "2024-01-08", OpenedCount: 0, ClosedCount: 2, Ratio: 0},
	}, got)
}

func TestDeveloperActivityNeverReturnsEmptyRows(t *testing.T) {
	gw := newStubGateway()
	gw.rows["productivity.developer_activity"] = []warehouse.Row{
		{"developer": "ana", "activity_date": "2024-01-02", "commit_count": int64(3), "pr_count": int64(0)},
		{"developer": "bob", "activity_date": "2024-01-02", "commit_count": int64(0), "pr_count": int64(0)},
		{"developer": "bob", "activity_date": "2024-01-03", "commit_count": nil, "pr_count": int64(1)},
	}
	uc := NewProductivityUseCase(gw, zap.NewNop())

	got, err := uc.DeveloperActivity(context.Background(), mustWindow("org-1", "2024-01-01", "2024-01-07", ""))
	require.NoError(t, err)

	assert.Equal(t, []DeveloperActivityPoint{
		{Developer: "ana", Date: "2024-01-02", CommitCount: 3, PRCount: 0},
		{Developer: "bob", Date: "2024-01-03", CommitCount: 0, PRCount: 1},
	}, got)
}

func TestDeployFrequencyChartBindsRepositoryOnlyWhenSet(t *testing.T) {
	gw := newStubGateway()
	uc := NewProductivityUseCase(gw, zap.NewNop())

	_, err := uc.DeployFrequencyChart(context.Background(), mustWindow("org-1", "2024-01-01", "2024-01-31", ""))
	require.NoError(t, err)
	call := gw.lastCall()
	assert.NotContains(t, call.query, "@repository")
	assert.NotContains(t, call.params, "repository")

	_, err = uc.DeployFrequencyChart(context.Background(), mustWindow("org-1", "2024-01-01", "2024-01-31", "acme/api"))
	require.NoError(t, err)
	call = gw.lastCall()
	assert.Contains(t, call.query, "pr.repo_full_name = @repository")
	assert.NotContains(t, call.query, "acme/api")
	assert.Equal(t, "acme/api", call.params["repository"])
}

func TestInvalidWindowNeverReachesWarehouse(t *testing.T) {
	gw := newStubGateway()
	uc := NewProductivityUseCase(gw, zap.NewNop())

	_, err := uc.DeployFrequencyChart(context.Background(), period.Window{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, gw.callCount())
}

func TestWarehouseFailureBecomesUpstreamError(t *testing.T) {
	gw := newStubGateway()
	gw.errs["productivity.pull_requests_by_developer"] = errors.New("quota exceeded")
	uc := NewProductivityUseCase(gw, zap.NewNop())

	_, err := uc.PullRequestsByDeveloper(context.Background(), mustWindow("org-1", "2024-01-01", "2024-01-31", ""))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, "Error executing query", apperr.PublicMessage(err))
}
