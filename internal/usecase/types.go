package usecase

import "github.com/example/devinsights/internal/period"

// DeployFrequencyPoint is the number of pull requests closed in one week.
type DeployFrequencyPoint struct {
	WeekStart string `json:"weekStart"`
	PRCount   int64  `json:"prCount"`
}

type DeployFrequencySample struct {
	TotalDeployments int64   `json:"totalDeployments"`
	AveragePerWeek   float64 `json:"averagePerWeek"`
}

type DeployFrequencyHighlight = period.Result[DeployFrequencySample]

// LeadTimePoint is the p75 lead time of the pull requests closed in one week.
type LeadTimePoint struct {
	WeekStart          string  `json:"weekStart"`
	LeadTimeP75Minutes float64 `json:"leadTimeP75Minutes"`
	LeadTimeP75Hours   float64 `json:"leadTimeP75Hours"`
}

type LeadTimeSample struct {
	LeadTimeP75Minutes float64 `json:"leadTimeP75Minutes"`
	LeadTimeP75Hours   float64 `json:"leadTimeP75Hours"`
}

type LeadTimeHighlight = period.Result[LeadTimeSample]

type PRSizeSample struct {
	AveragePRSize float64 `json:"averagePRSize"`
	TotalPRs      int64   `json:"totalPRs"`
}

type PRSizeHighlight = period.Result[PRSizeSample]

type PullRequestsByDeveloperPoint struct {
	WeekStart string `json:"weekStart"`
	Author    string `json:"author"`
	PRCount   int64  `json:"prCount"`
}

// OpenedVsClosedPoint compares pull requests opened and closed in one week.
// Ratio is closed/opened and 0 when nothing was opened.
type OpenedVsClosedPoint struct {
	WeekStart   string  `json:"weekStart"`
	OpenedCount int64   `json:"openedCount"`
	ClosedCount int64   `json:"closedCount"`
	Ratio       float64 `json:"ratio"`
}

// LeadTimeBreakdownPoint splits the weekly lead time into its coding, pickup and review stages.
type LeadTimeBreakdownPoint struct {
	WeekStart         string  `json:"weekStart"`
	PRCount           int64   `json:"prCount"`
	CodingTimeMinutes float64 `json:"codingTimeMinutes"`
	CodingTimeHours   float64 `json:"codingTimeHours"`
	PickupTimeMinutes float64 `json:"pickupTimeMinutes"`
	PickupTimeHours   float64 `json:"pickupTimeHours"`
	ReviewTimeMinutes float64 `json:"reviewTimeMinutes"`
	ReviewTimeHours   float64 `json:"reviewTimeHours"`
	TotalTimeMinutes  float64 `json:"totalTimeMinutes"`
	TotalTimeHours    float64 `json:"totalTimeHours"`
}

// DeveloperActivityPoint counts one developer's commits and pull requests on one day.
type DeveloperActivityPoint struct {
	Developer   string `json:"developer"`
	Date        string `json:"date"`
	CommitCount int64  `json:"commitCount"`
	PRCount     int64  `json:"prCount"`
}

type SuggestionCategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// RepositorySuggestions groups sent suggestions of one repository by category.
type RepositorySuggestions struct {
	Repository string                    `json:"repository"`
	TotalCount int64                     `json:"totalCount"`
	Categories []SuggestionCategoryCount `json:"categories"`
}

type BugRatioPoint struct {
	WeekStart string  `json:"weekStart"`
	TotalPRs  int64   `json:"totalPRs"`
	BugFixPRs int64   `json:"bugFixPRs"`
	Ratio     float64 `json:"ratio"`
}

type BugRatioSample struct {
	TotalPRs  int64   `json:"totalPRs"`
	BugFixPRs int64   `json:"bugFixPRs"`
	Ratio     float64 `json:"ratio"`
}

type BugRatioHighlight = period.Result[BugRatioSample]

// ImplementationRate is the share of delivered suggestions that were acted on, in percent.
type ImplementationRate struct {
	SuggestionsSent        int64   `json:"suggestionsSent"`
	SuggestionsImplemented int64   `json:"suggestionsImplemented"`
	ImplementationRate     float64 `json:"implementationRate"`
}

// CockpitValidation reports whether an organization has any pull request data.
type CockpitValidation struct {
	HasData           bool  `json:"hasData"`
	PullRequestsCount int64 `json:"pullRequestsCount"`
}
