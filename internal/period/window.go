// Package period models the requested reporting window, the window that precedes it,
// and the comparison between the two.
package period

import (
	"regexp"
	"strings"
	"time"

	"github.com/example/devinsights/internal/apperr"
)

// DateLayout is the only accepted date format on the wire.
const DateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Window is an organization-scoped, whole-day reporting range. Both ends are inclusive.
type Window struct {
	OrganizationID string
	Start          time.Time
	End            time.Time
	Repository     string
}

// ParseWindow validates raw request values and builds a Window.
// Every failure is a validation error so it can be rejected before any query runs.
func ParseWindow(organizationID, startDate, endDate, repository string) (Window, error) {
	organizationID = strings.TrimSpace(organizationID)
	startDate = strings.TrimSpace(startDate)
	endDate = strings.TrimSpace(endDate)

	var missing []string
	if organizationID == "" {
		missing = append(missing, "organizationId")
	}
	if startDate == "" {
		missing = append(missing, "startDate")
	}
	if endDate == "" {
		missing = append(missing, "endDate")
	}
	if len(missing) > 0 {
		return Window{}, apperr.Validation("Missing required parameters: %s", strings.Join(missing, ", "))
	}

	start, err := ParseDate(startDate)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return Window{}, err
	}
	if start.After(end) {
		return Window{}, apperr.Validation("startDate must not be after endDate")
	}

	return Window{
		OrganizationID: organizationID,
		Start:          start,
		End:            end,
		Repository:     strings.TrimSpace(repository),
	}, nil
}

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	if !datePattern.MatchString(value) {
		return time.Time{}, apperr.Validation("Invalid date format. Use YYYY-MM-DD")
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("Invalid date format. Use YYYY-MM-DD")
	}
	return t, nil
}

// StartDate returns the window start as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate returns the window end as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.Format(DateLayout) }

// Days is the day difference between End and Start (0 for a single-day window).
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// Weeks is the number of weeks used as the denominator of per-week averages.
func (w Window) Weeks() int {
	weeks := (w.Days() + 6) / 7
	if weeks < 1 {
		return 1
	}
	return weeks
}

// Previous returns the window immediately before w. It ends the day before w starts and
// reaches back one inclusive span of w, so the two windows never overlap.
func (w Window) Previous() Window {
	span := w.Days() + 1
	prevEnd := w.Start.AddDate(0, 0, -1)
	return Window{
		OrganizationID: w.OrganizationID,
		Start:          prevEnd.AddDate(0, 0, -span),
		End:            prevEnd,
		Repository:     w.Repository,
	}
}

// Contains reports whether t falls on any day of the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && t.Before(w.End.AddDate(0, 0, 1))
}

// Params returns the named query parameters that describe w. The repository
// parameter is present only when a repository filter was requested.
func (w Window) Params() map[string]any {
	params := map[string]any{
		"organizationId": w.OrganizationID,
		"startDate":      w.StartDate(),
		"endDate":        w.EndDate(),
	}
	if w.Repository != "" {
		params["repository"] = w.Repository
	}
	return params
}

// ComparisonParams returns the named parameters for a query spanning w and its previous window.
func (w Window) ComparisonParams() map[string]any {
	prev := w.Previous()
	params := map[string]any{
		"organizationId":    w.OrganizationID,
		"currentStartDate":  w.StartDate(),
		"currentEndDate":    w.EndDate(),
		"previousStartDate": prev.StartDate(),
		"previousEndDate":   prev.EndDate(),
	}
	if w.Repository != "" {
		params["repository"] = w.Repository
	}
	return params
}

// Validate rechecks the invariants ParseWindow establishes, for windows built in code.
func (w Window) Validate() error {
	if strings.TrimSpace(w.OrganizationID) == "" {
		return apperr.Validation("Missing required parameters: organizationId")
	}
	if w.Start.IsZero() || w.End.IsZero() {
		return apperr.Validation("Missing required parameters: startDate, endDate")
	}
	if w.Start.After(w.End) {
		return apperr.Validation("startDate must not be after endDate")
	}
	return nil
}
