// Package warehouse executes parameterized analytical queries against the data warehouse.
package warehouse

import (
	"context"
	"fmt"
	"regexp"
)

// Dataset is a logical dataset alias. Physical names come from configuration.
type Dataset string

const (
	// DatasetMongo is the mirror of the operational document store.
	DatasetMongo Dataset = "mongo"
	// DatasetPostgres is the mirror of the relational store.
	DatasetPostgres Dataset = "postgres"
	// DatasetCustom holds derived tables built inside the warehouse.
	DatasetCustom Dataset = "custom"
)

// Tables read by the metric use cases.
const (
	TablePullRequests       = "pullRequests"
	TableCommits            = "commits_view"
	TablePullRequestAuthors = "pull_request_author_view"
	TablePullRequestTypes   = "pull_request_types"
)

// Params maps a named placeholder (without the leading @) to its value.
type Params map[string]any

// Gateway is the only way the use cases reach the warehouse.
type Gateway interface {
	// Query runs query with params bound by name. name identifies the query in logs and errors.
	// Failures are returned as upstream query errors.
	Query(ctx context.Context, name, query string, params Params) ([]Row, error)
	// TablePath resolves a dataset alias and table into a fully qualified table reference.
	TablePath(dataset Dataset, table string) string
}

// Datasets maps each alias to its physical dataset name.
type Datasets map[Dataset]string

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Validate checks that every alias resolves to a safe identifier.
func (d Datasets) Validate() error {
	for _, alias := range []Dataset{DatasetMongo, DatasetPostgres, DatasetCustom} {
		name, ok := d[alias]
		if !ok || name == "" {
			return fmt.Errorf("dataset %q is not configured", alias)
		}
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("dataset %q has invalid name %q", alias, name)
		}
	}
	return nil
}

// qualify builds a backtick-quoted project.dataset.table reference.
// Table names are compile-time constants, so an invalid one is a programming error.
func qualify(project, dataset, table string) string {
	if !identifierPattern.MatchString(table) {
		panic(fmt.Sprintf("warehouse: invalid table name %q", table))
	}
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
}
