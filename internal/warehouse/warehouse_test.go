package warehouse

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type civilDate string

func (d civilDate) String() string { return string(d) }

func testDatasets() Datasets {
	return Datasets{
		DatasetMongo:    "mongo_mirror",
		DatasetPostgres: "postgres_mirror",
		DatasetCustom:   "custom_tables",
	}
}

func TestTablePathResolvesAlias(t *testing.T) {
	bq := &BigQuery{projectID: "analytics-prod", datasets: testDatasets(), logger: zap.NewNop()}

	assert.Equal(t, "`analytics-prod.mongo_mirror.pullRequests`", bq.TablePath(DatasetMongo, TablePullRequests))
	assert.Equal(t, "`analytics-prod.custom_tables.pull_request_types`", bq.TablePath(DatasetCustom, TablePullRequestTypes))
}

func TestTablePathRejectsInjectedTable(t *testing.T) {
	bq := &BigQuery{projectID: "p", datasets: testDatasets(), logger: zap.NewNop()}

	assert.Panics(t, func() { bq.TablePath(DatasetMongo, "x` ; DROP TABLE y; --") })
}

func TestDatasetsValidate(t *testing.T) {
	require.NoError(t, testDatasets().Validate())

	missing := testDatasets()
	delete(missing, DatasetCustom)
	assert.Error(t, missing.Validate())

	bad := testDatasets()
	bad[DatasetMongo] = "mongo`.evil"
	assert.Error(t, bad.Validate())
}

func TestToParametersSortedByName(t *testing.T) {
	params := toParameters(Params{"startDate": "2024-01-01", "organizationId": "org-1", "endDate": "2024-01-31"})

	require.Len(t, params, 3)
	assert.Equal(t, bigquery.QueryParameter{Name: "endDate", Value: "2024-01-31"}, params[0])
	assert.Equal(t, "organizationId", params[1].Name)
	assert.Equal(t, "startDate", params[2].Name)
	assert.Nil(t, toParameters(nil))
}

func TestRowAccessorsCoalesceNulls(t *testing.T) {
	closed := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	row := Row{
		"count":     int64(7),
		"avg":       12.5,
		"numeric":   big.NewRat(5, 2),
		"null":      nil,
		"name":      "acme/api",
		"week":      civilDate("2024-01-01"),
		"closed_at": closed,
	}

	assert.Equal(t, int64(7), row.Int64("count"))
	assert.Equal(t, 12.5, row.Float64("avg"))
	assert.Equal(t, 2.5, row.Float64("numeric"))
	assert.Equal(t, int64(0), row.Int64("null"))
	assert.Equal(t, 0.0, row.Float64("missing"))
	assert.Equal(t, "", row.String("null"))
	assert.Equal(t, "Unknown", row.StringOr("null", "Unknown"))
	assert.Equal(t, "acme/api", row.String("name"))
	assert.Equal(t, "2024-01-01", row.String("week"))

	ts, ok := row.Time("closed_at")
	assert.True(t, ok)
	assert.Equal(t, closed, ts)

	_, ok = row.Time("null")
	assert.False(t, ok)
}
