package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/example/devinsights/internal/cache"
	"github.com/example/devinsights/internal/warehouse"
)

type stubWarehouse struct {
	pingErr  error
	datasets []string
	listErr  error
}

func (s *stubWarehouse) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubWarehouse) ListDatasets(ctx context.Context) ([]string, error) {
	return s.datasets, s.listErr
}

func testDatasets() warehouse.Datasets {
	return warehouse.Datasets{
		warehouse.DatasetMongo:    "mongo_mirror",
		warehouse.DatasetPostgres: "postgres_mirror",
		warehouse.DatasetCustom:   "custom_tables",
	}
}

func newTestChecker(wh Warehouse, inUse, total uint64) *Checker {
	c := NewChecker(wh, testDatasets(), cache.NewMemoryStore(time.Minute), zap.NewNop())
	c.memory = func() (uint64, uint64) { return inUse, total }
	return c
}

func TestReadyIsUpWhenEveryDependencyIsUp(t *testing.T) {
	c := newTestChecker(&stubWarehouse{}, 50, 100)

	report := c.Ready(context.Background())

	assert.Equal(t, StatusUp, report.Status)
	assert.Len(t, report.Dependencies, 3)
	assert.Equal(t, StatusUp, report.Dependencies["bigquery"].Status)
	assert.Equal(t, StatusUp, report.Dependencies["cache"].Status)
	assert.Equal(t, StatusUp, report.Dependencies["memory"].Status)
}

func TestReadyIsDownWhenWarehouseFails(t *testing.T) {
	c := newTestChecker(&stubWarehouse{pingErr: errors.New("permission denied")}, 50, 100)

	report := c.Ready(context.Background())

	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "permission denied", report.Dependencies["bigquery"].Error)
}

func TestMemoryThresholds(t *testing.T) {
	assert.Equal(t, StatusUp, newTestChecker(&stubWarehouse{}, 84, 100).Memory().Status)
	assert.Equal(t, StatusWarning, newTestChecker(&stubWarehouse{}, 90, 100).Memory().Status)
	assert.Equal(t, StatusDown, newTestChecker(&stubWarehouse{}, 96, 100).Memory().Status)

	report := newTestChecker(&stubWarehouse{}, 90, 100).Ready(context.Background())
	assert.Equal(t, StatusWarning, report.Status)
}

func TestAPIReportsMissingDatasets(t *testing.T) {
	api := API{
		Name:      "code-health",
		Datasets:  []warehouse.Dataset{warehouse.DatasetMongo, warehouse.DatasetCustom},
		Endpoints: []string{"/api/code-health/charts/bug-ratio"},
	}

	up := newTestChecker(&stubWarehouse{datasets: []string{"mongo_mirror", "custom_tables"}}, 1, 100).API(context.Background(), api)
	assert.Equal(t, StatusUp, up.Status)
	assert.Equal(t, "code-health", up.API)
	assert.Equal(t, StatusUp, up.Endpoints["/api/code-health/charts/bug-ratio"])
	assert.Contains(t, up.Dependencies, "bigquery_code_health")

	down := newTestChecker(&stubWarehouse{datasets: []string{"mongo_mirror"}}, 1, 100).API(context.Background(), api)
	assert.Equal(t, StatusDown, down.Status)
	assert.Equal(t, "missing datasets: custom_tables", down.Dependencies["bigquery_code_health"].Error)
	assert.Equal(t, StatusDown, down.Endpoints["/api/code-health/charts/bug-ratio"])
}

func TestCacheProbeLeavesNoEntries(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	c := NewChecker(&stubWarehouse{}, testDatasets(), store, zap.NewNop())

	check := c.Cache(context.Background())

	assert.Equal(t, StatusUp, check.Status)
	assert.Zero(t, store.Len())
}
