// Package health reports the liveness and readiness of the service and its dependencies.
package health

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/devinsights/internal/cache"
	"github.com/example/devinsights/internal/warehouse"
)

// Status is the outcome of a probe.
type Status string

const (
	StatusUp      Status = "UP"
	StatusWarning Status = "WARNING"
	StatusDown    Status = "DOWN"
)

// Heap usage ratios at which the memory check degrades.
const (
	MemoryWarningRatio = 0.85
	MemoryDownRatio    = 0.95
)

const cacheProbeTTL = time.Second

// Check is the outcome of probing one dependency.
type Check struct {
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	ResponseTime string    `json:"responseTime"`
	Error        string    `json:"error,omitempty"`
	Details      string    `json:"details,omitempty"`
}

// Report is the response body of every health route.
type Report struct {
	Status       Status            `json:"status"`
	API          string            `json:"api,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	ResponseTime string            `json:"responseTime"`
	Endpoints    map[string]Status `json:"endpoints,omitempty"`
	Dependencies map[string]Check  `json:"dependencies,omitempty"`
}

// API describes one route group and the datasets it reads.
type API struct {
	Name      string
	Datasets  []warehouse.Dataset
	Endpoints []string
}

// Warehouse is the part of the warehouse client the probes need.
type Warehouse interface {
	Ping(ctx context.Context) error
	ListDatasets(ctx context.Context) ([]string, error)
}

type memoryReader func() (inUse, total uint64)

func readHeap() (uint64, uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse, m.HeapSys
}

// Checker runs the health probes against the service dependencies.
type Checker struct {
	warehouse Warehouse
	datasets  warehouse.Datasets
	cache     cache.Store
	logger    *zap.Logger
	now       func() time.Time
	memory    memoryReader
}

// NewChecker constructs a checker for the given datasets.
func NewChecker(wh Warehouse, datasets warehouse.Datasets, store cache.Store, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		warehouse: wh,
		datasets:  datasets,
		cache:     store,
		logger:    logger.Named("health"),
		now:       time.Now,
		memory:    readHeap,
	}
}

// Basic reports that the process is serving requests.
func (c *Checker) Basic() Report {
	return Report{Status: StatusUp, Timestamp: c.now().UTC(), ResponseTime: "0ms"}
}

// Ready probes the warehouse, the cache and the heap.
func (c *Checker) Ready(ctx context.Context) Report {
	start := c.now()
	deps := c.run(ctx, map[string]func(context.Context) Check{
		"bigquery": c.BigQuery,
		"cache":    c.Cache,
		"memory":   func(context.Context) Check { return c.Memory() },
	})
	return Report{
		Status:       overall(deps),
		Timestamp:    c.now().UTC(),
		ResponseTime: elapsed(start, c.now()),
		Dependencies: deps,
	}
}

// API probes the datasets a route group reads and the cache.
func (c *Checker) API(ctx context.Context, api API) Report {
	start := c.now()
	deps := c.run(ctx, map[string]func(context.Context) Check{
		"bigquery_" + strings.ReplaceAll(api.Name, "-", "_"): func(ctx context.Context) Check {
			return c.Datasets(ctx, api.Datasets)
		},
		"cache": c.Cache,
	})
	status := overall(deps)

	endpoints := make(map[string]Status, len(api.Endpoints))
	for _, e := range api.Endpoints {
		endpoints[e] = status
	}
	return Report{
		Status:       status,
		API:          api.Name,
		Timestamp:    c.now().UTC(),
		ResponseTime: elapsed(start, c.now()),
		Endpoints:    endpoints,
		Dependencies: deps,
	}
}

func (c *Checker) run(ctx context.Context, probes map[string]func(context.Context) Check) map[string]Check {
	var (
		mu  sync.Mutex
		out = make(map[string]Check, len(probes))
		g   errgroup.Group
	)
	for name, probe := range probes {
		name, probe := name, probe
		g.Go(func() error {
			check := probe(ctx)
			mu.Lock()
			out[name] = check
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// BigQuery runs a trivial query against the warehouse.
func (c *Checker) BigQuery(ctx context.Context) Check {
	start := c.now()
	if err := c.warehouse.Ping(ctx); err != nil {
		c.logger.Error("bigquery health check failed", zap.Error(err))
		return c.down(start, err)
	}
	return c.up(start, "")
}

// Datasets checks that every configured dataset in required is visible to the client.
func (c *Checker) Datasets(ctx context.Context, required []warehouse.Dataset) Check {
	start := c.now()
	ids, err := c.warehouse.ListDatasets(ctx)
	if err != nil {
		c.logger.Error("bigquery dataset listing failed", zap.Error(err))
		return c.down(start, err)
	}

	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	var missing []string
	for _, alias := range required {
		if name := c.datasets[alias]; !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		err := fmt.Errorf("missing datasets: %s", strings.Join(missing, ", "))
		c.logger.Warn("bigquery datasets not found", zap.Strings("datasets", missing))
		return c.down(start, err)
	}
	return c.up(start, fmt.Sprintf("%d datasets available", len(ids)))
}

// Cache writes, reads back and deletes a probe entry.
func (c *Checker) Cache(ctx context.Context) Check {
	start := c.now()
	key := "health-check-" + uuid.NewString()
	value := []byte(key)

	if err := c.cache.Set(ctx, key, value, cacheProbeTTL); err != nil {
		c.logger.Error("cache health check failed", zap.Error(err))
		return c.down(start, err)
	}
	got, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache health check failed", zap.Error(err))
		return c.down(start, err)
	}
	if !ok || string(got) != string(value) {
		return c.down(start, errors.New("cache read back a different value"))
	}
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("cache health probe not removed", zap.String("key", key), zap.Error(err))
	}
	return c.up(start, "")
}

// Memory grades the in-use share of the heap reserved from the OS.
func (c *Checker) Memory() Check {
	start := c.now()
	inUse, total := c.memory()
	var ratio float64
	if total > 0 {
		ratio = float64(inUse) / float64(total)
	}

	status := StatusUp
	switch {
	case ratio >= MemoryDownRatio:
		status = StatusDown
	case ratio >= MemoryWarningRatio:
		status = StatusWarning
	}
	return Check{
		Status:       status,
		Timestamp:    c.now().UTC(),
		ResponseTime: elapsed(start, c.now()),
		Details:      fmt.Sprintf("heap %dMB in use of %dMB (%.0f%%)", inUse>>20, total>>20, ratio*100),
	}
}

func (c *Checker) up(start time.Time, details string) Check {
	return Check{Status: StatusUp, Timestamp: c.now().UTC(), ResponseTime: elapsed(start, c.now()), Details: details}
}

func (c *Checker) down(start time.Time, err error) Check {
	return Check{Status: StatusDown, Timestamp: c.now().UTC(), ResponseTime: elapsed(start, c.now()), Error: err.Error()}
}

// overall is DOWN if any dependency is down, WARNING if any is degraded, else UP.
func overall(deps map[string]Check) Status {
	status := StatusUp
	for _, d := range deps {
		switch d.Status {
		case StatusDown:
			return StatusDown
		case StatusWarning:
			status = StatusWarning
		}
	}
	return status
}

func elapsed(start, end time.Time) string {
	return fmt.Sprintf("%dms", end.Sub(start).Milliseconds())
}
