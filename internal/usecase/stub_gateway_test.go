package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/warehouse"
)

type queryCall struct {
	name   string
	query  string
	params warehouse.Params
}

// stubGateway returns canned rows per query name and records every call.
type stubGateway struct {
	mu    sync.Mutex
	rows  map[string][]warehouse.Row
	errs  map[string]error
	calls []queryCall
}

func newStubGateway() *stubGateway {
	return &stubGateway{rows: map[string][]warehouse.Row{}, errs: map[string]error{}}
}

func (s *stubGateway) Query(ctx context.Context, name, query string, params warehouse.Params) ([]warehouse.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, queryCall{name: name, query: query, params: params})
	if err := s.errs[name]; err != nil {
		return nil, err
	}
	return s.rows[name], nil
}

func (s *stubGateway) TablePath(dataset warehouse.Dataset, table string) string {
	return fmt.Sprintf("`test-project.%s.%s`", dataset, table)
}

func (s *stubGateway) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubGateway) lastCall() queryCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func mustWindow(org, start, end, repo string) period.Window {
	w, err := period.ParseWindow(org, start, end, repo)
	if err != nil {
		panic(err)
	}
	return w
}

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}
