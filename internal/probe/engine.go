package probe

import (
	"context"
	"sort"
	"sync"

	"github.com/satomon/sato/internal/inventory"
)

// Engine fans probe work out across a bounded worker pool
type Engine struct {
	checker Checker
	workers int
}

// NewEngine creates an engine. workers bounds concurrent checks per tick so
// a large fleet cannot cause unbounded fan-out.
func NewEngine(checker Checker, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{checker: checker, workers: workers}
}

// RunTick checks every service concurrently and returns the complete batch,
// ordered by service id. It blocks until every check has finished or timed
// out; cascade correlation depends on seeing sibling results together.
func (e *Engine) RunTick(ctx context.Context, services []inventory.Service) []Result {
	results := make([]Result, len(services))

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc inventory.Service) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.checker.Check(ctx, svc)
		}(i, svc)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ServiceID < results[j].ServiceID })
	return results
}

// CheckOne probes a single service out of band (used by pending recovery
// timers to re-verify state before issuing a remediation command)
func (e *Engine) CheckOne(ctx context.Context, svc inventory.Service) Result {
	return e.checker.Check(ctx, svc)
}
