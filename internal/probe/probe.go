// Package probe executes health checks against the fleet. The engine fans
// out one check per due service per tick, bounded by a worker limit, and
// returns the complete batch; it never mutates status records.
package probe

import (
	"context"
	"time"

	"github.com/satomon/sato/internal/inventory"
)

// Result is one probe outcome for one service. Append-only data: failures
// are ordinary results, never errors.
type Result struct {
	ServiceID string
	Timestamp time.Time
	Success   bool
	Latency   time.Duration
	Detail    string
}

// Checker performs a single health check against a service
type Checker interface {
	Check(ctx context.Context, svc inventory.Service) Result
}

func success(svc inventory.Service, started time.Time, detail string) Result {
	return Result{
		ServiceID: svc.ID,
		Timestamp: started,
		Success:   true,
		Latency:   time.Since(started),
		Detail:    detail,
	}
}

func failure(svc inventory.Service, started time.Time, detail string) Result {
	return Result{
		ServiceID: svc.ID,
		Timestamp: started,
		Success:   false,
		Latency:   time.Since(started),
		Detail:    detail,
	}
}
