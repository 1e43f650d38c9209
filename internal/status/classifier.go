// Package status turns probe history into a per-service lifecycle state.
// Transitions emitted here are the single trigger point for recovery and
// alerting; no other component infers state on its own.
package status

import (
	"time"

	"github.com/satomon/sato/internal/probe"
)

// State is a service lifecycle state
type State string

const (
	StateChecking    State = "checking" // before the first probe completes
	StateOperational State = "operational"
	StateDegraded    State = "degraded"
	StateDown        State = "down"
)

// LatencyRingSize bounds the recent-latency history kept per service for
// trend/sparkline consumers
const LatencyRingSize = 30

// Record is the classifier-owned status record for one service
type Record struct {
	ServiceID            string
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastTransition       time.Time
	LastDetail           string

	latencies [LatencyRingSize]time.Duration
	latCount  int
	latNext   int
}

// PushLatency appends a latency sample to the bounded ring
func (r *Record) PushLatency(d time.Duration) {
	r.latencies[r.latNext] = d
	r.latNext = (r.latNext + 1) % LatencyRingSize
	if r.latCount < LatencyRingSize {
		r.latCount++
	}
}

// Latencies returns the ring contents oldest-first
func (r *Record) Latencies() []time.Duration {
	out := make([]time.Duration, 0, r.latCount)
	start := r.latNext - r.latCount
	if start < 0 {
		start += LatencyRingSize
	}
	for i := 0; i < r.latCount; i++ {
		out = append(out, r.latencies[(start+i)%LatencyRingSize])
	}
	return out
}

// Transition is a state change produced by one probe result
type Transition struct {
	ServiceID string
	From      State
	To        State
	At        time.Time
	Result    probe.Result
}

// Classifier applies the lifecycle state machine per service
type Classifier struct {
	downAfterFailures     int
	recoverAfterSuccesses int // Down -> Operational hysteresis
	degradedLatency       time.Duration

	records map[string]*Record
}

// NewClassifier creates a classifier. downAfterFailures is the consecutive
// failure count that forces Down; recoverAfterSuccesses the consecutive
// success count required to leave Down (Degraded recovers after one).
func NewClassifier(downAfterFailures, recoverAfterSuccesses int, degradedLatency time.Duration) *Classifier {
	if downAfterFailures < 1 {
		downAfterFailures = 1
	}
	if recoverAfterSuccesses < 1 {
		recoverAfterSuccesses = 1
	}
	return &Classifier{
		downAfterFailures:     downAfterFailures,
		recoverAfterSuccesses: recoverAfterSuccesses,
		degradedLatency:       degradedLatency,
		records:               make(map[string]*Record),
	}
}

// Record returns the status record for a service, creating a Checking record
// on first sight
func (c *Classifier) Record(serviceID string) *Record {
	r, ok := c.records[serviceID]
	if !ok {
		r = &Record{ServiceID: serviceID, State: StateChecking}
		c.records[serviceID] = r
	}
	return r
}

// Restore installs a previously persisted record (startup path)
func (c *Classifier) Restore(r *Record) {
	c.records[r.ServiceID] = r
}

// Records returns all known records
func (c *Classifier) Records() []*Record {
	out := make([]*Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	return out
}

// Forget drops a record (service removed from inventory)
func (c *Classifier) Forget(serviceID string) {
	delete(c.records, serviceID)
}

// Observe applies one probe result and returns the transition it caused, if
// any. It is the only mutator of status records.
func (c *Classifier) Observe(res probe.Result) (Transition, bool) {
	r := c.Record(res.ServiceID)
	r.PushLatency(res.Latency)
	r.LastDetail = res.Detail

	next := c.next(r, res)
	if next == r.State {
		return Transition{}, false
	}

	tr := Transition{
		ServiceID: res.ServiceID,
		From:      r.State,
		To:        next,
		At:        res.Timestamp,
		Result:    res,
	}
	r.State = next
	r.LastTransition = res.Timestamp
	return tr, true
}

func (c *Classifier) next(r *Record, res probe.Result) State {
	if !res.Success {
		r.ConsecutiveFailures++
		r.ConsecutiveSuccesses = 0
		if r.ConsecutiveFailures >= c.downAfterFailures {
			return StateDown
		}
		if r.State == StateDown {
			return StateDown
		}
		return StateDegraded
	}

	r.ConsecutiveSuccesses++
	r.ConsecutiveFailures = 0

	// Slow but successful responses degrade the service without counting
	// toward Down.
	if c.degradedLatency > 0 && res.Latency > c.degradedLatency {
		return StateDegraded
	}

	switch r.State {
	case StateDown:
		if r.ConsecutiveSuccesses >= c.recoverAfterSuccesses {
			return StateOperational
		}
		return StateDown
	default:
		return StateOperational
	}
}
