// Package governor caps how often a service may be auto-restarted inside a
// rolling window, so remediation can never become a restart storm.
package governor

import (
	"sort"
	"time"
)

// Decision is the outcome of consulting the governor before an attempt
type Decision struct {
	Allowed bool
	// Alert is true for the first denial of a suppression episode. Later
	// denials in the same episode stay silent so the cap cannot itself
	// cause an alert storm.
	Alert bool
}

// Governor tracks a per-service sliding window of restart-attempt
// timestamps. Entries older than the window are pruned lazily on each
// consultation, not on fixed buckets.
type Governor struct {
	window time.Duration
	cap    int

	attempts map[string][]time.Time
	episode  map[string]bool // service is inside a suppression episode
}

// New creates a governor with the given rolling window and attempt cap
func New(window time.Duration, cap int) *Governor {
	return &Governor{
		window:   window,
		cap:      cap,
		attempts: make(map[string][]time.Time),
		episode:  make(map[string]bool),
	}
}

// Consult prunes the service's window and decides whether another attempt is
// allowed right now. It does not record the attempt; call RecordAttempt once
// the command is actually issued.
func (g *Governor) Consult(serviceID string, now time.Time) Decision {
	window := g.prune(serviceID, now)

	if len(window) >= g.cap {
		first := !g.episode[serviceID]
		g.episode[serviceID] = true
		return Decision{Allowed: false, Alert: first}
	}

	g.episode[serviceID] = false
	return Decision{Allowed: true}
}

// RecordAttempt adds an issued attempt to the window
func (g *Governor) RecordAttempt(serviceID string, at time.Time) {
	g.attempts[serviceID] = append(g.attempts[serviceID], at)
}

// Window returns the pruned attempt timestamps for persistence
func (g *Governor) Window(serviceID string, now time.Time) []time.Time {
	pruned := g.prune(serviceID, now)
	out := make([]time.Time, len(pruned))
	copy(out, pruned)
	return out
}

// Restore installs persisted attempt timestamps (startup path)
func (g *Governor) Restore(serviceID string, attempts []time.Time) {
	sorted := append([]time.Time(nil), attempts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	g.attempts[serviceID] = sorted
}

// RestoreEpisode reinstates the suppression-episode flag (startup path), so a
// restart inside an episode does not re-alert on the next denial.
func (g *Governor) RestoreEpisode(serviceID string, suppressed bool) {
	g.episode[serviceID] = suppressed
}

// Forget drops all governor state for a removed service
func (g *Governor) Forget(serviceID string) {
	delete(g.attempts, serviceID)
	delete(g.episode, serviceID)
}

func (g *Governor) prune(serviceID string, now time.Time) []time.Time {
	cutoff := now.Add(-g.window)
	window := g.attempts[serviceID]
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		window = window[i:]
		g.attempts[serviceID] = window
	}
	return window
}
