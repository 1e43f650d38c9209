package monitor

import (
	"sort"
	"time"

	"github.com/satomon/sato/internal/status"
)

// ServiceStatus is the externally visible status of one service
type ServiceStatus struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Group          string       `json:"group,omitempty"`
	State          status.State `json:"state"`
	LastTransition *time.Time   `json:"last_transition,omitempty"`
	LastDetail     string       `json:"last_detail,omitempty"`
	LatenciesMs    []int64      `json:"latencies_ms,omitempty"`
	Maintenance    bool         `json:"maintenance"`
	PendingRestart bool         `json:"pending_restart"`
	Attempts       int          `json:"attempts,omitempty"`
	Escalated      bool         `json:"escalated,omitempty"`
}

// Snapshot is a point-in-time view of the fleet, served by the status API
// and pushed over the websocket stream.
type Snapshot struct {
	At          time.Time       `json:"at"`
	Services    []ServiceStatus `json:"services"`
	Operational int             `json:"operational"`
	Total       int             `json:"total"`
	Maintenance bool            `json:"maintenance"`
}

// Snapshot builds the current fleet view
func (m *Monitor) Snapshot() Snapshot {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		At:          now,
		Services:    make([]ServiceStatus, 0, len(m.services)),
		Total:       len(m.services),
		Maintenance: m.maint.AnyActive(now),
	}
	for _, svc := range m.services {
		rec := m.classifier.Record(svc.ID)
		ss := ServiceStatus{
			ID:             svc.ID,
			Name:           svc.DisplayName(),
			Group:          svc.Group,
			State:          rec.State,
			LastDetail:     rec.LastDetail,
			Maintenance:    m.maint.Active(svc.ID, now),
			PendingRestart: m.recoverer.Pending(svc.ID),
		}
		if !rec.LastTransition.IsZero() {
			t := rec.LastTransition
			ss.LastTransition = &t
		}
		for _, d := range rec.Latencies() {
			ss.LatenciesMs = append(ss.LatenciesMs, d.Milliseconds())
		}
		if inc := m.incidents[svc.ID]; inc != nil {
			ss.Attempts = inc.attempts
			ss.Escalated = inc.escalated
		}
		if rec.State == status.StateOperational {
			snap.Operational++
		}
		snap.Services = append(snap.Services, ss)
	}
	sort.Slice(snap.Services, func(i, j int) bool { return snap.Services[i].ID < snap.Services[j].ID })
	return snap
}

// Subscribe registers a snapshot channel for live status pushes. The channel
// receives best-effort: a slow consumer misses updates rather than blocking
// the monitor.
func (m *Monitor) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)

	m.subMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if _, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) publish(snap Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
