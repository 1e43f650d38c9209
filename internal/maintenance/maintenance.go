package maintenance

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/satomon/sato/internal/database"
)

// ErrNoActiveWindow is returned when a toggle-off finds nothing to end.
var ErrNoActiveWindow = errors.New("no active maintenance window")

// Manager answers "is this service under maintenance right now". Windows are
// stored rows; activity is always computed from the clock so a restart of the
// daemon cannot leave a stale "active" flag behind.
type Manager struct {
	store *database.Store

	mu     sync.RWMutex
	cached []database.MaintenanceWindow
}

// NewManager loads existing windows from the store
func NewManager(store *database.Store) (*Manager, error) {
	m := &Manager{store: store}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) reload() error {
	windows, err := m.store.GetMaintenanceWindows()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cached = windows
	m.mu.Unlock()
	return nil
}

// Active reports whether any window covers the service at the given instant
func (m *Manager) Active(serviceID string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.cached {
		w := &m.cached[i]
		if w.ActiveAt(now) && w.Covers(serviceID) {
			return true
		}
	}
	return false
}

// AnyActive reports whether any window is in effect at all
func (m *Manager) AnyActive(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.cached {
		if m.cached[i].ActiveAt(now) {
			return true
		}
	}
	return false
}

// Windows returns a snapshot of all stored windows, oldest first
func (m *Manager) Windows() []database.MaintenanceWindow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.MaintenanceWindow, len(m.cached))
	copy(out, m.cached)
	return out
}

// ToggleNow flips manual maintenance for a scope. If a manual window covering
// the scope is active it is ended; otherwise a new open-ended manual window
// starts. Returns the resulting window and whether maintenance is now on.
func (m *Manager) ToggleNow(scope []string, actor string, now time.Time) (*database.MaintenanceWindow, bool, error) {
	if active := m.activeManual(scope, now); active != nil {
		ended := now
		active.EndedAt = &ended
		if err := m.store.SaveMaintenanceWindow(active); err != nil {
			return nil, false, err
		}
		log.Printf("Maintenance ended by %s (window %d)", actor, active.ID)
		if err := m.reload(); err != nil {
			return nil, false, err
		}
		return active, false, nil
	}

	w := &database.MaintenanceWindow{
		Scope:     database.StringList(scope),
		StartsAt:  now,
		Manual:    true,
		CreatedBy: actor,
	}
	if err := m.store.CreateMaintenanceWindow(w); err != nil {
		return nil, false, err
	}
	log.Printf("Maintenance started by %s (window %d, scope %v)", actor, w.ID, scope)
	if err := m.reload(); err != nil {
		return nil, false, err
	}
	return w, true, nil
}

// EndNow explicitly ends the active manual window for a scope
func (m *Manager) EndNow(scope []string, actor string, now time.Time) (*database.MaintenanceWindow, error) {
	active := m.activeManual(scope, now)
	if active == nil {
		return nil, ErrNoActiveWindow
	}
	ended := now
	active.EndedAt = &ended
	if err := m.store.SaveMaintenanceWindow(active); err != nil {
		return nil, err
	}
	log.Printf("Maintenance ended by %s (window %d)", actor, active.ID)
	if err := m.reload(); err != nil {
		return nil, err
	}
	return active, nil
}

// Schedule records a future or immediate fixed-duration window
func (m *Manager) Schedule(start time.Time, duration time.Duration, scope []string, actor string) (*database.MaintenanceWindow, error) {
	if duration <= 0 {
		return nil, errors.New("maintenance duration must be positive")
	}
	w := &database.MaintenanceWindow{
		Scope:           database.StringList(scope),
		StartsAt:        start,
		DurationSeconds: int64(duration / time.Second),
		CreatedBy:       actor,
	}
	if err := m.store.CreateMaintenanceWindow(w); err != nil {
		return nil, err
	}
	log.Printf("Maintenance scheduled by %s: %s for %s (scope %v)", actor, start.Format(time.RFC3339), duration, scope)
	if err := m.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// activeManual finds the active manual window matching a scope. Scope match
// is exact: a toggle for ["db"] does not end a fleet-wide toggle.
func (m *Manager) activeManual(scope []string, now time.Time) *database.MaintenanceWindow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.cached {
		w := &m.cached[i]
		if w.Manual && w.ActiveAt(now) && sameScope(w.Scope, scope) {
			return w
		}
	}
	return nil
}

func sameScope(a database.StringList, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}
