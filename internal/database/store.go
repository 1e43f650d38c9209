package database

import (
	"time"

	"gorm.io/gorm"
)

// Store is the persistence facade the monitor writes through. Callers are
// expected to serialize writes (the monitor holds its own mutex); the store
// does not assume lock-free concurrent writers.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a connected database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for settings access
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ========== Service state ==========

// SaveServiceState upserts the durable record for a service
func (s *Store) SaveServiceState(state *ServiceState) error {
	if state.ID == 0 {
		var existing ServiceState
		err := s.db.Where("service_id = ?", state.ServiceID).First(&existing).Error
		if err == nil {
			state.ID = existing.ID
			state.CreatedAt = existing.CreatedAt
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
	}
	return s.db.Save(state).Error
}

// GetServiceStates loads every persisted service record
func (s *Store) GetServiceStates() ([]ServiceState, error) {
	var states []ServiceState
	if err := s.db.Order("service_id asc").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// GetServiceState loads one service record
func (s *Store) GetServiceState(serviceID string) (*ServiceState, error) {
	var state ServiceState
	if err := s.db.Where("service_id = ?", serviceID).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// DeleteServiceState removes the record for a service dropped from inventory
func (s *Store) DeleteServiceState(serviceID string) error {
	return s.db.Where("service_id = ?", serviceID).Delete(&ServiceState{}).Error
}

// ========== Restart attempts ==========

// RecordRestartAttempt appends an attempt record
func (s *Store) RecordRestartAttempt(a *RestartAttempt) error {
	return s.db.Create(a).Error
}

// GetRestartAttempts returns the most recent attempts for a service
func (s *Store) GetRestartAttempts(serviceID string, limit int) ([]RestartAttempt, error) {
	var attempts []RestartAttempt
	q := s.db.Where("service_id = ?", serviceID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// GetIncidentAttempts returns every attempt of one incident, oldest first
func (s *Store) GetIncidentAttempts(incidentUUID string) ([]RestartAttempt, error) {
	var attempts []RestartAttempt
	if err := s.db.Where("incident_uuid = ?", incidentUUID).
		Order("id asc").Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// ========== Alert groups ==========

// SaveAlertGroup inserts or updates a group
func (s *Store) SaveAlertGroup(g *AlertGroup) error {
	return s.db.Save(g).Error
}

// GetAlertGroupByUUID loads one group
func (s *Store) GetAlertGroupByUUID(uuid string) (*AlertGroup, error) {
	var g AlertGroup
	if err := s.db.Where("uuid = ?", uuid).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// GetOpenAlertGroups returns all groups still open
func (s *Store) GetOpenAlertGroups() ([]AlertGroup, error) {
	var groups []AlertGroup
	if err := s.db.Where("status = ?", AlertGroupStatusOpen).
		Order("id asc").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// ListAlertGroups returns groups newest first, optionally including archived
func (s *Store) ListAlertGroups(includeArchived bool, limit int) ([]AlertGroup, error) {
	var groups []AlertGroup
	q := s.db.Order("id desc")
	if !includeArchived {
		q = q.Where("status = ?", AlertGroupStatusOpen)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// AcknowledgeAlertGroup marks a group acknowledged by an actor
func (s *Store) AcknowledgeAlertGroup(uuid, actor string, at time.Time) (*AlertGroup, error) {
	g, err := s.GetAlertGroupByUUID(uuid)
	if err != nil {
		return nil, err
	}
	g.AckedBy = actor
	g.AckedAt = &at
	if err := s.db.Save(g).Error; err != nil {
		return nil, err
	}
	return g, nil
}

// ========== Maintenance windows ==========

// CreateMaintenanceWindow stores a new window
func (s *Store) CreateMaintenanceWindow(w *MaintenanceWindow) error {
	return s.db.Create(w).Error
}

// SaveMaintenanceWindow persists window changes
func (s *Store) SaveMaintenanceWindow(w *MaintenanceWindow) error {
	return s.db.Save(w).Error
}

// GetMaintenanceWindows returns all stored windows, oldest first. Activity
// is computed by the caller from the current time; expired rows are kept as
// history.
func (s *Store) GetMaintenanceWindows() ([]MaintenanceWindow, error) {
	var windows []MaintenanceWindow
	if err := s.db.Order("id asc").Find(&windows).Error; err != nil {
		return nil, err
	}
	return windows, nil
}
