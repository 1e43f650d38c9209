package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for JSON-encoded columns (jsonb on PostgreSQL,
// text on SQLite). Unknown fields survive round-trips untouched, which keeps
// persisted state forward compatible.
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a JSON-encoded []string column
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// TimeList is a JSON-encoded []time.Time column (RFC 3339 entries)
type TimeList []time.Time

// Scan implements the sql.Scanner interface
func (l *TimeList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l TimeList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]time.Time{})
	}
	return json.Marshal(l)
}

// Int64List is a JSON-encoded []int64 column (latency samples in ms)
type Int64List []int64

// Scan implements the sql.Scanner interface
func (l *Int64List) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]int64{})
	}
	return json.Marshal(l)
}

func toBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// ServiceState is the durable status record for one service: lifecycle
// state, incident counters, the restart failure window, and recent latency
// samples. One row per service.
type ServiceState struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ServiceID string `gorm:"uniqueIndex;size:255;not null" json:"service_id"`

	State                string     `gorm:"type:varchar(20);not null;default:'checking'" json:"state"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastTransition       *time.Time `json:"last_transition,omitempty"`
	LastDetail           string     `gorm:"type:text" json:"last_detail"`
	LatenciesMs          Int64List  `gorm:"type:jsonb" json:"latencies_ms"`

	// Open incident tracking
	IncidentUUID      string     `gorm:"size:36;index" json:"incident_uuid"`
	IncidentAttempts  int        `json:"incident_attempts"`
	IncidentEscalated bool       `gorm:"default:false" json:"incident_escalated"`
	LastRecoveredAt   *time.Time `json:"last_recovered_at,omitempty"`

	// Failure-rate governance
	RestartWindow    TimeList `gorm:"type:jsonb" json:"restart_window"`
	RateLimitAlerted bool     `gorm:"default:false" json:"rate_limit_alerted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ServiceState) TableName() string {
	return "service_states"
}

// AttemptOutcome classifies what happened to a scheduled restart attempt
type AttemptOutcome string

const (
	AttemptOutcomeSuccess            AttemptOutcome = "success"
	AttemptOutcomeFailure            AttemptOutcome = "failure"
	AttemptOutcomeSkippedRateLimited AttemptOutcome = "skipped-rate-limited"
	AttemptOutcomeSkippedMaintenance AttemptOutcome = "skipped-maintenance"
)

// RestartAttempt is one append-only remediation attempt record. The outcome
// reflects the command invocation, not the service's subsequent health.
type RestartAttempt struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ServiceID    string         `gorm:"size:255;not null;index" json:"service_id"`
	IncidentUUID string         `gorm:"size:36;index" json:"incident_uuid"`
	AttemptIndex int            `json:"attempt_index"`
	ScheduledAt  time.Time      `json:"scheduled_at"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	Outcome      AttemptOutcome `gorm:"type:varchar(30);not null" json:"outcome"`
	Detail       string         `gorm:"type:text" json:"detail"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (RestartAttempt) TableName() string {
	return "restart_attempts"
}

// AlertGroupStatus is the lifecycle of an alert group
type AlertGroupStatus string

const (
	AlertGroupStatusOpen     AlertGroupStatus = "open"
	AlertGroupStatusArchived AlertGroupStatus = "archived"
)

// AlertGroup is a deduplicated, acknowledgeable notification unit covering
// one root incident and its attributed dependents. Groups are archived on
// resolution, never deleted.
type AlertGroup struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	UUID          string           `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	RootServiceID string           `gorm:"size:255;not null;index" json:"root_service_id"`
	Members       StringList       `gorm:"type:jsonb" json:"members"`
	Status        AlertGroupStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Reason        string           `gorm:"type:text" json:"reason"`
	Escalated     bool             `gorm:"default:false" json:"escalated"`

	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	AckedBy   string     `gorm:"size:255" json:"acked_by"`
	AckedAt   *time.Time `json:"acked_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AlertGroup) TableName() string {
	return "alert_groups"
}

// Acknowledged reports whether an operator has acknowledged the group
func (g *AlertGroup) Acknowledged() bool {
	return g.AckedAt != nil
}

// HasMember reports whether a service is already in the member set
func (g *AlertGroup) HasMember(serviceID string) bool {
	for _, m := range g.Members {
		if m == serviceID {
			return true
		}
	}
	return false
}

// MaintenanceWindow scopes a span of deliberate remediation/alert
// suppression. Active state is always computed from the current time; the
// stored row is never the source of truth for "active".
type MaintenanceWindow struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Scope           StringList `gorm:"type:jsonb" json:"scope"` // empty = all services
	StartsAt        time.Time  `json:"starts_at"`
	DurationSeconds int64      `json:"duration_seconds"` // 0 = open-ended (manual toggle)
	Manual          bool       `gorm:"default:false" json:"manual"`
	EndedAt         *time.Time `json:"ended_at,omitempty"` // explicit early end
	CreatedBy       string     `gorm:"size:255" json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (MaintenanceWindow) TableName() string {
	return "maintenance_windows"
}

// ActiveAt computes whether the window is in effect at the given instant
func (w *MaintenanceWindow) ActiveAt(now time.Time) bool {
	if now.Before(w.StartsAt) {
		return false
	}
	if w.EndedAt != nil && !now.Before(*w.EndedAt) {
		return false
	}
	if w.DurationSeconds > 0 {
		expiry := w.StartsAt.Add(time.Duration(w.DurationSeconds) * time.Second)
		if !now.Before(expiry) {
			return false
		}
	}
	return true
}

// Covers reports whether the window's scope includes a service
func (w *MaintenanceWindow) Covers(serviceID string) bool {
	if len(w.Scope) == 0 {
		return true
	}
	for _, id := range w.Scope {
		if id == serviceID {
			return true
		}
	}
	return false
}

// MonitorSettings holds operator-tunable runtime switches (singleton row)
type MonitorSettings struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	AutoRestartEnabled   bool      `gorm:"default:true" json:"auto_restart_enabled"`
	NotificationsEnabled bool      `gorm:"default:true" json:"notifications_enabled"`
	SchemaVersion        int       `gorm:"default:1" json:"schema_version"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (MonitorSettings) TableName() string {
	return "monitor_settings"
}

// CurrentSchemaVersion marks the persisted state layout. Readers ignore
// fields they do not know, so bumps are additive.
const CurrentSchemaVersion = 1

// NewDefaultMonitorSettings returns settings with default values
func NewDefaultMonitorSettings() *MonitorSettings {
	return &MonitorSettings{
		AutoRestartEnabled:   true,
		NotificationsEnabled: true,
		SchemaVersion:        CurrentSchemaVersion,
	}
}
