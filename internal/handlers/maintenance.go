package handlers

import (
	"net/http"
	"time"

	"github.com/satomon/sato/internal/api"
	"github.com/satomon/sato/internal/database"
)

// MaintenanceWindowView is a stored window plus its computed activity
type MaintenanceWindowView struct {
	database.MaintenanceWindow
	Active bool `json:"active"`
}

// MaintenanceToggleRequest scopes a manual toggle. An empty scope covers the
// whole fleet.
type MaintenanceToggleRequest struct {
	Scope []string `json:"scope,omitempty"`
}

// MaintenanceToggleResponse reports the resulting state
type MaintenanceToggleResponse struct {
	Enabled bool                        `json:"enabled"`
	Window  *database.MaintenanceWindow `json:"window"`
}

// MaintenanceScheduleRequest describes a future fixed-duration window
type MaintenanceScheduleRequest struct {
	StartsAt time.Time `json:"starts_at"`
	Duration string    `json:"duration"` // Go duration string, e.g. "30m"
	Scope    []string  `json:"scope,omitempty"`
}

// handleListMaintenance serves GET /api/maintenance
func (h *APIHandler) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	now := time.Now()
	windows := h.maint.Windows()
	views := make([]MaintenanceWindowView, 0, len(windows))
	for _, win := range windows {
		views = append(views, MaintenanceWindowView{
			MaintenanceWindow: win,
			Active:            win.ActiveAt(now),
		})
	}
	api.RespondJSON(w, http.StatusOK, views)
}

// handleMaintenanceToggle flips manual maintenance for a scope
func (h *APIHandler) handleMaintenanceToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req := MaintenanceToggleRequest{}
	if r.ContentLength > 0 {
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	window, enabled, err := h.maint.ToggleNow(req.Scope, actor(r), time.Now())
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to toggle maintenance")
		return
	}
	api.RespondJSON(w, http.StatusOK, MaintenanceToggleResponse{Enabled: enabled, Window: window})
}

// handleMaintenanceSchedule records a future window
func (h *APIHandler) handleMaintenanceSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req MaintenanceScheduleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	fieldErrors := make(map[string]string)
	if req.StartsAt.IsZero() {
		fieldErrors["starts_at"] = "is required (RFC 3339 timestamp)"
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		fieldErrors["duration"] = "must be a duration like \"30m\" or \"2h\""
	} else if duration <= 0 {
		fieldErrors["duration"] = "must be positive"
	}
	if len(fieldErrors) > 0 {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	window, err := h.maint.Schedule(req.StartsAt, duration, req.Scope, actor(r))
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to schedule maintenance")
		return
	}
	api.RespondJSON(w, http.StatusCreated, window)
}
