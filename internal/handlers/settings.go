package handlers

import (
	"net/http"

	"github.com/satomon/sato/internal/api"
	"github.com/satomon/sato/internal/database"
)

// SettingsRequest carries operator-tunable switches. Pointers distinguish
// "leave unchanged" from explicit false.
type SettingsRequest struct {
	AutoRestartEnabled   *bool `json:"auto_restart_enabled,omitempty"`
	NotificationsEnabled *bool `json:"notifications_enabled,omitempty"`
}

// handleSettings serves GET and POST /api/settings
func (h *APIHandler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := database.GetOrCreateMonitorSettings(h.store.DB())
		if err != nil {
			api.RespondError(w, http.StatusInternalServerError, "Failed to load settings")
			return
		}
		api.RespondJSON(w, http.StatusOK, settings)

	case http.MethodPost:
		var req SettingsRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		settings, err := database.GetOrCreateMonitorSettings(h.store.DB())
		if err != nil {
			api.RespondError(w, http.StatusInternalServerError, "Failed to load settings")
			return
		}
		if req.AutoRestartEnabled != nil {
			settings.AutoRestartEnabled = *req.AutoRestartEnabled
		}
		if req.NotificationsEnabled != nil {
			settings.NotificationsEnabled = *req.NotificationsEnabled
		}
		if err := database.UpdateMonitorSettings(h.store.DB(), settings); err != nil {
			api.RespondError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		api.RespondJSON(w, http.StatusOK, settings)

	default:
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
