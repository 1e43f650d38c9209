package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/satomon/sato/internal/api"
)

// handleListAlerts serves GET /api/alerts. Open groups by default;
// ?include_archived=true adds history, ?limit=N caps the result.
func (h *APIHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	groups, err := h.store.ListAlertGroups(includeArchived, limit)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alert groups")
		return
	}
	api.RespondJSON(w, http.StatusOK, groups)
}

// handleAlertAction routes POST /api/alerts/{uuid}/ack
func (h *APIHandler) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "ack" {
		api.RespondError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	group, err := h.monitor.AcknowledgeAlert(parts[0], actor(r))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Alert group not found")
		return
	}
	api.RespondJSON(w, http.StatusOK, group)
}
