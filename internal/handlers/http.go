// Package handlers implements the operator HTTP API: fleet status, alert
// acknowledgment, maintenance control, and the live status stream.
package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satomon/sato/internal/api"
	"github.com/satomon/sato/internal/database"
	"github.com/satomon/sato/internal/maintenance"
	"github.com/satomon/sato/internal/middleware"
	"github.com/satomon/sato/internal/monitor"
)

// APIHandler serves the operator API
type APIHandler struct {
	monitor  *monitor.Monitor
	maint    *maintenance.Manager
	store    *database.Store
	auth     *middleware.JWTAuth
	upgrader websocket.Upgrader
}

// NewAPIHandler creates the operator API handler
func NewAPIHandler(m *monitor.Monitor, maint *maintenance.Manager, store *database.Store, auth *middleware.JWTAuth) *APIHandler {
	return &APIHandler{
		monitor: m,
		maint:   maint,
		store:   store,
		auth:    auth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // auth middleware already vetted the request
			},
		},
	}
}

// SetupRoutes configures all HTTP routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/auth/login", h.handleLogin)

	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/alerts", h.handleListAlerts)
	// Acknowledgment: POST /api/alerts/{uuid}/ack
	mux.HandleFunc("/api/alerts/", h.handleAlertAction)
	mux.HandleFunc("/api/maintenance", h.handleListMaintenance)
	mux.HandleFunc("/api/maintenance/toggle", h.handleMaintenanceToggle)
	mux.HandleFunc("/api/maintenance/schedule", h.handleMaintenanceSchedule)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/ws/status", h.handleStatusStream)
}

// handleHealth returns a simple health check response
func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor resolves who performed an operator action
func actor(r *http.Request) string {
	if user := middleware.GetUserFromContext(r.Context()); user != "" {
		return user
	}
	return "anonymous"
}
