package handlers

import (
	"net/http"

	"github.com/satomon/sato/internal/api"
)

// LoginRequest is the login payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token
type LoginResponse struct {
	Token string `json:"token"`
}

// handleLogin exchanges admin credentials for a bearer token
func (h *APIHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !h.auth.Enabled() {
		api.RespondError(w, http.StatusNotFound, "Authentication is not configured")
		return
	}

	var req LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.auth.ValidateCredentials(req.Username, req.Password) {
		api.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.auth.GenerateToken(req.Username)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	api.RespondJSON(w, http.StatusOK, LoginResponse{Token: token})
}
