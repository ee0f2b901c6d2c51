package handlers

import (
	"net/http"

	"rpsledger/internal/logger"
)

// SwitchResponse reports the state of the operational switch
type SwitchResponse struct {
	Paused bool `json:"paused"`
}

// HandlePause handles POST /api/admin/pause
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.handleSwitch(w, r, "admin_pause", h.admin.Pause)
}

// HandleResume handles POST /api/admin/resume
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.handleSwitch(w, r, "admin_resume", h.admin.Resume)
}

func (h *Handler) handleSwitch(w http.ResponseWriter, r *http.Request, action string, flip func(caller int64) error) {
	if !requireMethod(w, r, http.MethodPost, action) {
		return
	}
	userID, ok := requireUser(w, r, action)
	if !ok {
		return
	}

	if err := flip(userID); err != nil {
		respondWithEngineError(w, userID, action, err)
		return
	}

	writeJSON(w, http.StatusOK, SwitchResponse{Paused: h.admin.Paused()})
}

// HandleMetrics dumps the engine counters as JSON
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, "metrics") {
		return
	}
	userID, ok := requireUser(w, r, "metrics")
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := h.engine.Metrics().WriteJSON(w); err != nil {
		logger.Error(userID, "metrics_write", err)
	}
}
