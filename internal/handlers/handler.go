package handlers

import (
	"net/http"

	"rpsledger/internal/admin"
	"rpsledger/internal/service"
)

// Handler serves the WebApp JSON API over a game engine
type Handler struct {
	engine *service.GameEngine
	admin  *admin.Switch
}

// New creates a Handler
func New(engine *service.GameEngine, sw *admin.Switch) *Handler {
	return &Handler{engine: engine, admin: sw}
}

// Register adds every API route to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/ping", PingHandler)
	mux.HandleFunc("/api/me", h.HandleMe)
	mux.HandleFunc("/api/me/transactions", h.HandleTransactions)
	mux.HandleFunc("/api/deposit", h.HandleDeposit)
	mux.HandleFunc("/api/withdraw", h.HandleWithdraw)
	mux.HandleFunc("/api/commit", h.HandleCommit)
	mux.HandleFunc("/api/games", h.HandleGames)
	mux.HandleFunc("/api/games/{id}", h.HandleGame)
	mux.HandleFunc("/api/games/{id}/accept", h.HandleAccept)
	mux.HandleFunc("/api/games/{id}/reveal", h.HandleReveal)
	mux.HandleFunc("/api/games/{id}/award", h.HandleAward)
	mux.HandleFunc("/api/games/{id}/stop", h.HandleStop)
	mux.HandleFunc("/api/games/{id}/events", h.HandleGameEvents)
	mux.HandleFunc("/api/admin/pause", h.HandlePause)
	mux.HandleFunc("/api/admin/resume", h.HandleResume)
	mux.HandleFunc("/api/metrics", h.HandleMetrics)
}
