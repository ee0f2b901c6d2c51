package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"rpsledger/internal/hand"
	"rpsledger/internal/logger"
	"rpsledger/internal/storage"
)

// CommitRequest is the request body for POST /api/commit
type CommitRequest struct {
	Hand   string `json:"hand"`
	Secret string `json:"secret"`
}

// CommitResponse carries a commitment bound to the caller and the arena
type CommitResponse struct {
	Commitment hand.Commitment `json:"commitment"`
}

// CreateGameRequest is the request body for POST /api/games
type CreateGameRequest struct {
	Opponent          int64           `json:"opponent"`
	Bet               int64           `json:"bet"`
	FreeBetSeconds    int64           `json:"free_bet_seconds"`
	ExpirationSeconds int64           `json:"expiration_seconds"`
	Commitment        hand.Commitment `json:"commitment"`
}

// AcceptRequest is the request body for POST /api/games/{id}/accept
type AcceptRequest struct {
	Commitment hand.Commitment `json:"commitment"`
}

// RevealRequest is the request body for POST /api/games/{id}/reveal
type RevealRequest struct {
	Secret string `json:"secret"`
}

// GameResponse is a game together with the events the last operation produced
type GameResponse struct {
	Game   *storage.Game   `json:"game"`
	Events []storage.Event `json:"events,omitempty"`
}

// HandleCommit computes a commitment for the caller. The hand and secret
// travel to the server, so clients that don't trust it commit locally.
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost, "commit") {
		return
	}
	userID, ok := requireUser(w, r, "commit")
	if !ok {
		return
	}

	var req CommitRequest
	if !decodeBody(w, r, userID, "commit", &req) {
		return
	}

	played, err := hand.ParseHand(req.Hand)
	if err != nil {
		respondWithEngineError(w, userID, "commit", err)
		return
	}

	c, err := h.engine.CommitHand(played, []byte(req.Secret), userID)
	if err != nil {
		respondWithEngineError(w, userID, "commit", err)
		return
	}

	writeJSON(w, http.StatusOK, CommitResponse{Commitment: c})
}

// HandleGames routes between GET and POST for /api/games
func (h *Handler) HandleGames(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateGame(w, r)
	case http.MethodGet:
		h.handleListGames(w, r)
	default:
		logger.Debug(0, "games_invalid_method", "path="+r.URL.Path+" method="+r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateGame handles POST /api/games
func (h *Handler) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "games_create")
	if !ok {
		return
	}

	var req CreateGameRequest
	if !decodeBody(w, r, userID, "games_create", &req) {
		return
	}

	gameID, events, err := h.engine.CreateGame(r.Context(), userID, req.Opponent, req.Bet,
		req.FreeBetSeconds, req.ExpirationSeconds, req.Commitment)
	if err != nil {
		respondWithEngineError(w, userID, "games_create", err)
		return
	}

	logger.Debug(userID, "games_created", fmt.Sprintf("game_id=%d opponent=%d bet=%d", gameID, req.Opponent, req.Bet))
	h.respondWithGame(w, r, userID, "games_create", gameID, events, http.StatusCreated)
}

// handleListGames handles GET /api/games
func (h *Handler) handleListGames(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "games_list")
	if !ok {
		return
	}

	limit, err := limitParam(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	games, err := h.engine.ListGames(r.Context(), userID, limit)
	if err != nil {
		respondWithEngineError(w, userID, "games_list", err)
		return
	}
	if games == nil {
		games = []*storage.Game{}
	}

	writeJSON(w, http.StatusOK, games)
}

// HandleGame handles GET /api/games/{id}
func (h *Handler) HandleGame(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, "game") {
		return
	}
	userID, ok := requireUser(w, r, "game")
	if !ok {
		return
	}
	gameID, err := gameIDParam(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondWithGame(w, r, userID, "game", gameID, nil, http.StatusOK)
}

// HandleGameEvents handles GET /api/games/{id}/events
func (h *Handler) HandleGameEvents(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, "game_events") {
		return
	}
	userID, ok := requireUser(w, r, "game_events")
	if !ok {
		return
	}
	gameID, err := gameIDParam(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.engine.ListEvents(r.Context(), gameID)
	if err != nil {
		respondWithEngineError(w, userID, "game_events", err)
		return
	}
	if events == nil {
		events = []storage.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// HandleAccept handles POST /api/games/{id}/accept
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	h.handleGameAction(w, r, "game_accept", func(ctx context.Context, userID, gameID int64) ([]storage.Event, error) {
		var req AcceptRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return h.engine.ChallengeAccept(ctx, gameID, userID, req.Commitment)
	})
}

// HandleReveal handles POST /api/games/{id}/reveal
func (h *Handler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	h.handleGameAction(w, r, "game_reveal", func(ctx context.Context, userID, gameID int64) ([]storage.Event, error) {
		var req RevealRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return h.engine.ShowHand(ctx, gameID, userID, []byte(req.Secret))
	})
}

// HandleAward handles POST /api/games/{id}/award
func (h *Handler) HandleAward(w http.ResponseWriter, r *http.Request) {
	h.handleGameAction(w, r, "game_award", func(ctx context.Context, userID, gameID int64) ([]storage.Event, error) {
		return h.engine.GameAward(ctx, gameID, userID)
	})
}

// HandleStop handles POST /api/games/{id}/stop
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.handleGameAction(w, r, "game_stop", func(ctx context.Context, userID, gameID int64) ([]storage.Event, error) {
		return h.engine.StopGame(ctx, gameID, userID)
	})
}

type gameAction func(ctx context.Context, userID, gameID int64) ([]storage.Event, error)

func (h *Handler) handleGameAction(w http.ResponseWriter, r *http.Request, action string, op gameAction) {
	if !requireMethod(w, r, http.MethodPost, action) {
		return
	}
	userID, ok := requireUser(w, r, action)
	if !ok {
		return
	}
	gameID, err := gameIDParam(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := op(r.Context(), userID, gameID)
	if err != nil {
		var bad bodyError
		if errors.As(err, &bad) {
			logger.Debug(userID, action+"_invalid_body", err.Error())
			respondWithError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		respondWithEngineError(w, userID, action, err)
		return
	}

	h.respondWithGame(w, r, userID, action, gameID, events, http.StatusOK)
}

func (h *Handler) respondWithGame(w http.ResponseWriter, r *http.Request, userID int64, action string, gameID int64, events []storage.Event, statusCode int) {
	g, err := h.engine.GetGame(r.Context(), gameID)
	if err != nil {
		respondWithEngineError(w, userID, action, err)
		return
	}
	writeJSON(w, statusCode, GameResponse{Game: g, Events: events})
}
