package handlers

import (
	"context"
	"net/http"

	"rpsledger/internal/storage"
)

// MeResponse is the response for GET /api/me
type MeResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Available int64  `json:"available"`
	Locked    int64  `json:"locked"`
	Total     int64  `json:"total"`
	ArenaID   string `json:"arena_id"`
	Paused    bool   `json:"paused"`
}

// HandleMe returns the caller's balances. An account that never held
// funds reports zero.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, "me") {
		return
	}
	userID, ok := requireUser(w, r, "me")
	if !ok {
		return
	}

	account, err := h.engine.Account(r.Context(), userID)
	if err != nil {
		respondWithEngineError(w, userID, "me", err)
		return
	}

	response := MeResponse{
		ID:      userID,
		ArenaID: h.engine.ArenaID(),
		Paused:  h.engine.Paused(),
	}
	if account != nil {
		response.Username = account.Username
		response.FirstName = account.FirstName
		response.Available = account.Available
		response.Locked = account.Locked
		response.Total = account.Total()
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleTransactions returns the caller's journal, newest first
func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, "transactions") {
		return
	}
	userID, ok := requireUser(w, r, "transactions")
	if !ok {
		return
	}

	limit, err := limitParam(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	journal, err := h.engine.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		respondWithEngineError(w, userID, "transactions", err)
		return
	}
	if journal == nil {
		journal = []storage.Transaction{}
	}

	writeJSON(w, http.StatusOK, journal)
}

// AmountRequest is the request body for deposits and withdrawals
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// BalanceResponse reports the events of a ledger operation and the resulting balances
type BalanceResponse struct {
	Events    []storage.Event `json:"events"`
	Available int64           `json:"available"`
	Locked    int64           `json:"locked"`
}

// HandleDeposit handles POST /api/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleFunds(w, r, "deposit", h.engine.Deposit)
}

// HandleWithdraw handles POST /api/withdraw
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleFunds(w, r, "withdraw", h.engine.Withdraw)
}

type fundsOp func(ctx context.Context, account, amount int64) ([]storage.Event, error)

func (h *Handler) handleFunds(w http.ResponseWriter, r *http.Request, action string, op fundsOp) {
	if !requireMethod(w, r, http.MethodPost, action) {
		return
	}
	userID, ok := requireUser(w, r, action)
	if !ok {
		return
	}

	var req AmountRequest
	if !decodeBody(w, r, userID, action, &req) {
		return
	}

	events, err := op(r.Context(), userID, req.Amount)
	if err != nil {
		respondWithEngineError(w, userID, action, err)
		return
	}

	h.respondWithBalance(w, r, userID, action, events, http.StatusOK)
}

func (h *Handler) respondWithBalance(w http.ResponseWriter, r *http.Request, userID int64, action string, events []storage.Event, statusCode int) {
	available, locked, err := h.engine.BalanceOf(r.Context(), userID)
	if err != nil {
		respondWithEngineError(w, userID, action, err)
		return
	}
	if events == nil {
		events = []storage.Event{}
	}
	writeJSON(w, statusCode, BalanceResponse{Events: events, Available: available, Locked: locked})
}
