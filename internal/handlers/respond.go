package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"rpsledger/internal/auth"
	"rpsledger/internal/logger"
	"rpsledger/internal/service"
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Message: message})
}

// statusFor maps an engine error to the HTTP status it is reported with
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInsufficientFunds), errors.Is(err, service.ErrInsufficientLocked):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, service.ErrRevealMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSystemPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrTransferFailed):
		return http.StatusBadGateway
	case service.IsInvalidInput(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondWithEngineError logs err and reports it with the matching status
func respondWithEngineError(w http.ResponseWriter, userID int64, action string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(userID, action, err)
		respondWithError(w, "Internal server error", status)
		return
	}
	logger.Debug(userID, action+"_rejected", fmt.Sprintf("status=%d error=%v", status, err))
	respondWithError(w, err.Error(), status)
}

// requireUser reads the authenticated account, answering 401 when it is missing
func requireUser(w http.ResponseWriter, r *http.Request, action string) (int64, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userID == 0 {
		logger.Debug(0, action+"_unauthorized", "path="+r.URL.Path)
		respondWithError(w, "Unauthorized: user not in context", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// requireMethod answers 405 unless r uses method
func requireMethod(w http.ResponseWriter, r *http.Request, method, action string) bool {
	if r.Method != method {
		logger.Debug(0, action+"_invalid_method", "path="+r.URL.Path+" method="+r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// bodyError marks a request body that could not be decoded
type bodyError struct {
	err error
}

func (e bodyError) Error() string {
	return "error=" + e.err.Error()
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyError{err: err}
	}
	return nil
}

// decodeBody decodes the JSON request body into v, answering 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, userID int64, action string, v interface{}) bool {
	if err := decodeJSON(r, v); err != nil {
		logger.Debug(userID, action+"_invalid_body", err.Error())
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// limitParam reads the optional ?limit= query parameter
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

// gameIDParam reads the {id} path segment
func gameIDParam(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid game id %q", raw)
	}
	return id, nil
}
