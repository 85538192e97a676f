package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/registry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeInternal          = "internal_error"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeGameOver          = "game_over"
	ErrCodeUnavailable       = "unavailable"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeForbidden         = "forbidden"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// commandError maps an error from the game loop to a status, code and
// message.
func commandError(err error) (int, string, string) {
	switch {
	case errors.Is(err, game.ErrInvalidTransition):
		return http.StatusConflict, ErrCodeInvalidTransition, err.Error()
	case errors.Is(err, game.ErrGameOver):
		return http.StatusConflict, ErrCodeGameOver, err.Error()
	case errors.Is(err, registry.ErrModuleNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "module not found"
	case errors.Is(err, registry.ErrInvalidModule), errors.Is(err, game.ErrUnknownCommand):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, game.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, "game loop unavailable"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "command failed"
	}
}

func writeCommandError(w http.ResponseWriter, err error) {
	status, code, message := commandError(err)
	writeError(w, status, code, message)
}
