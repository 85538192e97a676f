package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/defuse-core/internal/history"
)

// GameDetail is a recorded game with its events.
type GameDetail struct {
	*history.Game
	Events []history.Event `json:"events"`
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is disabled")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{Outcome: q.Get("outcome")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.history.ListGames(r.Context(), filter)
	if err != nil {
		s.logger.Error("list history failed", "error", err)
		writeInternalError(w, "failed to list games")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is disabled")
		return
	}
	id := chi.URLParam(r, "id")

	g, err := s.history.GetGame(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrGameNotFound) {
			writeNotFound(w, "game not found")
			return
		}
		writeInternalError(w, "failed to get game")
		return
	}
	events, err := s.history.Events(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to get game events")
		return
	}
	writeJSON(w, http.StatusOK, GameDetail{Game: g, Events: events})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
