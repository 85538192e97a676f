package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

// SetStrikesRequest is the body of PUT /game/strikes.
type SetStrikesRequest struct {
	Strikes *int `json:"strikes"`
}

// SetTimeRequest is the body of PUT /game/time.
type SetTimeRequest struct {
	RemainingMs *int64 `json:"remaining_ms"`
}

// EdgeworkResponse is the body of GET /edgework.
type EdgeworkResponse struct {
	Serial   string        `json:"serial"`
	Edgework game.Edgework `json:"edgework"`
}

// BusResponse is the body of GET /bus.
type BusResponse struct {
	Available bool `json:"available"`
	Stats     any  `json:"stats,omitempty"`
}

func (s *Server) handleGetGame(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Snapshot())
}

// handleOp runs the parameterless command named by the last path segment.
func (s *Server) handleOp(w http.ResponseWriter, r *http.Request) {
	op, err := game.ParseOp(path.Base(r.URL.Path))
	if err != nil {
		writeNotFound(w, "unknown command")
		return
	}
	s.execute(w, r, game.Command{Op: op})
}

func (s *Server) handleSetStrikes(w http.ResponseWriter, r *http.Request) {
	var req SetStrikesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Strikes == nil {
		writeBadRequest(w, "strikes is required")
		return
	}
	s.execute(w, r, game.Command{Op: game.OpSetStrikes, Strikes: *req.Strikes})
}

func (s *Server) handleSetTime(w http.ResponseWriter, r *http.Request) {
	var req SetTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RemainingMs == nil || *req.RemainingMs < 0 || *req.RemainingMs > game.MaxRemainingMs {
		writeBadRequest(w, "remaining_ms must be a non-negative integer within range")
		return
	}
	s.execute(w, r, game.Command{
		Op:        game.OpSetTime,
		Remaining: time.Duration(*req.RemainingMs) * time.Millisecond,
	})
}

func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	snap := s.game.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"modules": snap.Modules,
		"counts":  snap.Counts,
	})
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	addr, err := protocol.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	rec, ok := s.game.Snapshot().Module(addr.String())
	if !ok {
		writeNotFound(w, "module not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSolveModule(w http.ResponseWriter, r *http.Request) {
	addr, err := protocol.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.execute(w, r, game.Command{Op: game.OpSolve, Module: addr})
}

func (s *Server) handleEdgework(w http.ResponseWriter, _ *http.Request) {
	snap := s.game.Snapshot()
	writeJSON(w, http.StatusOK, EdgeworkResponse{Serial: snap.Serial, Edgework: snap.Edgework})
}

func (s *Server) handleBus(w http.ResponseWriter, _ *http.Request) {
	if s.bus == nil {
		writeJSON(w, http.StatusOK, BusResponse{})
		return
	}
	writeJSON(w, http.StatusOK, BusResponse{Available: true, Stats: s.bus.Stats()})
}

// execute sends cmd to the game loop and responds with the resulting
// snapshot.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmd game.Command) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	err := s.game.Do(ctx, cmd)
	s.auditCommand(r, cmd, err)
	if err != nil {
		s.logger.Debug("game command rejected", "command", cmd.Op, "error", err)
		writeCommandError(w, err)
		return
	}
	s.logger.Info("game command", "command", cmd.Op, "request_id", r.Context().Value(ctxKeyRequestID))
	writeJSON(w, http.StatusOK, s.game.Snapshot())
}
