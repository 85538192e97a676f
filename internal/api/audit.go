package api

import (
	"context"
	"net/http"

	"github.com/nerrad567/defuse-core/internal/audit"
	"github.com/nerrad567/defuse-core/internal/game"
)

// auditChanSize is the buffer size for the async audit channel. Entries
// beyond this are dropped.
const auditChanSize = 256

// auditCommand enqueues an audit entry for cmd. Best-effort: a full
// channel drops the entry with a warning.
func (s *Server) auditCommand(r *http.Request, cmd game.Command, err error) {
	if s.auditRepo == nil || s.auditCh == nil {
		return
	}

	entry := &audit.Entry{
		Command: string(cmd.Op),
		Source:  audit.SourceAPI,
		Result:  audit.ResultOK,
		Details: map[string]any{},
	}
	switch cmd.Op {
	case game.OpSolve:
		entry.Target = cmd.Module.String()
	case game.OpSetStrikes:
		entry.Details["strikes"] = cmd.Strikes
	case game.OpSetTime:
		entry.Details["remaining_ms"] = cmd.Remaining.Milliseconds()
	}
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		entry.Details["request_id"] = id
	}
	if sub := operatorFrom(r.Context()); sub != "" {
		entry.Details["operator"] = sub
	}
	if err != nil {
		_, entry.Result, _ = commandError(err)
		entry.Details["error"] = err.Error()
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit channel full, dropping entry", "command", cmd.Op)
	}
}

// drainAudit writes queued entries serially until ctx is cancelled, then
// flushes whatever is left.
func (s *Server) drainAudit(ctx context.Context) {
	write := func(entry *audit.Entry) {
		if err := s.auditRepo.Create(context.Background(), entry); err != nil {
			s.logger.Error("audit write failed", "command", entry.Command, "error", err)
		}
	}
	for {
		select {
		case entry := <-s.auditCh:
			write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					write(entry)
				default:
					return
				}
			}
		}
	}
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters:
//   - command: filter by command name
//   - source: api or mqtt
//   - target: module address, e.g. 0x201
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Command: q.Get("command"),
		Source:  q.Get("source"),
		Target:  q.Get("target"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list audit failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
