package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/defuse-core/internal/audit"
	"github.com/nerrad567/defuse-core/internal/game"
)

// mockAudit is an in-memory audit.Repository.
type mockAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	filter  audit.Filter
}

func (a *mockAudit) Create(_ context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

func (a *mockAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter = filter
	return &audit.ListResult{Entries: append([]audit.Entry{}, a.entries...), Total: len(a.entries), Limit: filter.Limit}, nil
}

func (a *mockAudit) waitFor(t *testing.T, n int) []audit.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		if len(a.entries) >= n {
			out := append([]audit.Entry(nil), a.entries...)
			a.mu.Unlock()
			return out
		}
		a.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d audit entries", n)
	return nil
}

func TestAudit_RecordsCommands(t *testing.T) {
	repo := &mockAudit{}
	srv, g := testServer(t, Deps{Audit: repo})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.drainAudit(ctx)

	if w := do(t, srv, http.MethodPost, "/api/v1/game/start", ""); w.Code != http.StatusOK {
		t.Fatalf("start status = %d", w.Code)
	}
	if w := do(t, srv, http.MethodPut, "/api/v1/game/strikes", `{"strikes": 2}`); w.Code != http.StatusOK {
		t.Fatalf("set strikes status = %d", w.Code)
	}
	g.mu.Lock()
	g.err = game.ErrGameOver
	g.mu.Unlock()
	if w := do(t, srv, http.MethodPost, "/api/v1/modules/0x201/solve", ""); w.Code != http.StatusConflict {
		t.Fatalf("solve status = %d", w.Code)
	}

	entries := repo.waitFor(t, 3)
	tests := []struct {
		command, target, result string
	}{
		{"start", "", audit.ResultOK},
		{"set_strikes", "", audit.ResultOK},
		{"solve", "0x201", ErrCodeGameOver},
	}
	for i, tt := range tests {
		e := entries[i]
		if e.Command != tt.command || e.Target != tt.target || e.Result != tt.result || e.Source != audit.SourceAPI {
			t.Errorf("entry %d = %+v, want %s/%s/%s", i, e, tt.command, tt.target, tt.result)
		}
		if _, ok := e.Details["request_id"]; !ok {
			t.Errorf("entry %d missing request_id", i)
		}
	}
	if got := entries[1].Details["strikes"]; got != 2 {
		t.Errorf("strikes detail = %v, want 2", got)
	}
}

func TestAudit_NotConfigured(t *testing.T) {
	srv, _ := testServer(t, Deps{})
	if w := do(t, srv, http.MethodPost, "/api/v1/game/start", ""); w.Code != http.StatusOK {
		t.Errorf("start without audit status = %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/v1/audit", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("audit list status = %d, want 503", w.Code)
	}
}

func TestAudit_List(t *testing.T) {
	repo := &mockAudit{entries: []audit.Entry{{ID: "cmd-1", Command: "start", Source: audit.SourceAPI, Result: audit.ResultOK}}}
	srv, _ := testServer(t, Deps{Audit: repo})

	w := do(t, srv, http.MethodGet, "/api/v1/audit?command=start&source=api&target=0x201&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if repo.filter.Command != "start" || repo.filter.Source != "api" || repo.filter.Target != "0x201" || repo.filter.Limit != 5 {
		t.Errorf("filter = %+v", repo.filter)
	}
	if !strings.Contains(w.Body.String(), `"cmd-1"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/audit?offset=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative offset status = %d, want 400", w.Code)
	}
}

func TestPanel_ServedAtRoot(t *testing.T) {
	panel := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("console")) //nolint:errcheck // test handler
	})
	srv, _ := testServer(t, Deps{Panel: panel})

	if w := do(t, srv, http.MethodGet, "/", ""); w.Code != http.StatusOK || w.Body.String() != "console" {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
	if w := do(t, srv, http.MethodGet, "/api/v1/health", ""); strings.Contains(w.Body.String(), "console") {
		t.Error("API route served by the panel")
	}
}
