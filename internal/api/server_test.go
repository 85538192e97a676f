package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/history"
	"github.com/nerrad567/defuse-core/internal/infrastructure/config"
	"github.com/nerrad567/defuse-core/internal/infrastructure/logging"
	"github.com/nerrad567/defuse-core/internal/protocol"
	"github.com/nerrad567/defuse-core/internal/registry"
)

// mockGame records commands and serves a settable snapshot.
type mockGame struct {
	mu   sync.Mutex
	snap game.Snapshot
	cmds []game.Command
	err  error
}

func (g *mockGame) Do(_ context.Context, cmd game.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cmds = append(g.cmds, cmd)
	if g.err != nil {
		return g.err
	}
	g.snap.Seq++
	return nil
}

func (g *mockGame) Snapshot() game.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

func (g *mockGame) setSeq(seq uint64) {
	g.mu.Lock()
	g.snap.Seq = seq
	g.mu.Unlock()
}

func (g *mockGame) commands() []game.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]game.Command(nil), g.cmds...)
}

type mockBus struct{ stats bus.Stats }

func (b mockBus) Stats() bus.Stats { return b.stats }

type mockStatus bool

func (s mockStatus) IsConnected() bool { return bool(s) }

// mockHistory is a read-only history.Repository.
type mockHistory struct {
	history.Repository
	games  map[string]*history.Game
	events map[string][]history.Event
	filter history.Filter
	err    error
}

func (h *mockHistory) GetGame(_ context.Context, id string) (*history.Game, error) {
	if h.err != nil {
		return nil, h.err
	}
	g, ok := h.games[id]
	if !ok {
		return nil, history.ErrGameNotFound
	}
	return g, nil
}

func (h *mockHistory) ListGames(_ context.Context, filter history.Filter) (*history.ListResult, error) {
	h.filter = filter
	if h.err != nil {
		return nil, h.err
	}
	result := &history.ListResult{Limit: filter.Limit, Offset: filter.Offset}
	for _, g := range h.games {
		result.Games = append(result.Games, *g)
	}
	result.Total = len(result.Games)
	return result, nil
}

func (h *mockHistory) Events(_ context.Context, id string) ([]history.Event, error) {
	return h.events[id], nil
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot() game.Snapshot {
	return game.Snapshot{
		Seq:         1,
		State:       game.StateRunning,
		TimeLimitMs: 300000,
		RemainingMs: 240000,
		MaxStrikes:  3,
		Serial:      "AB3CD7",
		Counts:      registry.Counts{Total: 1, Online: 1, RegularTotal: 1},
		Modules: []registry.Record{
			{Address: protocol.Address(0x201), Type: protocol.TypeWires, Instance: 1, Online: true, InRoster: true},
		},
	}
}

func testServer(t *testing.T, deps Deps) (*Server, *mockGame) {
	t.Helper()

	g := &mockGame{snap: testSnapshot()}
	deps.Config = config.APIConfig{Host: "127.0.0.1", Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}}
	deps.WS = config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	deps.Logger = logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	deps.Game = g
	deps.Version = "test"
	deps.SnapshotInterval = 5 * time.Millisecond

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, g
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.Default()
	if _, err := New(Deps{Game: &mockGame{}}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without game succeeded")
	}
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, Deps{MQTT: mockStatus(true)})

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
	if resp["state"] != "running" {
		t.Errorf("state = %v, want running", resp["state"])
	}
	if resp["mqtt_connected"] != true {
		t.Errorf("mqtt_connected = %v, want true", resp["mqtt_connected"])
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"allow all", nil, "http://localhost:3000", "http://localhost:3000"},
		{"listed", []string{"http://panel.local"}, "http://panel.local", "http://panel.local"},
		{"wildcard", []string{"*"}, "http://x", "http://x"},
		{"not listed", []string{"http://panel.local"}, "http://evil", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, Deps{})
			srv.cfg.CORS.AllowedOrigins = tt.allowed

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/game", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("ACAO = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t, Deps{})
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, Deps{})
	if w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Game ──────────────────────────────────────────────────────────

func TestGetGame(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	w := do(t, srv, http.MethodGet, "/api/v1/game", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w)
	if resp["state"] != "running" || resp["serial"] != "AB3CD7" || resp["remaining_ms"] != float64(240000) {
		t.Errorf("game = %v", resp)
	}
}

func TestGameCommands(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		want   game.Command
	}{
		{http.MethodPost, "/api/v1/game/confirm", "", game.Command{Op: game.OpConfirm}},
		{http.MethodPost, "/api/v1/game/start", "", game.Command{Op: game.OpStart}},
		{http.MethodPost, "/api/v1/game/pause", "", game.Command{Op: game.OpPause}},
		{http.MethodPost, "/api/v1/game/resume", "", game.Command{Op: game.OpResume}},
		{http.MethodPost, "/api/v1/game/reset", "", game.Command{Op: game.OpReset}},
		{http.MethodPost, "/api/v1/game/strike", "", game.Command{Op: game.OpStrike}},
		{http.MethodPut, "/api/v1/game/strikes", `{"strikes":2}`, game.Command{Op: game.OpSetStrikes, Strikes: 2}},
		{http.MethodPut, "/api/v1/game/time", `{"remaining_ms":90000}`, game.Command{Op: game.OpSetTime, Remaining: 90 * time.Second}},
		{http.MethodPost, "/api/v1/modules/0x201/solve", "", game.Command{Op: game.OpSolve, Module: 0x201}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			srv, g := testServer(t, Deps{})

			w := do(t, srv, tt.method, tt.path, tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			cmds := g.commands()
			if len(cmds) != 1 || cmds[0] != tt.want {
				t.Errorf("commands = %+v, want %+v", cmds, tt.want)
			}
			// The response carries the snapshot after the command.
			if resp := decode(t, w); resp["seq"] != float64(2) {
				t.Errorf("seq = %v, want 2", resp["seq"])
			}
		})
	}
}

func TestGameCommands_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"strikes bad json", http.MethodPut, "/api/v1/game/strikes", `{"strikes":`},
		{"strikes missing", http.MethodPut, "/api/v1/game/strikes", `{}`},
		{"time negative", http.MethodPut, "/api/v1/game/time", `{"remaining_ms":-5}`},
		{"time missing", http.MethodPut, "/api/v1/game/time", `{}`},
		{"time overflows duration", http.MethodPut, "/api/v1/game/time", `{"remaining_ms":9300000000000}`},
		{"bad address", http.MethodPost, "/api/v1/modules/nope/solve", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, g := testServer(t, Deps{})
			w := do(t, srv, tt.method, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if resp := decode(t, w); resp["code"] != ErrCodeBadRequest {
				t.Errorf("code = %v", resp["code"])
			}
			if len(g.commands()) != 0 {
				t.Error("invalid request reached the game")
			}
		})
	}
}

func TestGameCommands_Errors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{game.ErrInvalidTransition, http.StatusConflict, ErrCodeInvalidTransition},
		{game.ErrGameOver, http.StatusConflict, ErrCodeGameOver},
		{registry.ErrModuleNotFound, http.StatusNotFound, ErrCodeNotFound},
		{registry.ErrInvalidModule, http.StatusBadRequest, ErrCodeBadRequest},
		{game.ErrStopped, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode+"/"+tt.err.Error(), func(t *testing.T) {
			srv, g := testServer(t, Deps{})
			g.err = tt.err

			w := do(t, srv, http.MethodPost, "/api/v1/modules/0x201/solve", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decode(t, w)
			if resp["code"] != tt.wantCode || resp["status"] != float64(tt.wantStatus) {
				t.Errorf("error body = %v", resp)
			}
		})
	}
}

// ─── Modules, edgework, bus ────────────────────────────────────────

func TestModules(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	w := do(t, srv, http.MethodGet, "/api/v1/modules", "")
	resp := decode(t, w)
	mods, ok := resp["modules"].([]any)
	if !ok || len(mods) != 1 {
		t.Fatalf("modules = %v", resp["modules"])
	}
	if mod := mods[0].(map[string]any); mod["address"] != "0x201" || mod["type"] != "WIRES" {
		t.Errorf("module = %v", mod)
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/modules/0x201", ""); w.Code != http.StatusOK {
		t.Errorf("get module status = %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/v1/modules/0x202", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing module status = %d, want 404", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/v1/modules/zz", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad address status = %d, want 400", w.Code)
	}
}

func TestEdgework(t *testing.T) {
	srv, _ := testServer(t, Deps{})
	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/edgework", ""))
	if resp["serial"] != "AB3CD7" {
		t.Errorf("serial = %v", resp["serial"])
	}
	if _, ok := resp["edgework"]; !ok {
		t.Error("edgework missing")
	}
}

func TestBus(t *testing.T) {
	srv, _ := testServer(t, Deps{})
	if resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/bus", "")); resp["available"] != false {
		t.Errorf("bus without port = %v", resp)
	}

	srv, _ = testServer(t, Deps{Bus: mockBus{stats: bus.Stats{Received: 7, Pending: 2}}})
	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/bus", ""))
	stats, ok := resp["stats"].(map[string]any)
	if !ok || stats["received"] != float64(7) || stats["pending"] != float64(2) {
		t.Errorf("bus = %v", resp)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t, Deps{Bus: mockBus{}, MQTT: mockStatus(false)})
	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/metrics", ""))

	for _, key := range []string{"runtime", "websocket", "game", "bus", "mqtt"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}
	if g := resp["game"].(map[string]any); g["state"] != "running" {
		t.Errorf("game metrics = %v", g)
	}
}

// ─── History ───────────────────────────────────────────────────────

func TestHistory_Disabled(t *testing.T) {
	srv, _ := testServer(t, Deps{})
	for _, path := range []string{"/api/v1/history", "/api/v1/history/g1"} {
		if w := do(t, srv, http.MethodGet, path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}

func TestHistory(t *testing.T) {
	ended := t0.Add(3 * time.Minute)
	repo := &mockHistory{
		games: map[string]*history.Game{
			"g1": {ID: "g1", Serial: "AB3CD7", StartedAt: t0, EndedAt: &ended, Outcome: "defused"},
		},
		events: map[string][]history.Event{
			"g1": {{ID: 1, GameID: "g1", At: t0, Kind: history.EventStart}},
		},
	}
	srv, _ := testServer(t, Deps{History: repo})

	w := do(t, srv, http.MethodGet, "/api/v1/history?outcome=defused&limit=10&offset=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if repo.filter != (history.Filter{Outcome: "defused", Limit: 10, Offset: 5}) {
		t.Errorf("filter = %+v", repo.filter)
	}
	if resp := decode(t, w); resp["total"] != float64(1) {
		t.Errorf("list = %v", resp)
	}

	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/history/g1", ""))
	if resp["id"] != "g1" || resp["outcome"] != "defused" {
		t.Errorf("game = %v", resp)
	}
	if events, ok := resp["events"].([]any); !ok || len(events) != 1 {
		t.Errorf("events = %v", resp["events"])
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/history/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing game status = %d, want 404", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/v1/history?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", w.Code)
	}

	repo.err = errors.New("disk full")
	if w := do(t, srv, http.MethodGet, "/api/v1/history", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("repo error status = %d, want 500", w.Code)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return msg
}

func snapshotSeq(t *testing.T, msg WSMessage) float64 {
	t.Helper()
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", msg.Payload)
	}
	return payload["seq"].(float64)
}

func TestWebSocket_SnapshotPush(t *testing.T) {
	srv, g := testServer(t, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)
	go srv.watchSnapshots(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	// Current snapshot on connect.
	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelSnapshot {
		t.Fatalf("first message = %+v", msg)
	}
	if snapshotSeq(t, msg) != 1 {
		t.Errorf("initial seq = %v", snapshotSeq(t, msg))
	}

	// Skip the watcher's first broadcast of seq 1, if any, and wait for 5.
	g.setSeq(5)
	for {
		msg = readWS(t, ws)
		if msg.EventType == ChannelSnapshot && snapshotSeq(t, msg) == 5 {
			break
		}
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg = readWS(t, ws); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.hub.ClientCount())
	}
}

func TestWSClient_Subscriptions(t *testing.T) {
	hub := NewHub(logging.Default())
	client := newWSClient(hub, nil)
	hub.Register(client)

	if !client.isSubscribed(ChannelSnapshot) {
		t.Fatal("new client not subscribed to snapshots")
	}

	client.handleMessage([]byte(`{"type":"unsubscribe","id":"u1","payload":{"channels":["game.snapshot"]}}`))
	if client.isSubscribed(ChannelSnapshot) {
		t.Error("still subscribed after unsubscribe")
	}
	reply := <-client.send
	if !strings.Contains(string(reply), `"unsubscribed"`) {
		t.Errorf("unsubscribe reply = %s", reply)
	}

	hub.Broadcast(ChannelSnapshot, map[string]int{"seq": 1})
	select {
	case msg := <-client.send:
		t.Errorf("unsubscribed client received %s", msg)
	default:
	}

	client.handleMessage([]byte(`not json`))
	if reply := <-client.send; !strings.Contains(string(reply), `"error"`) {
		t.Errorf("bad message reply = %s", reply)
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", hub.ClientCount())
	}
	// Sending to a closed client is absorbed.
	client.trySend([]byte("late"))
}
