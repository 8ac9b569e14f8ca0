package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/regsync/internal/audit"
	"github.com/nerrad567/regsync/internal/engine"
	"github.com/nerrad567/regsync/internal/infrastructure/config"
	"github.com/nerrad567/regsync/internal/infrastructure/database"
	"github.com/nerrad567/regsync/internal/infrastructure/logging"
	"github.com/nerrad567/regsync/internal/link"
	"github.com/nerrad567/regsync/internal/mirror"
	"github.com/nerrad567/regsync/internal/preset"
	"github.com/nerrad567/regsync/internal/register"
	_ "github.com/nerrad567/regsync/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testEnv is a Server over simulated Primary and Secondary devices and an
// in-memory database.
type testEnv struct {
	srv       *Server
	router    http.Handler
	engine    *engine.Engine
	primary   *link.Simulated
	secondary *link.Simulated
	mirror    *mirror.Coordinator
	audit     *audit.SQLiteRepository
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// newTestEnv builds a server; mutate may adjust Deps before New.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	db := openTestDB(t)
	catalog, err := register.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}

	primary := link.NewSimulated(nil)
	secondary := link.NewSimulated(nil)
	coord := mirror.New(secondary, register.NewStore(), mirror.Config{})
	eng := engine.New(primary, register.NewStore(), coord, catalog, engine.Config{})
	auditRepo := audit.NewSQLiteRepository(db.DB)

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Logger:  testLogger(),
		Engine:  eng,
		Presets: preset.NewManager(eng, preset.NewSQLiteRepository(db.DB)),
		Audit:   auditRepo,
		Site:    "cam-front",
		Role:    "primary",
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &testEnv{
		srv:       srv,
		router:    srv.buildRouter(),
		engine:    eng,
		primary:   primary,
		secondary: secondary,
		mirror:    coord,
		audit:     auditRepo,
	}
}

// do sends a request with an optional JSON body and bearer token.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// nextAudit returns the next queued audit entry.
func (e *testEnv) nextAudit(t *testing.T) *audit.AuditLog {
	t.Helper()
	select {
	case entry := <-e.srv.auditCh:
		return entry
	case <-time.After(time.Second):
		t.Fatal("no audit entry queued")
		return nil
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decodeBody[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" || resp["role"] != "primary" {
		t.Errorf("health = %v", resp)
	}
	sec, ok := resp["secondary"].(map[string]any)
	if !ok || sec["connected"] != false {
		t.Errorf("secondary = %v, want disconnected before first probe", resp["secondary"])
	}
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return context.DeadlineExceeded }

func TestHealth_DegradedCheck(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{"mqtt": failingCheck{}}
	})

	w := env.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when degraded", w.Code)
	}
	resp := decodeBody[map[string]any](t, w)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without engine: expected error")
	}

	env := newTestEnv(t, nil)
	_, err := New(Deps{
		Logger:   testLogger(),
		Engine:   env.engine,
		Presets:  env.srv.presets,
		Security: config.SecurityConfig{AuthEnabled: true, JWT: config.JWTConfig{Secret: testSecret}},
	})
	if err == nil {
		t.Error("New() with auth but no accounts: expected error")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://cam.local"}
	})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://cam.local", "http://cam.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/registers/single", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("%s: preflight status = %d, want 204", tt.origin, w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("%s: ACAO = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", w.Code)
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"name":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	w := env.do(t, http.MethodPost, "/api/v1/presets/save", body, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", w.Code)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
	hub.Register(client)
	return client
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return wsMsg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	env := newTestEnv(t, nil)
	subscribed := newTestClient(env.srv.hub, ChannelRegisterChanged)
	other := newTestClient(env.srv.hub, ChannelPresetApplied)

	env.srv.hub.Broadcast(ChannelRegisterChanged, map[string]any{"addr": "0x44"})

	if msg := receive(t, subscribed); msg.EventType != ChannelRegisterChanged {
		t.Errorf("event_type = %q, want %q", msg.EventType, ChannelRegisterChanged)
	}
	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	env := newTestEnv(t, nil)
	hub := env.srv.hub

	client := newTestClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_SubscribeUnknownChannel(t *testing.T) {
	env := newTestEnv(t, nil)
	client := newTestClient(env.srv.hub)

	client.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["device.state_changed"]}}`))

	if msg := receive(t, client); msg.Type != WSTypeError {
		t.Errorf("type = %q, want error", msg.Type)
	}
	if client.isSubscribed("device.state_changed") {
		t.Error("unknown channel was subscribed")
	}
}

func TestEvents_WriteBroadcastsChange(t *testing.T) {
	env := newTestEnv(t, nil)
	client := newTestClient(env.srv.hub, ChannelRegisterChanged)

	w := env.do(t, http.MethodPost, "/api/v1/registers/single", `{"bank":"dsp","addr":"0x44","value":"0x0C"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("write status = %d: %s", w.Code, w.Body.String())
	}

	msg := receive(t, client)
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", msg.Payload)
	}
	if payload["bank"] != "dsp" || payload["addr"] != "0x44" || payload["value"] != float64(0x0C) {
		t.Errorf("payload = %v", payload)
	}
}

func TestEvents_ConnectivityTransitionsOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	client := newTestClient(env.srv.hub, ChannelSyncConnectivity)
	ctx := context.Background()

	env.mirror.Probe(ctx)
	env.mirror.Probe(ctx)
	env.secondary.SetOffline(true)
	env.mirror.Probe(ctx)

	first := receive(t, client)
	second := receive(t, client)
	select {
	case <-client.send:
		t.Error("repeated probe result was broadcast")
	case <-time.After(100 * time.Millisecond):
	}

	up, _ := first.Payload.(map[string]any)   //nolint:errcheck // checked below
	down, _ := second.Payload.(map[string]any) //nolint:errcheck // checked below
	if up["connected"] != true || down["connected"] != false {
		t.Errorf("transitions = %v then %v", up, down)
	}

	probe := env.nextAudit(t)
	if probe.Action != audit.ActionProbe || probe.Source != audit.SourceMirror {
		t.Errorf("audit = %+v", probe)
	}
}
