package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/regsync/internal/auth"
	"github.com/nerrad567/regsync/internal/infrastructure/config"
)

// newAuthEnv enables auth with one account per role; every password is
// the role name.
func newAuthEnv(t *testing.T) *testEnv {
	t.Helper()
	var cfgs []config.AccountConfig
	for _, role := range auth.ValidRoles {
		hash, err := auth.HashPassword(string(role))
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		cfgs = append(cfgs, config.AccountConfig{Username: string(role), PasswordHash: hash, Role: string(role)})
	}
	accounts, err := auth.NewAccounts(cfgs)
	if err != nil {
		t.Fatalf("NewAccounts() error = %v", err)
	}
	return newTestEnv(t, func(d *Deps) {
		d.Security.AuthEnabled = true
		d.Accounts = accounts
	})
}

func login(t *testing.T, env *testEnv, username, password string) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": username, "password": password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login %s status = %d: %s", username, w.Code, w.Body.String())
	}
	resp := decodeBody[loginResponse](t, w)
	if resp.TokenType != "Bearer" || resp.AccessToken == "" || resp.ExpiresIn != 15*60 {
		t.Fatalf("login response = %+v", resp)
	}
	return resp.AccessToken
}

func TestLogin(t *testing.T) {
	env := newAuthEnv(t)
	login(t, env, "operator", "operator")

	w := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"operator","password":"admin"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"nobody","password":"x"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", w.Code)
	}
}

func TestLogin_DisabledAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"a","password":"b"}`, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 with auth disabled", w.Code)
	}
}

func TestAuth_RequiresBearer(t *testing.T) {
	env := newAuthEnv(t)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/registers/single?bank=0&addr=0x10", nil, tt.token)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}

	// Health stays public so peers can probe.
	if w := env.do(t, http.MethodGet, "/api/v1/health", nil, ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	env := newAuthEnv(t)
	account, _ := env.srv.accounts.Lookup("admin")
	token, err := auth.GenerateAccessToken(account, testSecret, time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	w := env.do(t, http.MethodGet, "/api/v1/sync/status", nil, token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_RolePermissions(t *testing.T) {
	env := newAuthEnv(t)
	tokens := map[string]string{}
	for _, role := range auth.ValidRoles {
		tokens[string(role)] = login(t, env, string(role), string(role))
	}

	write := `{"bank":0,"addr":"0x10","value":1}`
	tests := []struct {
		role   string
		method string
		path   string
		body   any
		want   int
	}{
		{"viewer", http.MethodGet, "/api/v1/registers/single?bank=0&addr=0x10", nil, http.StatusOK},
		{"viewer", http.MethodPost, "/api/v1/registers/single", write, http.StatusForbidden},
		{"viewer", http.MethodPost, "/api/registers/single", write, http.StatusForbidden},
		{"operator", http.MethodPost, "/api/v1/registers/single", write, http.StatusOK},
		{"operator", http.MethodPost, "/api/v1/presets/save", `{"name":"x"}`, http.StatusForbidden},
		{"operator", http.MethodPost, "/api/v1/registers/reset", nil, http.StatusForbidden},
		{"operator", http.MethodPost, "/api/v1/sync/probe", nil, http.StatusForbidden},
		{"admin", http.MethodPost, "/api/v1/registers/reset", nil, http.StatusOK},
		{"admin", http.MethodPost, "/api/v1/sync/probe", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.method+" "+tt.path, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, tokens[tt.role])
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuth_AuditUser(t *testing.T) {
	env := newAuthEnv(t)
	token := login(t, env, "operator", "operator")

	w := env.do(t, http.MethodPost, "/api/v1/registers/single", `{"bank":0,"addr":"0x10","value":1}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if entry := env.nextAudit(t); entry.UserID != "operator" {
		t.Errorf("audit user = %q, want operator", entry.UserID)
	}
}

// ─── WebSocket Ticket Tests ────────────────────────────────────────

func TestWSTicket_SingleUse(t *testing.T) {
	env := newAuthEnv(t)
	token := login(t, env, "viewer", "viewer")

	w := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[map[string]any](t, w)
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, ok := env.srv.validateTicket(ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.username != "viewer" || entry.role != auth.RoleViewer {
		t.Errorf("ticket identity = %+v", entry)
	}
	if _, ok := env.srv.validateTicket(ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ticket := generateTicket()
	env.srv.tickets.mu.Lock()
	env.srv.tickets.tickets[ticket] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	env.srv.tickets.mu.Unlock()

	if _, ok := env.srv.validateTicket(ticket); ok {
		t.Error("expired ticket should not be valid")
	}
}

func TestWSTicket_Cleanup(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.tickets.mu.Lock()
	env.srv.tickets.tickets["old"] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	env.srv.tickets.tickets["new"] = ticketEntry{expiresAt: time.Now().Add(time.Minute)}
	env.srv.tickets.mu.Unlock()

	env.srv.cleanExpiredTickets()

	env.srv.tickets.mu.Lock()
	defer env.srv.tickets.mu.Unlock()
	if _, ok := env.srv.tickets.tickets["old"]; ok {
		t.Error("expired ticket survived cleanup")
	}
	if _, ok := env.srv.tickets.tickets["new"]; !ok {
		t.Error("live ticket was removed")
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	env := newAuthEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/ws", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/ws?ticket=bogus", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bogus ticket status = %d, want 401", w.Code)
	}
}
