package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeGateway records commands and serves canned state.
type fakeGateway struct {
	mu        sync.Mutex
	online    []device.Identity
	logs      map[string]string
	logErr    error
	listening bool
	sent      []command.Command
	healthErr error
}

func (f *fakeGateway) ListOnline() []device.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Identity(nil), f.online...)
}

func (f *fakeGateway) GetLog(imei string) (string, bool, error) {
	if f.logErr != nil {
		return "", false, f.logErr
	}
	body, ok := f.logs[imei]
	return body, ok, nil
}

func (f *fakeGateway) SendCommand(cmd command.Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.listening
}

func (f *fakeGateway) Stats() gateway.Stats {
	return gateway.Stats{ConnectionsAccepted: 3, SessionsActive: 1, CommandsSent: uint64(len(f.sent))}
}

func (f *fakeGateway) HealthCheck(context.Context) error { return f.healthErr }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testDeps(t *testing.T, gw *fakeGateway) Deps {
	t.Helper()
	dir, err := device.OpenDirectory(filepath.Join(t.TempDir(), "devices.json"))
	if err != nil {
		t.Fatalf("OpenDirectory() error = %v", err)
	}
	return Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    testLogger(),
		Gateway:   gw,
		Directory: dir,
		Version:   "test",
	}
}

// testServer builds a server with an open API and an empty directory.
func testServer(t *testing.T) (*Server, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{logs: map[string]string{}}
	srv, err := New(testDeps(t, gw))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, gw
}

func do(t *testing.T, h http.Handler, method, path string, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
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

func TestNew_RequiresDeps(t *testing.T) {
	gw := &fakeGateway{}
	full := testDeps(t, gw)

	tests := []struct {
		name   string
		mutate func(*Deps)
		want   error
	}{
		{"logger", func(d *Deps) { d.Logger = nil }, ErrMissingLogger},
		{"gateway", func(d *Deps) { d.Gateway = nil }, ErrMissingGateway},
		{"directory", func(d *Deps) { d.Directory = nil }, ErrMissingDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)
			if _, err := New(deps); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decode(t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_GatewayDown(t *testing.T) {
	srv, gw := testServer(t)
	gw.healthErr = gateway.ErrNotRunning

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if resp := decode(t, w); resp["status"] != "degraded" {
		t.Errorf("status field = %v, want degraded", resp["status"])
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not generated")
	}

	w = do(t, router, http.MethodGet, "/api/v1/health", "", "X-Request-ID", "client-id-42")
	if got := w.Header().Get("X-Request-ID"); got != "client-id-42" {
		t.Errorf("X-Request-ID = %q, want client-id-42", got)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantHeader string
	}{
		{"empty list allows all", nil, "http://ui.local", "http://ui.local"},
		{"listed origin", []string{"http://ui.local"}, "http://ui.local", "http://ui.local"},
		{"wildcard", []string{"*"}, "http://other", "http://other"},
		{"unlisted origin", []string{"http://ui.local"}, "http://evil", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)
			srv.cfg.CORS.AllowedOrigins = tt.allowed

			w := do(t, srv.buildRouter(), http.MethodOptions, "/api/v1/health", "", "Origin", tt.origin)
			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if resp := decode(t, w); resp["code"] != ErrCodeInternal {
		t.Errorf("code = %v", resp["code"])
	}
}

func TestMetricsRoute(t *testing.T) {
	gw := &fakeGateway{}
	deps := testDeps(t, gw)
	deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("gateway_up 1\n"))
	})
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || w.Body.String() != "gateway_up 1\n" {
		t.Errorf("GET /metrics = %d %q", w.Code, w.Body.String())
	}
}

func TestStats(t *testing.T) {
	srv, gw := testServer(t)
	gw.online = []device.Identity{{IMEI: "123"}}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats SystemStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Gateway.ConnectionsAccepted != 3 || stats.Devices.Online != 1 || stats.Version != "test" {
		t.Errorf("stats = %+v", stats)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestAuth(t *testing.T) {
	valid, err := IssueToken("ops", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	expired, err := IssueToken("ops", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	wrongKey, err := IssueToken("ops", strings.Repeat("x", 32), time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	srv, _ := testServer(t)
	srv.secCfg.JWT.Secret = testSecret
	router := srv.buildRouter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/api/v1/devices/online", "", "Authorization", tt.header)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	t.Run("health stays open", func(t *testing.T) {
		if w := do(t, router, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
			t.Errorf("health status = %d, want 200", w.Code)
		}
	})
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	if _, err := IssueToken("ops", "", time.Minute); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("IssueToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestTicketStore(t *testing.T) {
	store := newTicketStore()

	ticket, err := store.issue("ops")
	if err != nil {
		t.Fatalf("issue() error = %v", err)
	}
	entry, ok := store.consume(ticket)
	if !ok || entry.subject != "ops" {
		t.Fatalf("consume() = %+v, %v", entry, ok)
	}
	if _, ok := store.consume(ticket); ok {
		t.Error("ticket was accepted twice")
	}

	stale, _ := store.issue("ops") //nolint:errcheck // crypto/rand does not fail here
	store.purge(time.Now().Add(2 * ticketTTL))
	if _, ok := store.consume(stale); ok {
		t.Error("purged ticket was accepted")
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("HealthCheck() before Start = %v, want ErrNotStarted", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_StartBindFailure(t *testing.T) {
	first, _ := testServer(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Close()

	second, _ := testServer(t)
	second.cfg.Port = first.Addr().(*net.TCPAddr).Port
	if err := second.Start(context.Background()); !errors.Is(err, ErrListen) {
		t.Errorf("Start() error = %v, want ErrListen", err)
	}
}
