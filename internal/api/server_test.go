package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aigrow/aigrow-device-server/internal/infrastructure/config"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/logging"
	"github.com/aigrow/aigrow-device-server/internal/ingest"
	"github.com/aigrow/aigrow-device-server/internal/topology"
)

type fakeDB struct {
	err   error
	stats sql.DBStats
}

func (f *fakeDB) HealthCheck(context.Context) error { return f.err }
func (f *fakeDB) Stats() sql.DBStats                { return f.stats }

type fakeBroker struct {
	connected bool
}

func (f *fakeBroker) HealthCheck(context.Context) error {
	if !f.connected {
		return errors.New("mqtt: client not connected")
	}
	return nil
}

func (f *fakeBroker) IsConnected() bool { return f.connected }

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

// emptyRepo resolves nothing and stores nothing.
type emptyRepo struct{}

func (emptyRepo) Exists(context.Context, topology.Kind, string) (bool, error) { return false, nil }
func (emptyRepo) Insert(context.Context, topology.Node) (bool, error)         { return true, nil }
func (emptyRepo) LookupID(context.Context, topology.Kind, string) (int64, error) {
	return 0, topology.ErrNotFound
}
func (emptyRepo) InsertTelemetry(context.Context, topology.DeviceKind, topology.TelemetryRecord) error {
	return nil
}

func testDeps() Deps {
	return Deps{
		Config: config.APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:  logging.Discard(),
		DB:      &fakeDB{stats: sql.DBStats{OpenConnections: 1, Idle: 1}},
		MQTT:    &fakeBroker{connected: true},
		Stats:   ingest.NewStats(),
		Version: "test",
	}
}

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	deps := testDeps()
	deps.DB = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without database should fail")
	}

	deps = testDeps()
	deps.Stats = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without stats should fail")
	}

	deps = testDeps()
	deps.Logger = nil
	if _, err := New(deps); err != nil {
		t.Errorf("New() without logger error = %v, want discard logger", err)
	}
}

// ─── Health Endpoint ───────────────────────────────────────────────

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Deps)
		wantCode     int
		wantStatus   string
		wantDegraded []string
		wantDisabled []string
	}{
		{
			name:         "all healthy without influx",
			mutate:       func(*Deps) {},
			wantCode:     http.StatusOK,
			wantStatus:   "ok",
			wantDisabled: []string{"influxdb"},
		},
		{
			name:       "influx healthy",
			mutate:     func(d *Deps) { d.InfluxDB = fakeChecker{} },
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:         "database down",
			mutate:       func(d *Deps) { d.DB = &fakeDB{err: errors.New("database is locked")} },
			wantCode:     http.StatusServiceUnavailable,
			wantStatus:   "degraded",
			wantDegraded: []string{"database"},
		},
		{
			name:         "broker disconnected",
			mutate:       func(d *Deps) { d.MQTT = &fakeBroker{} },
			wantCode:     http.StatusServiceUnavailable,
			wantStatus:   "degraded",
			wantDegraded: []string{"mqtt"},
		},
		{
			name:         "influx down only degrades its entry",
			mutate:       func(d *Deps) { d.InfluxDB = fakeChecker{err: errors.New("ping failed")} },
			wantCode:     http.StatusOK,
			wantStatus:   "ok",
			wantDegraded: []string{"influxdb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			tt.mutate(&deps)
			w := get(t, testServer(t, deps), "/api/v1/health")

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Version != "test" {
				t.Errorf("version = %q, want test", resp.Version)
			}

			for _, name := range tt.wantDegraded {
				c := resp.Components[name]
				if c.Status != "degraded" || c.Error == "" {
					t.Errorf("%s = %+v, want degraded with error", name, c)
				}
			}
			for _, name := range tt.wantDisabled {
				if resp.Components[name].Status != "disabled" {
					t.Errorf("%s = %+v, want disabled", name, resp.Components[name])
				}
			}
			if len(tt.wantDegraded) == 0 && resp.Components["database"].Status != "ok" {
				t.Errorf("database = %+v, want ok", resp.Components["database"])
			}
		})
	}
}

// ─── Metrics Endpoint ──────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	router := ingest.NewRouter(emptyRepo{})
	ctx := context.Background()
	router.Handle(ctx, []byte(`{"command":"registerBayRack","bay_rack_unique_id":"BR_001"}`))
	router.Handle(ctx, []byte(`{"command":"dataEntry","deviceID":"G_001:B_001:BD_001","data":"1"}`))
	router.Handle(ctx, []byte(`{"command":"reboot"}`))

	deps := testDeps()
	deps.Stats = router.Stats()
	deps.DB = &fakeDB{stats: sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2, WaitCount: 7}}
	w := get(t, testServer(t, deps), "/api/v1/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m.Version != "test" || m.Timestamp == "" {
		t.Errorf("version/timestamp = %q/%q", m.Version, m.Timestamp)
	}
	if !m.MQTT.Connected {
		t.Error("mqtt.connected = false")
	}
	if m.Database != (DatabaseMetrics{OpenConnections: 3, InUse: 1, Idle: 2, WaitCount: 7}) {
		t.Errorf("database = %+v", m.Database)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime.goroutines = 0")
	}
	if m.Messages.Total != 3 {
		t.Errorf("messages.total = %d, want 3", m.Messages.Total)
	}

	want := map[string]ingest.CommandStats{
		"dataEntry":       {Command: "dataEntry", Failure: 1},
		"registerBayRack": {Command: "registerBayRack", Success: 1},
		"unknown":         {Command: "unknown", Dropped: 1},
	}
	if len(m.Messages.ByCommand) != len(want) {
		t.Fatalf("by_command = %+v", m.Messages.ByCommand)
	}
	for _, got := range m.Messages.ByCommand {
		if got != want[got.Command] {
			t.Errorf("by_command[%s] = %+v, want %+v", got.Command, got, want[got.Command])
		}
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	w := get(t, testServer(t, testDeps()), "/api/v1/health")

	requestID := w.Header().Get("X-Request-ID")
	if _, err := uuid.Parse(requestID); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID: %v", requestID, err)
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t, testDeps())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, testDeps())
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", w.Code)
	}
	var body Error
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeInternal)
	}
}

func TestUnknownRoutes(t *testing.T) {
	srv := testServer(t, testDeps())

	w := get(t, srv, "/api/v1/devices")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET unknown path = %d, want 404", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health = %d, want 405", rec.Code)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t, testDeps())

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", srv.Addr()))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first := testServer(t, testDeps())
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { first.Close() })

	deps := testDeps()
	deps.Config.Port = first.Addr().(*net.TCPAddr).Port

	second := testServer(t, deps)
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start() on a bound port should fail")
	}
}

func TestServer_StartAppliesTimeouts(t *testing.T) {
	deps := testDeps()
	deps.Config.Timeouts = config.APITimeoutConfig{Read: 7, Write: 8, Idle: 9}

	srv := testServer(t, deps)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	srv.mu.Lock()
	httpSrv := srv.server
	srv.mu.Unlock()

	if httpSrv.ReadTimeout != 7*time.Second || httpSrv.ReadHeaderTimeout != 7*time.Second {
		t.Errorf("read timeouts = %v/%v, want 7s", httpSrv.ReadTimeout, httpSrv.ReadHeaderTimeout)
	}
	if httpSrv.WriteTimeout != 8*time.Second {
		t.Errorf("WriteTimeout = %v, want 8s", httpSrv.WriteTimeout)
	}
	if httpSrv.IdleTimeout != 9*time.Second {
		t.Errorf("IdleTimeout = %v, want 9s", httpSrv.IdleTimeout)
	}
}
