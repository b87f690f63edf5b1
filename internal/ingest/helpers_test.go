package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aigrow/aigrow-device-server/internal/infrastructure/database"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/mqtt"
	"github.com/aigrow/aigrow-device-server/internal/topology"
	_ "github.com/aigrow/aigrow-device-server/migrations" // embedded schema
)

var fixedNow = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

// setupRouter returns a router over a migrated SQLite database.
func setupRouter(t *testing.T) (*Router, *database.DB) {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver:      database.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "aigrow.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(context.Background()))

	router := NewRouter(topology.NewSQLRepository(db, 5*time.Second))
	router.now = func() time.Time { return fixedNow }
	return router, db
}

// seed inserts nodes directly through the repository.
func seed(t *testing.T, r *Router, nodes ...topology.Node) {
	t.Helper()
	for _, n := range nodes {
		_, err := r.repo.Insert(context.Background(), n)
		require.NoError(t, err)
	}
}

func countRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// stubRepo lets tests script repository behaviour.
type stubRepo struct {
	exists    func(kind topology.Kind, uniqueID string) (bool, error)
	telemetry func(kind topology.DeviceKind, rec topology.TelemetryRecord) error
}

func (s *stubRepo) Exists(_ context.Context, kind topology.Kind, uniqueID string) (bool, error) {
	if s.exists == nil {
		return true, nil
	}
	return s.exists(kind, uniqueID)
}

func (s *stubRepo) Insert(context.Context, topology.Node) (bool, error) {
	return true, nil
}

func (s *stubRepo) LookupID(context.Context, topology.Kind, string) (int64, error) {
	return 1, nil
}

func (s *stubRepo) InsertTelemetry(_ context.Context, kind topology.DeviceKind, rec topology.TelemetryRecord) error {
	if s.telemetry == nil {
		return nil
	}
	return s.telemetry(kind, rec)
}

var errDiskFull = errors.New("disk I/O error")

// recordingSink captures mirrored readings.
type recordingSink struct {
	mu      sync.Mutex
	kinds   []topology.DeviceKind
	records []topology.TelemetryRecord
}

func (s *recordingSink) WriteTelemetry(kind topology.DeviceKind, rec topology.TelemetryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.records = append(s.records, rec)
}

// published is one message sent through mockClient.
type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockClient stands in for the broker: Deliver feeds the subscribed handler.
type mockClient struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []published
	subscribeErr error
	publishErr   error
}

func newMockClient() *mockClient {
	return &mockClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockClient) Deliver(topic string, payload string) error {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return errors.New("no subscriber on " + topic)
	}
	return handler(topic, []byte(payload))
}

func (m *mockClient) Published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

type logEntry struct {
	level string
	msg   string
	attrs map[string]any
}

// recordingLogger keeps every log call with its key/value pairs.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, args []any) {
	attrs := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs[key] = args[i+1]
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, attrs: attrs})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *recordingLogger) find(msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}
