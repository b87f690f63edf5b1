package topology

import (
	"context"
	"fmt"
	"sync"
)

// memoryRepo is an in-memory Repository that records every call.
type memoryRepo struct {
	mu        sync.Mutex
	ids       map[Kind]map[string]int64
	nextID    int64
	calls     []string
	inserted  []Node
	telemetry []TelemetryRecord

	// failOn makes the named call ("exists:bay_line:BL_001") return err.
	failOn map[string]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ids:    make(map[Kind]map[string]int64),
		failOn: make(map[string]error),
	}
}

// seed pre-registers nodes so they exist before the test runs.
func (m *memoryRepo) seed(kind Kind, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.store(kind, key)
	}
}

func (m *memoryRepo) store(kind Kind, key string) int64 {
	if m.ids[kind] == nil {
		m.ids[kind] = make(map[string]int64)
	}
	m.nextID++
	m.ids[kind][key] = m.nextID
	return m.nextID
}

func (m *memoryRepo) record(op string, kind Kind, key string) error {
	call := fmt.Sprintf("%s:%s:%s", op, kind, key)
	m.calls = append(m.calls, call)
	return m.failOn[call]
}

func (m *memoryRepo) Exists(_ context.Context, kind Kind, uniqueID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("exists", kind, uniqueID); err != nil {
		return false, err
	}
	_, ok := m.ids[kind][uniqueID]
	return ok, nil
}

func (m *memoryRepo) Insert(_ context.Context, node Node) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("insert", node.Kind(), node.Key()); err != nil {
		return false, err
	}
	if _, ok := m.ids[node.Kind()][node.Key()]; ok {
		return false, nil
	}
	m.store(node.Kind(), node.Key())
	m.inserted = append(m.inserted, node)
	return true, nil
}

func (m *memoryRepo) LookupID(_ context.Context, kind Kind, uniqueID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("lookup", kind, uniqueID); err != nil {
		return 0, err
	}
	id, ok := m.ids[kind][uniqueID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (m *memoryRepo) InsertTelemetry(_ context.Context, kind DeviceKind, rec TelemetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("telemetry", kind.Kind(), rec.DeviceUniqueID); err != nil {
		return err
	}
	m.telemetry = append(m.telemetry, rec)
	return nil
}

// insertedKeys lists inserted unique ids in insertion order.
func (m *memoryRepo) insertedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.inserted))
	for _, n := range m.inserted {
		keys = append(keys, n.Key())
	}
	return keys
}
