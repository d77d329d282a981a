package storage

import (
	"sync"

	"github.com/streampay/streampay/foundation/streaming/database"
)

// Memory represents the serialization implementation for holding the latest
// ledger snapshot in memory. This implements the database.Serializer
// interface and exists to support testing.
type Memory struct {
	mu       sync.RWMutex
	snapshot database.Snapshot
	exists   bool
}

// NewMemory constructs a Memory value for use.
func NewMemory() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do.
func (m *Memory) Close() error {
	return nil
}

// Write replaces the snapshot held in memory.
func (m *Memory) Write(snapshot database.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = snapshot
	m.exists = true
	return nil
}

// Read returns the snapshot held in memory.
func (m *Memory) Read() (database.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.exists {
		return database.Snapshot{}, database.ErrNoSnapshot
	}
	return m.snapshot, nil
}

// Reset drops the snapshot held in memory.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = database.Snapshot{}
	m.exists = false
	return nil
}
