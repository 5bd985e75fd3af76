package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It is used in tests and when persistence is
// disabled.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]Record
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]Record)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return cloneRecords(m.data[key]), nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(records) == 0 {
		delete(m.data, key)
		return nil
	}
	m.data[key] = cloneRecords(records)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
