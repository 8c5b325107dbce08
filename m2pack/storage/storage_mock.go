package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MockStorage is a simple in-memory Storage implementation for tests.
type MockStorage struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

// NewMockStorage constructs a MockStorage over a copy of data.
func NewMockStorage(data []byte) *MockStorage {
	return &MockStorage{data: append([]byte(nil), data...)}
}

// Size returns the length of the stored stream.
func (m *MockStorage) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

// ReadRange returns a reader over the requested byte range.
func (m *MockStorage) ReadRange(ctx context.Context, offset int64, length int64) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	end, err := rangeEnd(int64(len(m.data)), offset, length)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(m.data[offset:end])), nil
}

// Close marks the storage closed.
func (m *MockStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockStorage) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
