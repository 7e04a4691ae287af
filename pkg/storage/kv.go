package storage

import (
	"context"
	"sync"

	apperrors "invitely/pkg/errors"
)

// ProjectKey is the single key the project is persisted under
const ProjectKey = "invitely.project.v2"

// TokenKey holds the bearer token for the remote project service
const TokenKey = "invitely.auth.token"

// KV is the abstract local key-value store. Get returns (nil, nil) for a
// missing key. Set returns an error matching apperrors.ErrQuotaExceeded
// when the store is full.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryKV is an in-process KV with an optional total byte quota
type MemoryKV struct {
	mutex sync.RWMutex
	data  map[string][]byte
	quota int64
}

// NewMemoryKV creates a memory store; quota <= 0 means unlimited
func NewMemoryKV(quota int64) *MemoryKV {
	return &MemoryKV{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

// Get returns a copy of the stored value
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value, failing when the quota would be exceeded
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.quota > 0 {
		var used int64
		for k, v := range m.data {
			if k != key {
				used += int64(len(k) + len(v))
			}
		}
		if used+int64(len(key)+len(value)) > m.quota {
			return apperrors.ErrQuotaExceeded.WithContext("key", key).
				WithContext("size", len(value))
		}
	}

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.data, key)
	return nil
}

// Close is a no-op
func (m *MemoryKV) Close() error {
	return nil
}
