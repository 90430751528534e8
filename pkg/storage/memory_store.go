package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryAvatarStore keeps objects in memory. For tests and local development
// without a MinIO instance.
type MemoryAvatarStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryAvatarStore builds an empty in-memory store.
func NewMemoryAvatarStore() *MemoryAvatarStore {
	return &MemoryAvatarStore{objects: make(map[string][]byte)}
}

// Put stores the object bytes under key.
func (m *MemoryAvatarStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

// PresignGet returns a fake URL for the stored object.
func (m *MemoryAvatarStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	_, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("object not found: %s", key)
	}
	return "memory://" + key, nil
}

// Delete removes the object.
func (m *MemoryAvatarStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}
