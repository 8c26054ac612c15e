// Package blob implements blob.Store backends.
package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/parquedb/parquedb/pkg/blob"
)

// Ensure implementation satisfies interface at compile time.
var _ blob.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory blob.Store, used by engine tests and as
// the default fixture for every package that exercises the storage
// contract without touching a filesystem. WriteAtomic is trivially
// atomic here: the map assignment either fully succeeds or (on a
// canceled context) does not happen at all.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[path]
	return ok, nil
}

func (m *MemoryStore) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[path]
	if !ok {
		return nil, fmt.Errorf("blob: %q: %w", path, ErrNotExist)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Write(ctx context.Context, path string, data []byte) error {
	return m.WriteAtomic(ctx, path, data)
}

func (m *MemoryStore) WriteAtomic(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[path] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, path)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for path := range m.data {
		if strings.HasPrefix(path, prefix) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}
