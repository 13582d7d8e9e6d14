package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"glossvoice/internal/ports"
)

const memoryScheme = "memory://"

// MemoryStore keeps objects in process. It backs demo runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	opts ports.StoreOptions
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Store(ctx context.Context, data []byte, opts ports.StoreOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := objectKey(opts)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), opts: opts}
	m.mu.Unlock()
	return memoryScheme + key, nil
}

func (m *MemoryStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := strings.CutPrefix(url, memoryScheme)
	if !ok {
		return nil, fmt.Errorf("not a memory url: %q", url)
	}
	m.mu.RLock()
	obj, found := m.objects[key]
	m.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return append([]byte(nil), obj.data...), nil
}

// Options returns the options an object was stored with.
func (m *MemoryStore) Options(key string) (ports.StoreOptions, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.opts, ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
