// Package localcache persists small JSON values on the local device: the last
// remote planner document and each feature's own UI state.
package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"planner/api/internal/plandoc"
)

// Cache is a key/value store for JSON values. Get reports ok=false for
// missing keys and returns a *plandoc.ParseError when the stored text is not
// valid JSON.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
}

// Open selects a backend by name: "file", "sqlite" or "memory".
func Open(ctx context.Context, backend, dir string) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "file":
		return NewFile(dir), nil
	case "sqlite":
		return OpenSQLite(ctx, dir)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

func validate(key string, raw []byte) (json.RawMessage, error) {
	if !json.Valid(raw) {
		return nil, &plandoc.ParseError{Key: key, Err: fmt.Errorf("invalid JSON")}
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

// Memory is an in-process Cache.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	value, err := validate(key, raw)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// PutRaw stores bytes without validation. Tests use it to plant corrupt
// values.
func (m *Memory) PutRaw(key string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = raw
}
