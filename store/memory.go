package store

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is a Store kept in a map. It is used for tests and for MeshBases
// that do not need to survive a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string]Value
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]Value{}}
}

func (m *Memory) Get(_ context.Context, key string) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	v.Data = bytes.Clone(v.Data)
	return v, nil
}

func (m *Memory) Put(_ context.Context, value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	value.Data = bytes.Clone(value.Data)
	m.values[value.Key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.values, key)
	return nil
}

func (m *Memory) Iterate(ctx context.Context, after string, limit int, fn func(Value) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		if k > after {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	values := make([]Value, 0, len(keys))
	for _, k := range keys {
		v := m.values[k]
		v.Data = bytes.Clone(v.Data)
		values = append(values, v)
	}
	m.mu.RUnlock()

	for _, v := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Apply(_ context.Context, puts []Value, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range puts {
		v.Data = bytes.Clone(v.Data)
		m.values[v.Key] = v
	}
	for _, k := range deletes {
		delete(m.values, k)
	}
	return nil
}
