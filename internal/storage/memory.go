package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/org/applock/pkg/models"
)

// MemoryBackend keeps everything in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	kv     map[string]string
	audit  []*models.AuditEntry
	nextID int64
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{kv: map[string]string{}}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *MemoryBackend) MultiGet(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.kv[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryBackend) MultiSet(_ context.Context, pairs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range pairs {
		m.kv[k] = v
	}
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
	}
	return nil
}

func (m *MemoryBackend) WriteAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e := *entry
	e.ID = m.nextID
	entry.ID = e.ID
	m.audit = append(m.audit, &e)
	return nil
}

// QueryAuditLog returns newest entries first, like the SQL backends.
func (m *MemoryBackend) QueryAuditLog(_ context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*models.AuditEntry
	for _, e := range m.audit {
		if filter.Event != "" && e.Event != filter.Event {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryBackend) Close() {}
