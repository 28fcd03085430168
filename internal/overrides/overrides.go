// Package overrides persists per-date schedule overrides. The mapping is
// JSON-encoded under one fixed key in a small key-value store so the
// production file store and the in-memory test store share a contract.
package overrides

import (
	"encoding/json"
	"fmt"
	"sync"

	"schooldays/internal/model"
)

// StoreKey is the fixed key the override mapping is persisted under.
const StoreKey = "sdc_overrides_v3"

// Store is the key-value port backing override persistence.
type Store interface {
	// Get returns the value for key, reporting whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Manager provides the override mapping CRUD over a Store. All writes are
// read-modify-write of the whole mapping; the execution model has no
// concurrent writers, the mutex only guards the web handlers.
type Manager struct {
	mu    sync.Mutex
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// All returns the persisted override mapping (date-key to schedule name or
// CUSTOM:-prefixed inline schedule). Any read or parse failure reads as an
// empty mapping.
func (m *Manager) All() map[string]string {
	raw, ok, err := m.store.Get(StoreKey)
	if err != nil || !ok {
		return map[string]string{}
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]string{}
	}
	return out
}

// Get returns the override for a single date key.
func (m *Manager) Get(dateKey string) (string, bool) {
	v, ok := m.All()[dateKey]
	return v, ok
}

// Set stores or replaces the override for dateKey.
func (m *Manager) Set(dateKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.All()
	all[dateKey] = value
	return m.save(all)
}

// Remove deletes the override for dateKey, if any.
func (m *Manager) Remove(dateKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.All()
	delete(all, dateKey)
	return m.save(all)
}

// Clear deletes every override.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(map[string]string{})
}

func (m *Manager) save(all map[string]string) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	return m.store.Set(StoreKey, string(raw))
}

// ParseCustom decodes a CUSTOM:-prefixed override value into its inline
// schedule. ok is false when the value is not a custom override or the
// embedded schedule fails to parse; resolution then falls through to the
// next precedence tier.
func ParseCustom(value string) (model.Schedule, bool) {
	if len(value) < len(model.CustomOverridePrefix) ||
		value[:len(model.CustomOverridePrefix)] != model.CustomOverridePrefix {
		return nil, false
	}
	var sched model.Schedule
	if err := json.Unmarshal([]byte(value[len(model.CustomOverridePrefix):]), &sched); err != nil {
		return nil, false
	}
	return sched, true
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu sync.RWMutex
	kv map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{kv: map[string]string{}}
}

func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}
