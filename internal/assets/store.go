// Package assets provides the asset stores the playback driver reads AAF
// data from.
package assets

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/rcarmo/go-emote/internal/codec/aaf"
)

// Store hands out the raw bytes of an asset by id.
type Store interface {
	Asset(id int) ([]byte, error)
}

// Memory is an in-memory Store with optional names. Ids are assigned in
// insertion order starting at 0.
type Memory struct {
	mu    sync.RWMutex
	data  [][]byte
	names []string
	ids   map[string]int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]int)}
}

// Add stores data under name and returns its id. Adding an existing name
// replaces the data and keeps the id.
func (m *Memory) Add(name string, data []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name != "" {
		if id, ok := m.ids[name]; ok {
			m.data[id] = data
			return id
		}
	}
	id := len(m.data)
	m.data = append(m.data, data)
	m.names = append(m.names, name)
	if name != "" {
		m.ids[name] = id
	}
	return id
}

// Asset implements Store.
func (m *Memory) Asset(id int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id < 0 || id >= len(m.data) || m.data[id] == nil {
		return nil, errors.Wrapf(aaf.ErrNotFound, "asset %d", id)
	}
	return m.data[id], nil
}

// Lookup returns the id stored under name.
func (m *Memory) Lookup(name string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[name]
	return id, ok
}

// Name returns the name of id, or "" when it has none.
func (m *Memory) Name(id int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || id >= len(m.names) {
		return ""
	}
	return m.names[id]
}

// Names returns every stored name, sorted.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.ids))
	for n := range m.ids {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stored assets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
