package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memoryDoc struct {
	seq  uint64
	data []byte
}

// MemoryBackend keeps documents in a mutex-guarded map. Stored bytes are
// copied on the way in and out so callers never share buffers.
type MemoryBackend struct {
	mu   sync.RWMutex
	seq  uint64
	docs map[string]map[string]memoryDoc
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]map[string]memoryDoc)}
}

// Put stores data under (kind, id). Replacing a document keeps its position.
func (m *MemoryBackend) Put(_ context.Context, kind, id string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid json document for %s %s", kind, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.docs[kind]
	if !ok {
		byID = make(map[string]memoryDoc)
		m.docs[kind] = byID
	}
	doc, exists := byID[id]
	if !exists {
		m.seq++
		doc.seq = m.seq
	}
	doc.data = append([]byte(nil), data...)
	byID[id] = doc
	return nil
}

// Get returns a copy of the stored document.
func (m *MemoryBackend) Get(_ context.Context, kind, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc.data...), nil
}

// Find scans every document of kind.
func (m *MemoryBackend) Find(_ context.Context, kind, field, value string) ([][]byte, error) {
	m.mu.RLock()
	matched := make([]memoryDoc, 0)
	for _, doc := range m.docs[kind] {
		if field == "" || fieldEquals(doc.data, field, value) {
			matched = append(matched, doc)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([][]byte, len(matched))
	for i, doc := range matched {
		out[i] = append([]byte(nil), doc.data...)
	}
	return out, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// fieldEquals mirrors Postgres' data->>field = value for string fields.
func fieldEquals(data []byte, field, value string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	raw, ok := fields[field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == value
}
