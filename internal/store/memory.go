package store

import (
	"context"
	"sync"
)

// Memory keeps records in process. Used when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]Record
}

func NewMemory() *Memory {
	return &Memory{recs: make(map[string]Record)}
}

func (m *Memory) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.Key()]; ok {
		return ErrExists
	}
	m.recs[rec.Key()] = clone(rec)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(rec), nil
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.Key()]; !ok {
		return ErrNotFound
	}
	m.recs[rec.Key()] = clone(rec)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[key]; !ok {
		return ErrNotFound
	}
	delete(m.recs, key)
	return nil
}

func (m *Memory) Close() error { return nil }

func clone(rec Record) Record {
	rec.Session = rec.Session.Clone()
	return rec
}
