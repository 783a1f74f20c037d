package kvstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemoryDB is an in-memory DB used by tests and the in-process harness.
// All operations are safe for concurrent use.
type MemoryDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

func (m *MemoryDB) Read(ctx context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrDBClosed
	}
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryDB) Write(ctx context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDBClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemoryDB) Delete(ctx context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDBClosed
	}
	delete(m.data, string(key))
	return nil
}

func (m *MemoryDB) Batch(ctx context.Context, ops []BatchOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDBClosed
	}
	for _, op := range ops {
		switch op.Type {
		case BatchPut:
			v := make([]byte, len(op.Value))
			copy(v, op.Value)
			m.data[string(op.Key)] = v
		case BatchDelete:
			delete(m.data, string(op.Key))
		}
	}
	return nil
}

func (m *MemoryDB) Iterator(ctx context.Context, start, end []byte) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrDBClosed
	}

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if start != nil && bytes.Compare([]byte(k), start) < 0 {
			continue
		}
		if end != nil && bytes.Compare([]byte(k), end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	it := &memoryIterator{pos: -1}
	for _, k := range keys {
		v := m.data[k]
		vc := make([]byte, len(v))
		copy(vc, v)
		it.entries = append(it.entries, memoryEntry{key: []byte(k), value: vc})
	}
	return it, nil
}

func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = make(map[string][]byte)
	return nil
}

type memoryEntry struct {
	key, value []byte
}

type memoryIterator struct {
	entries []memoryEntry
	pos     int
}

func (it *memoryIterator) Next() bool {
	if it.pos+1 >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *memoryIterator) Key() []byte {
	return it.entries[it.pos].key
}

func (it *memoryIterator) Value() []byte {
	return it.entries[it.pos].value
}

func (it *memoryIterator) Error() error { return nil }

func (it *memoryIterator) Close() error { return nil }

// MemoryManager hands out MemoryDB instances by name.
type MemoryManager struct {
	mu  sync.Mutex
	dbs map[string]*MemoryDB
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{dbs: make(map[string]*MemoryDB)}
}

func (m *MemoryManager) OpenDB(name string) (DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.dbs[name]; ok {
		return db, nil
	}
	db := NewMemoryDB()
	m.dbs[name] = db
	return db, nil
}

func (m *MemoryManager) CloseDB(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.dbs[name]
	if !ok {
		return ErrKeyNotFound
	}
	delete(m.dbs, name)
	return db.Close()
}

func (m *MemoryManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, db := range m.dbs {
		db.Close()
		delete(m.dbs, name)
	}
	return nil
}
