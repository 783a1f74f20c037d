package leveldb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/railpay/paymentsd/internal/storage/kvstore"
)

// DB wraps a goleveldb database behind the kvstore contract.
type DB struct {
	db *leveldb.DB
}

func NewDB(db *leveldb.DB) *DB {
	return &DB{db: db}
}

func (l *DB) Read(ctx context.Context, key []byte) ([]byte, error) {
	if l.db == nil {
		return nil, kvstore.ErrDBClosed
	}

	val, err := l.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, kvstore.ErrKeyNotFound
		}
		return nil, err
	}
	// goleveldb already returns a fresh slice.
	return val, nil
}

func (l *DB) Write(ctx context.Context, key, value []byte) error {
	if l.db == nil {
		return kvstore.ErrDBClosed
	}
	return l.db.Put(key, value, nil)
}

func (l *DB) Delete(ctx context.Context, key []byte) error {
	if l.db == nil {
		return kvstore.ErrDBClosed
	}
	return l.db.Delete(key, nil)
}

func (l *DB) Batch(ctx context.Context, ops []kvstore.BatchOperation) error {
	if l.db == nil {
		return kvstore.ErrDBClosed
	}

	batch := new(leveldb.Batch)
	for _, op := range ops {
		switch op.Type {
		case kvstore.BatchPut:
			batch.Put(op.Key, op.Value)
		case kvstore.BatchDelete:
			batch.Delete(op.Key)
		default:
			return fmt.Errorf("unknown batch operation type: %d", op.Type)
		}
	}
	return l.db.Write(batch, nil)
}

type Iterator struct {
	iter    iterator.Iterator
	current struct {
		key, value []byte
	}
}

func (l *DB) Iterator(ctx context.Context, start, end []byte) (kvstore.Iterator, error) {
	if l.db == nil {
		return nil, kvstore.ErrDBClosed
	}

	iter := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return &Iterator{iter: iter}, nil
}

func (it *Iterator) Next() bool {
	if !it.iter.Next() {
		return false
	}

	// Key and Value are only valid until the next call on the iterator.
	key := it.iter.Key()
	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)
	val := it.iter.Value()
	valCopy := make([]byte, len(val))
	copy(valCopy, val)

	it.current.key = keyCopy
	it.current.value = valCopy
	return true
}

func (it *Iterator) Key() []byte {
	return it.current.key
}

func (it *Iterator) Value() []byte {
	return it.current.value
}

func (it *Iterator) Error() error {
	return it.iter.Error()
}

func (it *Iterator) Close() error {
	it.iter.Release()
	return it.iter.Error()
}

// Manager opens one leveldb database per name under a shared directory.
type Manager struct {
	dbs  map[string]*leveldb.DB
	path string
	mu   sync.Mutex
}

func NewManager(path string) *Manager {
	return &Manager{
		dbs:  make(map[string]*leveldb.DB),
		path: path,
	}
}

func (m *Manager) OpenDB(name string) (kvstore.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, exists := m.dbs[name]; exists {
		return NewDB(db), nil
	}

	dbPath := filepath.Join(m.path, name+".db")
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", name, err)
	}

	m.dbs[name] = db
	return NewDB(db), nil
}

func (m *Manager) CloseDB(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, exists := m.dbs[name]
	if !exists {
		return fmt.Errorf("database %s not found", name)
	}

	if err := db.Close(); err != nil {
		return err
	}
	delete(m.dbs, name)
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for name, db := range m.dbs {
		if err := db.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close database %s: %w", name, err)
		}
		delete(m.dbs, name)
	}
	return lastErr
}
