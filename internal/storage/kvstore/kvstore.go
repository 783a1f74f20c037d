package kvstore

import (
	"context"
)

// DB is the minimal key-value contract the persistence layer is written
// against. Both the pebble and leveldb backends implement it.
type DB interface {
	Read(ctx context.Context, key []byte) ([]byte, error)
	Write(ctx context.Context, key []byte, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Batch applies all operations atomically.
	Batch(ctx context.Context, ops []BatchOperation) error

	// Iterator traverses keys in [start, end) order. A nil start begins at
	// the first key; a nil end runs to the last.
	Iterator(ctx context.Context, start, end []byte) (Iterator, error)
}

// Iterator allows traversing over key-value entries.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// BatchOperation represents a single operation in a batch.
type BatchOperation struct {
	Type  BatchOpType
	Key   []byte
	Value []byte
}

type BatchOpType int

const (
	BatchPut BatchOpType = iota
	BatchDelete
)
