package kvstore

import "errors"

var (
	// ErrDBClosed is returned when operating on a closed store.
	ErrDBClosed = errors.New("kvstore is closed")

	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("key not found")
)
