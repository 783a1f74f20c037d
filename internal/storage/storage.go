// Package storage wires configuration to concrete persistence backends.
package storage

import (
	"fmt"

	"github.com/railpay/paymentsd/internal/storage/kvstore"
	"github.com/railpay/paymentsd/internal/storage/kvstore/leveldb"
	"github.com/railpay/paymentsd/internal/storage/kvstore/pebble"
)

// OpenManager returns a kvstore manager for the configured backend.
func OpenManager(backend, path string) (kvstore.Manager, error) {
	switch backend {
	case "pebble":
		return pebble.NewManager(path), nil
	case "leveldb":
		return leveldb.NewManager(path), nil
	case "memory":
		return kvstore.NewMemoryManager(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
