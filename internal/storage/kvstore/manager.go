package kvstore

// Manager handles the lifecycle of named stores sharing one data
// directory.
type Manager interface {
	// OpenDB opens or creates a store with the given name.
	OpenDB(name string) (DB, error)

	// CloseDB closes a specific store.
	CloseDB(name string) error

	// Close closes all stores.
	Close() error
}
