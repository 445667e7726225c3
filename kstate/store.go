package kstate

import (
	"errors"
)

var (
	ErrTransactionClosed = errors.New("kstate: transaction already committed or discarded")
	ErrEnvironmentClosed = errors.New("kstate: environment closed")
)

// Backend opens node environments. Implementations live in sub packages
// (pebble, badger, memory).
type Backend interface {
	// Name identifies the backend in logs and configuration.
	Name() string

	// Open opens or creates the environment stored in dir.
	Open(dir string) (Environment, error)
}

// Environment is the private transactional key-value store of one node. It is
// used by exactly one node worker. The only concurrent access allowed is
// through Reader, which observes committed data.
type Environment interface {
	// Begin opens a read-write transaction. At most one transaction is open
	// at any time.
	Begin() (Transaction, error)

	// Reader returns a view on committed data that is safe for concurrent
	// use.
	Reader() Reader

	// Flush forces buffered data to stable storage.
	Flush() error

	Close() error
}

// Reader is the read side of the storage contract.
//
// Keys and values are opaque byte strings and may be empty.
type Reader interface {
	// Get returns an owned copy of the value stored under key.
	Get(key []byte) ([]byte, bool, error)

	// View calls fn with a borrowed view of the value stored under key. The
	// view is only valid until fn returns; it must be copied to be retained.
	// fn is not called if the key is absent.
	View(key []byte, fn func(value []byte) error) (bool, error)

	// Contains reports whether key is present.
	Contains(key []byte) (bool, error)

	// Scan calls fn for every key with the given prefix in ascending order.
	// Key and value are borrowed views valid until fn returns.
	Scan(prefix []byte, fn func(key, value []byte) error) error

	// Count returns the approximate number of keys.
	Count() (int, error)
}

// Transaction is a read-write transaction. Reads observe the transaction's
// own writes. Nothing is visible to Environment.Reader until Commit.
type Transaction interface {
	Reader

	Put(key, value []byte) error
	Delete(key []byte) error

	// Commit durably applies all writes. The transaction cannot be used
	// afterwards.
	Commit() error

	// Discard drops all writes. It is safe to call after Commit.
	Discard()
}

// CountScan implements Count on top of Scan for backends without a cheaper
// estimate.
func CountScan(r Reader, prefix []byte) (int, error) {
	n := 0
	err := r.Scan(prefix, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// Copy returns an owned, non-nil copy of b.
func Copy(b []byte) []byte {
	res := make([]byte, len(b))
	copy(res, b)
	return res
}
