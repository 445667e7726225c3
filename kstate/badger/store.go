// Package badger implements the kstate contract on top of dgraph-io/badger,
// mapping every kstate transaction onto a badger read-write transaction.
//
// Badger rejects empty keys, so every key is stored behind a one byte
// namespace prefix. Badger also bounds the size of a single transaction; the
// executor's checkpoint policy must keep intervals small enough to fit.
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/birdayz/kflow/kstate"
	"github.com/dgraph-io/badger/v4"
)

var keyNamespace = []byte{0}

// Backend opens badger environments.
type Backend struct {
	// InMemory keeps all data in memory. Data does not survive Close.
	InMemory bool
	// NoSync disables synchronous writes.
	NoSync bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string {
	return "badger"
}

func (b *Backend) Open(dir string) (kstate.Environment, error) {
	var opts badger.Options
	if b.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithSyncWrites(!b.NoSync).WithNumVersionsToKeep(1)
	if b.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: b.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database %s: %w", dir, err)
	}
	return &badgerEnv{db: db}, nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

type badgerEnv struct {
	db   *badger.DB
	open *badgerTxn
}

func (e *badgerEnv) Begin() (kstate.Transaction, error) {
	if e.open != nil && !e.open.done {
		return nil, errors.New("badger: a transaction is already open")
	}
	e.open = &badgerTxn{txn: e.db.NewTransaction(true)}
	return e.open, nil
}

func (e *badgerEnv) Reader() kstate.Reader {
	return &committedReader{db: e.db}
}

func (e *badgerEnv) Flush() error {
	return e.db.Sync()
}

func (e *badgerEnv) Close() error {
	if e.open != nil {
		e.open.Discard()
	}
	return e.db.Close()
}

func nsKey(k []byte) []byte {
	res := make([]byte, 0, len(k)+1)
	res = append(res, keyNamespace...)
	return append(res, k...)
}

func view(txn *badger.Txn, key []byte, fn func([]byte) error) (bool, error) {
	item, err := txn.Get(nsKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, item.Value(fn)
}

func scan(txn *badger.Txn, prefix []byte, fn func(k, v []byte) error) error {
	p := nsKey(prefix)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: p, PrefetchValues: false})
	defer it.Close()

	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		key := item.Key()[len(keyNamespace):]
		if err := item.Value(func(v []byte) error {
			return fn(key, v)
		}); err != nil {
			return err
		}
	}
	return nil
}

// committedReader serves reads from short read-only transactions.
type committedReader struct {
	db *badger.DB
}

func (r *committedReader) View(key []byte, fn func([]byte) error) (bool, error) {
	var found bool
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = view(txn, key, fn)
		return err
	})
	return found, err
}

func (r *committedReader) Get(key []byte) ([]byte, bool, error) {
	var res []byte
	ok, err := r.View(key, func(v []byte) error {
		res = kstate.Copy(v)
		return nil
	})
	return res, ok, err
}

func (r *committedReader) Contains(key []byte) (bool, error) {
	return r.View(key, func([]byte) error { return nil })
}

func (r *committedReader) Scan(prefix []byte, fn func(k, v []byte) error) error {
	return r.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefix, fn)
	})
}

func (r *committedReader) Count() (int, error) {
	return kstate.CountScan(r, nil)
}

type badgerTxn struct {
	txn  *badger.Txn
	done bool
}

func (t *badgerTxn) View(key []byte, fn func([]byte) error) (bool, error) {
	if t.done {
		return false, kstate.ErrTransactionClosed
	}
	return view(t.txn, key, fn)
}

func (t *badgerTxn) Get(key []byte) ([]byte, bool, error) {
	var res []byte
	ok, err := t.View(key, func(v []byte) error {
		res = kstate.Copy(v)
		return nil
	})
	return res, ok, err
}

func (t *badgerTxn) Contains(key []byte) (bool, error) {
	return t.View(key, func([]byte) error { return nil })
}

func (t *badgerTxn) Scan(prefix []byte, fn func(k, v []byte) error) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	return scan(t.txn, prefix, fn)
}

func (t *badgerTxn) Count() (int, error) {
	return kstate.CountScan(t, nil)
}

func (t *badgerTxn) Put(k, v []byte) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	// badger keeps a reference to v until commit.
	return t.txn.Set(nsKey(k), kstate.Copy(v))
}

func (t *badgerTxn) Delete(k []byte) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	return t.txn.Delete(nsKey(k))
}

func (t *badgerTxn) Commit() error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	t.done = true
	return t.txn.Commit()
}

func (t *badgerTxn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Discard()
}

var _ kstate.Backend = (*Backend)(nil)
