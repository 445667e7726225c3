// Package pebble implements the kstate contract on top of cockroachdb/pebble.
// A transaction is an indexed batch, so it observes its own writes and is
// applied atomically on commit.
package pebble

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/birdayz/kflow/kstate"
	"github.com/cockroachdb/pebble"
)

// Backend opens pebble environments.
type Backend struct {
	// NoSync skips the fsync on commit. Only meant for tests and benchmarks.
	NoSync bool
	// Logger receives pebble's internal logs. Nil discards them.
	Logger *slog.Logger
}

// New returns a backend that syncs every commit.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string {
	return "pebble"
}

func (b *Backend) Open(dir string) (kstate.Environment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	log := b.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	db, err := pebble.Open(dir, &pebble.Options{Logger: &pebbleLogger{logger: log}})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dir, err)
	}
	writeOpts := pebble.Sync
	if b.NoSync {
		writeOpts = pebble.NoSync
	}
	return &pebbleEnv{db: db, writeOpts: writeOpts}, nil
}

type pebbleEnv struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	open      *pebbleTxn
}

func (e *pebbleEnv) Begin() (kstate.Transaction, error) {
	if e.open != nil && !e.open.done {
		return nil, errors.New("pebble: a transaction is already open")
	}
	batch := e.db.NewIndexedBatch()
	e.open = &pebbleTxn{pebbleReader: pebbleReader{r: batch}, batch: batch, writeOpts: e.writeOpts}
	return e.open, nil
}

func (e *pebbleEnv) Reader() kstate.Reader {
	return &pebbleReader{r: e.db}
}

func (e *pebbleEnv) Flush() error {
	return e.db.Flush()
}

func (e *pebbleEnv) Close() error {
	if e.open != nil {
		e.open.Discard()
	}
	if err := e.db.Flush(); err != nil {
		_ = e.db.Close()
		return err
	}
	return e.db.Close()
}

// readable is the read surface shared by *pebble.DB and an indexed
// *pebble.Batch.
type readable interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type pebbleReader struct {
	r readable
}

func (p *pebbleReader) View(key []byte, fn func([]byte) error) (bool, error) {
	v, closer, err := p.r.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer closer.Close()
	return true, fn(v)
}

func (p *pebbleReader) Get(key []byte) ([]byte, bool, error) {
	var res []byte
	ok, err := p.View(key, func(v []byte) error {
		res = kstate.Copy(v)
		return nil
	})
	return res, ok, err
}

func (p *pebbleReader) Contains(key []byte) (bool, error) {
	return p.View(key, func([]byte) error { return nil })
}

func (p *pebbleReader) Scan(prefix []byte, fn func(key, value []byte) error) error {
	opts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		opts.LowerBound = prefix
		opts.UpperBound = upperBound(prefix)
	}
	it, err := p.r.NewIter(opts)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		val, err := it.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(it.Key(), val); err != nil {
			return err
		}
	}
	return it.Error()
}

// Count scans every key. It is exact, but linear in the size of the
// environment.
func (p *pebbleReader) Count() (int, error) {
	return kstate.CountScan(p, nil)
}

type pebbleTxn struct {
	pebbleReader
	batch     *pebble.Batch
	writeOpts *pebble.WriteOptions
	done      bool
}

func (t *pebbleTxn) Put(k, v []byte) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	return t.batch.Set(k, v, nil)
}

func (t *pebbleTxn) Delete(k []byte) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	return t.batch.Delete(k, nil)
}

func (t *pebbleTxn) Commit() error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	t.done = true
	defer t.batch.Close()
	return t.batch.Commit(t.writeOpts)
}

func (t *pebbleTxn) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = t.batch.Close()
}

// pebbleLogger adapts slog.Logger to pebble's Logger interface.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Fatalf must not return.
func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error(msg)
	panic("pebble: " + msg)
}

// upperBound returns the smallest key greater than every key with prefix, or
// nil if there is none.
func upperBound(prefix []byte) []byte {
	end := kstate.Copy(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

var (
	_ kstate.Backend = (*Backend)(nil)
	_ pebble.Logger  = (*pebbleLogger)(nil)
)
