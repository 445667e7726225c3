// Package memory implements the kstate contract with an in-memory map.
//
// With a directory set, every commit rewrites a snapshot file atomically, so
// committed state survives a restart. Without one the environment is
// volatile.
package memory

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/birdayz/kflow/kstate"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotFile = "state.snapshot"

// Backend opens in-memory environments.
type Backend struct {
	// Durable persists a snapshot into the environment directory on every
	// commit.
	Durable bool
}

func New() *Backend {
	return &Backend{}
}

// NewDurable returns a backend that snapshots every commit to disk.
func NewDurable() *Backend {
	return &Backend{Durable: true}
}

func (b *Backend) Name() string {
	if b.Durable {
		return "memory-durable"
	}
	return "memory"
}

func (b *Backend) Open(dir string) (kstate.Environment, error) {
	env := &memoryEnv{data: map[string][]byte{}}
	if !b.Durable {
		return env, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	env.path = filepath.Join(dir, snapshotFile)

	raw, err := os.ReadFile(env.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read snapshot: %w", err)
	default:
		if err := msgpack.Unmarshal(raw, &env.data); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", env.path, err)
		}
		if env.data == nil {
			env.data = map[string][]byte{}
		}
	}
	return env, nil
}

type memoryEnv struct {
	mu     sync.RWMutex
	data   map[string][]byte
	path   string
	open   *memoryTxn
	closed bool
}

func (e *memoryEnv) Begin() (kstate.Transaction, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, kstate.ErrEnvironmentClosed
	}
	if e.open != nil && !e.open.done {
		return nil, errors.New("memory: a transaction is already open")
	}
	e.open = &memoryTxn{env: e, writes: map[string][]byte{}}
	return e.open, nil
}

func (e *memoryEnv) Reader() kstate.Reader {
	return &committedReader{env: e}
}

func (e *memoryEnv) Flush() error {
	return nil
}

func (e *memoryEnv) Close() error {
	if e.open != nil {
		e.open.Discard()
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// apply publishes the writes of a transaction. A nil value is a deletion.
// A durable environment writes the snapshot of the merged state before
// publishing it, so readers never see state that failed to persist.
func (e *memoryEnv) apply(writes map[string][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return kstate.ErrEnvironmentClosed
	}
	if e.path == "" {
		merge(e.data, writes)
		return nil
	}

	next := maps.Clone(e.data)
	merge(next, writes)
	raw, err := msgpack.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeFileAtomic(e.path, raw); err != nil {
		return err
	}
	e.data = next
	return nil
}

func merge(data, writes map[string][]byte) {
	for k, v := range writes {
		if v == nil {
			delete(data, k)
			continue
		}
		data[k] = v
	}
}

// writeFileAtomic writes to a temp file, fsyncs it, renames it over path and
// fsyncs the parent directory.
func writeFileAtomic(path string, raw []byte) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := file.Write(raw); err != nil {
		_ = file.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	if runtime.GOOS == "windows" {
		return nil
	}
	dirFile, err := os.Open(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("open directory for fsync: %w", err)
	}
	defer func() { _ = dirFile.Close() }()
	if err := dirFile.Sync(); err != nil {
		return fmt.Errorf("fsync directory: %w", err)
	}
	return nil
}

type committedReader struct {
	env *memoryEnv
}

func (r *committedReader) View(key []byte, fn func([]byte) error) (bool, error) {
	r.env.mu.RLock()
	v, ok := r.env.data[string(key)]
	r.env.mu.RUnlock()
	if !ok {
		return false, nil
	}
	// Committed values are never mutated in place, so the slice stays valid.
	return true, fn(v)
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

func (r *committedReader) Scan(prefix []byte, fn func(key, value []byte) error) error {
	r.env.mu.RLock()
	entries := collect(r.env.data, nil, string(prefix))
	r.env.mu.RUnlock()
	return entries.each(fn)
}

func (r *committedReader) Count() (int, error) {
	r.env.mu.RLock()
	defer r.env.mu.RUnlock()
	return len(r.env.data), nil
}

type entries struct {
	keys   []string
	values map[string][]byte
}

func (e entries) each(fn func(key, value []byte) error) error {
	for _, k := range e.keys {
		if err := fn([]byte(k), e.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// collect merges committed data and pending writes below prefix into a sorted
// snapshot.
func collect(data, writes map[string][]byte, prefix string) entries {
	res := entries{values: map[string][]byte{}}
	for k, v := range data {
		if strings.HasPrefix(k, prefix) {
			res.values[k] = v
		}
	}
	for k, v := range writes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if v == nil {
			delete(res.values, k)
			continue
		}
		res.values[k] = v
	}
	res.keys = make([]string, 0, len(res.values))
	for k := range res.values {
		res.keys = append(res.keys, k)
	}
	slices.Sort(res.keys)
	return res
}

type memoryTxn struct {
	env    *memoryEnv
	writes map[string][]byte
	done   bool
}

func (t *memoryTxn) View(key []byte, fn func([]byte) error) (bool, error) {
	if t.done {
		return false, kstate.ErrTransactionClosed
	}
	if v, ok := t.writes[string(key)]; ok {
		if v == nil {
			return false, nil
		}
		return true, fn(v)
	}
	return t.env.Reader().View(key, fn)
}

func (t *memoryTxn) Get(key []byte) ([]byte, bool, error) {
	var res []byte
	ok, err := t.View(key, func(v []byte) error {
		res = kstate.Copy(v)
		return nil
	})
	return res, ok, err
}

func (t *memoryTxn) Contains(key []byte) (bool, error) {
	return t.View(key, func([]byte) error { return nil })
}

func (t *memoryTxn) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	t.env.mu.RLock()
	entries := collect(t.env.data, t.writes, string(prefix))
	t.env.mu.RUnlock()
	return entries.each(fn)
}

func (t *memoryTxn) Count() (int, error) {
	return kstate.CountScan(t, nil)
}

func (t *memoryTxn) Put(key, value []byte) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	t.writes[string(key)] = kstate.Copy(value)
	return nil
}

func (t *memoryTxn) Delete(key []byte) error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	t.writes[string(key)] = nil
	return nil
}

func (t *memoryTxn) Commit() error {
	if t.done {
		return kstate.ErrTransactionClosed
	}
	t.done = true
	return t.env.apply(t.writes)
}

func (t *memoryTxn) Discard() {
	t.done = true
	t.writes = nil
}

var _ kstate.Backend = (*Backend)(nil)
