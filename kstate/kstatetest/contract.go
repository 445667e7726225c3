// Package kstatetest holds the behavioral contract every kstate backend must
// satisfy. Backend packages call RunContractTests from their own tests.
package kstatetest

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kstate"
)

// Durability selects whether reopen tests run.
type Durability int

const (
	Volatile Durability = iota
	Durable
)

func open(t *testing.T, backend kstate.Backend, dir string) kstate.Environment {
	t.Helper()
	env, err := backend.Open(dir)
	assert.NoError(t, err)
	return env
}

func begin(t *testing.T, env kstate.Environment) kstate.Transaction {
	t.Helper()
	txn, err := env.Begin()
	assert.NoError(t, err)
	return txn
}

// RunContractTests exercises backend against the storage contract.
func RunContractTests(t *testing.T, backend kstate.Backend, durability Durability) {
	t.Run("round trip", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		cases := []struct {
			key, value []byte
		}{
			{[]byte("k"), []byte("v")},
			{[]byte{}, []byte("empty key")},
			{[]byte("empty value"), []byte{}},
			{[]byte{}, []byte{}},
			{[]byte{0, 0xff, 0}, []byte{0xff, 0, 0xff}},
		}
		for _, tc := range cases {
			t.Run(fmt.Sprintf("%x=%x", tc.key, tc.value), func(t *testing.T) {
				txn := begin(t, env)
				defer txn.Discard()

				assert.NoError(t, txn.Put(tc.key, tc.value))
				got, ok, err := txn.Get(tc.key)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.True(t, got != nil)
				assert.Equal(t, tc.value, got)

				contains, err := txn.Contains(tc.key)
				assert.NoError(t, err)
				assert.True(t, contains)

				assert.NoError(t, txn.Delete(tc.key))
				got, ok, err = txn.Get(tc.key)
				assert.NoError(t, err)
				assert.False(t, ok)
				assert.Zero(t, got)

				contains, err = txn.Contains(tc.key)
				assert.NoError(t, err)
				assert.False(t, contains)
			})
		}
	})

	t.Run("commit publishes to reader", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		assert.NoError(t, txn.Put([]byte("a"), []byte("1")))

		_, ok, err := env.Reader().Get([]byte("a"))
		assert.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, txn.Commit())

		got, ok, err := env.Reader().Get([]byte("a"))
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("1"), got)
	})

	t.Run("discard drops writes", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		assert.NoError(t, txn.Put([]byte("a"), []byte("1")))
		txn.Discard()

		ok, err := env.Reader().Contains([]byte("a"))
		assert.NoError(t, err)
		assert.False(t, ok)

		// Discard after discard is a no-op, the txn is unusable.
		txn.Discard()
		assert.IsError(t, txn.Put([]byte("a"), nil), kstate.ErrTransactionClosed)
	})

	t.Run("use after commit", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		assert.NoError(t, txn.Commit())
		assert.IsError(t, txn.Commit(), kstate.ErrTransactionClosed)
		assert.IsError(t, txn.Put([]byte("a"), []byte("1")), kstate.ErrTransactionClosed)
		assert.IsError(t, txn.Delete([]byte("a")), kstate.ErrTransactionClosed)
		txn.Discard()

		next := begin(t, env)
		next.Discard()
	})

	t.Run("single open transaction", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		_, err := env.Begin()
		assert.Error(t, err)
		txn.Discard()

		txn = begin(t, env)
		txn.Discard()
	})

	t.Run("scan in key order", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		for _, k := range []string{"b/2", "a/1", "b/1", "c", "b/3"} {
			assert.NoError(t, txn.Put([]byte(k), []byte("v"+k)))
		}
		assert.NoError(t, txn.Commit())

		txn = begin(t, env)
		defer txn.Discard()
		assert.NoError(t, txn.Delete([]byte("b/2")))
		assert.NoError(t, txn.Put([]byte("b/0"), []byte("vb/0")))

		var keys []string
		err := txn.Scan([]byte("b/"), func(k, v []byte) error {
			assert.Equal(t, "v"+string(k), string(v))
			keys = append(keys, string(k))
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"b/0", "b/1", "b/3"}, keys)

		keys = nil
		err = env.Reader().Scan([]byte("b/"), func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"b/1", "b/2", "b/3"}, keys)

		n, err := env.Reader().Count()
		assert.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("scan stops on error", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		assert.NoError(t, txn.Put([]byte("a"), []byte("1")))
		assert.NoError(t, txn.Put([]byte("b"), []byte("2")))
		assert.NoError(t, txn.Commit())

		stop := errors.New("stop")
		calls := 0
		err := env.Reader().Scan(nil, func(_, _ []byte) error {
			calls++
			return stop
		})
		assert.IsError(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("view is scoped", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		assert.NoError(t, txn.Put([]byte("a"), []byte("value")))
		assert.NoError(t, txn.Commit())

		var owned []byte
		ok, err := env.Reader().View([]byte("a"), func(v []byte) error {
			owned = kstate.Copy(v)
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("value"), owned)

		called := false
		ok, err = env.Reader().View([]byte("missing"), func([]byte) error {
			called = true
			return nil
		})
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, called)
	})

	t.Run("prefixed views are isolated", func(t *testing.T) {
		env := open(t, backend, t.TempDir())
		defer env.Close()

		txn := begin(t, env)
		left := kstate.Prefixed(txn, []byte{1})
		right := kstate.Prefixed(txn, []byte{2})
		assert.NoError(t, left.Put([]byte("k"), []byte("left")))
		assert.NoError(t, right.Put([]byte("k"), []byte("right")))
		assert.NoError(t, txn.Commit())

		got, ok, err := kstate.PrefixedReader(env.Reader(), []byte{2}).Get([]byte("k"))
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("right"), got)

		n, err := kstate.PrefixedReader(env.Reader(), []byte{1}).Count()
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	if durability != Durable {
		return
	}

	t.Run("reopen keeps committed data", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "env")
		env := open(t, backend, dir)

		txn := begin(t, env)
		assert.NoError(t, txn.Put([]byte("committed"), []byte{}))
		assert.NoError(t, txn.Commit())

		txn = begin(t, env)
		assert.NoError(t, txn.Put([]byte("pending"), []byte("x")))
		assert.NoError(t, env.Flush())
		assert.NoError(t, env.Close())

		env = open(t, backend, dir)
		defer env.Close()

		got, ok, err := env.Reader().Get([]byte("committed"))
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte{}, got)

		ok, err = env.Reader().Contains([]byte("pending"))
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}
