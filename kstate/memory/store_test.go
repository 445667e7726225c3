package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kstate/kstatetest"
)

func TestBackend(t *testing.T) {
	kstatetest.RunContractTests(t, New(), kstatetest.Volatile)
}

func TestDurableBackend(t *testing.T) {
	kstatetest.RunContractTests(t, NewDurable(), kstatetest.Durable)
}

func TestCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, writeFileAtomic(filepath.Join(dir, snapshotFile), []byte{0xc1}))

	_, err := NewDurable().Open(dir)
	assert.Error(t, err)
}

func TestFailedSnapshotIsNotVisible(t *testing.T) {
	dir := t.TempDir()
	env, err := NewDurable().Open(dir)
	assert.NoError(t, err)
	defer env.Close()

	txn, err := env.Begin()
	assert.NoError(t, err)
	assert.NoError(t, txn.Put([]byte("a"), []byte("1")))
	assert.NoError(t, txn.Commit())

	// A directory in place of the temp file makes the snapshot write fail.
	assert.NoError(t, os.Mkdir(filepath.Join(dir, snapshotFile+".tmp"), 0o755))

	txn, err = env.Begin()
	assert.NoError(t, err)
	assert.NoError(t, txn.Put([]byte("b"), []byte("2")))
	assert.NoError(t, txn.Delete([]byte("a")))
	assert.Error(t, txn.Commit())

	ok, err := env.Reader().Contains([]byte("a"))
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.Reader().Contains([]byte("b"))
	assert.NoError(t, err)
	assert.False(t, ok)

	reopened, err := NewDurable().Open(dir)
	assert.NoError(t, err)
	v, ok, err := reopened.Reader().Get([]byte("a"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}
