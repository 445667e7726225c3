// Package statedir lays out the state directory of a pipeline: one
// subdirectory per node, each guarded by an exclusive lock while an
// environment is open on it.
package statedir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kstate"
	"go.uber.org/multierr"
)

const envDir = "env"

// NodeDir returns the directory of node below root.
func NodeDir(root string, node kdag.NodeHandle) string {
	return filepath.Join(root, node.String())
}

// Env is an environment opened on a locked node directory.
type Env struct {
	kstate.Environment
	lock *DirectoryLock
}

// Open locks the directory of node and opens its environment with backend.
func Open(root string, node kdag.NodeHandle, backend kstate.Backend) (*Env, error) {
	dir := NodeDir(root, node)
	lock := NewDirectoryLock(dir)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock state of %s: %w", node, err)
	}
	env, err := backend.Open(filepath.Join(dir, envDir))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open %s state of %s: %w", backend.Name(), node, err), lock.Unlock())
	}
	return &Env{Environment: env, lock: lock}, nil
}

// Exists reports whether node has state below root.
func Exists(root string, node kdag.NodeHandle) (bool, error) {
	_, err := os.Stat(filepath.Join(NodeDir(root, node), envDir))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Close closes the environment, then releases the lock.
func (e *Env) Close() error {
	return multierr.Append(e.Environment.Close(), e.lock.Unlock())
}
