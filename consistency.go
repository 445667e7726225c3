package kflow

import (
	"fmt"

	"github.com/birdayz/kflow/internal/checkpoint"
	"github.com/birdayz/kflow/internal/statedir"
	"github.com/birdayz/kflow/kdag"
	"go.uber.org/multierr"
)

// Consistency describes how far the state downstream of one source caught up
// with it.
type Consistency = checkpoint.Consistency

// ConsistencyKind is FullyConsistent or PartiallyConsistent.
type ConsistencyKind = checkpoint.Kind

const (
	FullyConsistent     = checkpoint.FullyConsistent
	PartiallyConsistent = checkpoint.PartiallyConsistent
)

// MetadataManager reads the checkpoint records a run left behind. It locks
// every node directory, so it can only be used while no executor runs on
// the same directory.
type MetadataManager struct {
	dag     *kdag.Dag
	envs    map[kdag.NodeHandle]*statedir.Env
	records map[kdag.NodeHandle]checkpoint.Record
}

// NewMetadataManager opens the environment of every node of dag below dir
// and loads its checkpoint record. Nodes that never ran have an empty
// record; no state is created for them.
func NewMetadataManager(dag *kdag.Dag, dir string, opts ...Option) (*MetadataManager, error) {
	cfg := newConfig(opts)
	m := &MetadataManager{
		dag:     dag,
		envs:    make(map[kdag.NodeHandle]*statedir.Env),
		records: make(map[kdag.NodeHandle]checkpoint.Record),
	}
	for _, h := range dag.Nodes() {
		exists, err := statedir.Exists(dir, h)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("stat state of %s: %w", h, err), m.Close())
		}
		if !exists {
			m.records[h] = checkpoint.NewRecord()
			continue
		}
		env, err := statedir.Open(dir, h, cfg.backend)
		if err != nil {
			return nil, multierr.Append(err, m.Close())
		}
		m.envs[h] = env

		rec, _, err := checkpoint.Read(env.Reader())
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("read checkpoint of %s: %w", h, err), m.Close())
		}
		m.records[h] = rec
	}
	return m, nil
}

// CheckpointConsistency classifies every source of the DAG.
func (m *MetadataManager) CheckpointConsistency() map[kdag.NodeHandle]Consistency {
	return checkpoint.Classify(m.dag, m.records)
}

// ResumeOffsets returns, per source, the offset after which a restart
// continues.
func (m *MetadataManager) ResumeOffsets() map[kdag.NodeHandle]uint64 {
	res := make(map[kdag.NodeHandle]uint64)
	for h, c := range m.CheckpointConsistency() {
		res[h] = c.ResumeOffset()
	}
	return res
}

// Emitted returns the last offset source committed.
func (m *MetadataManager) Emitted(source kdag.NodeHandle) uint64 {
	return m.records[source].Emitted
}

// Close releases every environment and directory lock.
func (m *MetadataManager) Close() error {
	var err error
	for h, env := range m.envs {
		if cerr := env.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close state of %s: %w", h, cerr))
		}
		delete(m.envs, h)
	}
	return err
}
