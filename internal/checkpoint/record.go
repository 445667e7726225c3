// Package checkpoint persists the per-node checkpoint metadata and derives the
// consistency of a finished run from it.
//
// Every node keeps one Record under a reserved key of its own environment.
// The record is written in the same transaction as the node's state, so state
// and offsets always agree.
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
	"github.com/vmihailenco/msgpack/v5"
)

// Version is the current record format version.
const Version = 1

// MetadataKey is the reserved key of the record. It lives outside the key
// spaces handed to node implementations.
var MetadataKey = []byte{0x00, 'm', 'e', 't', 'a'}

var ErrUnknownVersion = errors.New("unknown checkpoint record version")

// Record is the checkpoint metadata of one node.
type Record struct {
	Version int `msgpack:"v"`
	// Emitted is set by sources: the last offset whose operations were
	// forwarded before the commit.
	Emitted uint64 `msgpack:"emitted,omitempty"`
	// Inputs is set by processors and sinks: per input port and source,
	// the highest source offset covered by the committed state.
	Inputs map[knode.PortHandle]map[string]uint64 `msgpack:"inputs,omitempty"`
}

// NewRecord returns an empty record of the current version.
func NewRecord() Record {
	return Record{Version: Version, Inputs: map[knode.PortHandle]map[string]uint64{}}
}

// Input returns the committed offset of source on port, zero if none.
func (r Record) Input(port knode.PortHandle, source kdag.NodeHandle) uint64 {
	return r.Inputs[port][source.String()]
}

// Advance raises the offsets of port to those of barrier.
func (r *Record) Advance(port knode.PortHandle, barrier map[kdag.NodeHandle]uint64) {
	if r.Inputs == nil {
		r.Inputs = map[knode.PortHandle]map[string]uint64{}
	}
	offsets, ok := r.Inputs[port]
	if !ok {
		offsets = make(map[string]uint64, len(barrier))
		r.Inputs[port] = offsets
	}
	for src, off := range barrier {
		if off > offsets[src.String()] {
			offsets[src.String()] = off
		}
	}
}

// Read loads the record of a node. A missing record is not an error.
func Read(r kstate.Reader) (Record, bool, error) {
	var rec Record
	ok, err := r.View(MetadataKey, func(raw []byte) error {
		return msgpack.Unmarshal(raw, &rec)
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("decode checkpoint record: %w", err)
	}
	if !ok {
		return NewRecord(), false, nil
	}
	if rec.Version != Version {
		return Record{}, false, fmt.Errorf("%w: %d", ErrUnknownVersion, rec.Version)
	}
	if rec.Inputs == nil {
		rec.Inputs = map[knode.PortHandle]map[string]uint64{}
	}
	return rec, true, nil
}

// Write stores rec in txn. It becomes durable with the transaction.
func Write(txn kstate.Transaction, rec Record) error {
	rec.Version = Version
	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode checkpoint record: %w", err)
	}
	return txn.Put(MetadataKey, raw)
}
