package channel

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

// recordStoreTag prefixes the record stores of stateful output ports inside
// the node's environment.
const recordStoreTag = 0x02

// RecordStorePrefix returns the key prefix of the record store of port.
func RecordStorePrefix(port knode.PortHandle) []byte {
	return binary.BigEndian.AppendUint16([]byte{recordStoreTag}, uint16(port))
}

// RecordStore retains the latest record per primary key forwarded on a
// stateful output port.
type RecordStore struct {
	prefix []byte
	schema knode.Schema
}

func NewRecordStore(port knode.PortHandle, schema knode.Schema) *RecordStore {
	return &RecordStore{prefix: RecordStorePrefix(port), schema: schema}
}

// Apply mirrors op into txn.
func (s *RecordStore) Apply(txn kstate.Transaction, op knode.Operation) error {
	txn = kstate.Prefixed(txn, s.prefix)

	switch op.Kind {
	case knode.OperationDelete:
		key, err := op.Old.Key(s.schema)
		if err != nil {
			return err
		}
		return txn.Delete(key)
	case knode.OperationUpdate:
		oldKey, err := op.Old.Key(s.schema)
		if err != nil {
			return err
		}
		newKey, err := op.New.Key(s.schema)
		if err != nil {
			return err
		}
		if !bytes.Equal(oldKey, newKey) {
			if err := txn.Delete(oldKey); err != nil {
				return err
			}
		}
		return s.put(txn, newKey, op.New)
	case knode.OperationInsert:
		key, err := op.New.Key(s.schema)
		if err != nil {
			return err
		}
		return s.put(txn, key, op.New)
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

func (s *RecordStore) put(txn kstate.Transaction, key []byte, r knode.Record) error {
	value, err := knode.EncodeRecord(r)
	if err != nil {
		return err
	}
	return txn.Put(key, value)
}

// RecordReader reads a record store through a reader on the upstream node's
// committed state.
type RecordReader struct {
	r kstate.Reader
}

func NewRecordReader(committed kstate.Reader, port knode.PortHandle) *RecordReader {
	return &RecordReader{r: kstate.PrefixedReader(committed, RecordStorePrefix(port))}
}

// Get looks a record up by its primary key values.
func (r *RecordReader) Get(key ...any) (knode.Record, bool, error) {
	k, err := knode.EncodeKey(key...)
	if err != nil {
		return knode.Record{}, false, err
	}
	var rec knode.Record
	ok, err := r.r.View(k, func(v []byte) error {
		var err error
		rec, err = knode.DecodeRecord(v)
		return err
	})
	if err != nil || !ok {
		return knode.Record{}, ok, err
	}
	return rec, true, nil
}

var _ knode.RecordReader = (*RecordReader)(nil)
