package knode

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Record is one row. Values are positionally aligned with the schema fields.
type Record struct {
	Values []any
}

// NewRecord builds a record from values.
func NewRecord(values ...any) Record {
	return Record{Values: values}
}

// KeyValues returns the values of the schema's primary key columns, or all
// values if the schema has no primary key.
func (r Record) KeyValues(schema Schema) ([]any, error) {
	if len(schema.PrimaryIndex) == 0 {
		return r.Values, nil
	}
	key := make([]any, len(schema.PrimaryIndex))
	for i, idx := range schema.PrimaryIndex {
		if idx >= len(r.Values) {
			return nil, fmt.Errorf("%w: record has %d values, key needs index %d", ErrInvalidRecord, len(r.Values), idx)
		}
		key[i] = r.Values[idx]
	}
	return key, nil
}

// Key encodes the record's primary key.
func (r Record) Key(schema Schema) ([]byte, error) {
	values, err := r.KeyValues(schema)
	if err != nil {
		return nil, err
	}
	return EncodeKey(values...)
}

// EncodeKey encodes key values the same way Record.Key does, so that a
// RecordReader can be queried with bare values.
func EncodeKey(values ...any) ([]byte, error) {
	return msgpack.Marshal(values)
}

// EncodeRecord serializes a record for storage.
func EncodeRecord(r Record) ([]byte, error) {
	return msgpack.Marshal(r.Values)
}

// DecodeRecord deserializes a record produced by EncodeRecord. The result does
// not reference data.
func DecodeRecord(data []byte) (Record, error) {
	var values []any
	if err := msgpack.Unmarshal(data, &values); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return Record{Values: values}, nil
}

// OperationKind is the kind of mutation an Operation carries.
type OperationKind uint8

const (
	OperationInsert OperationKind = iota
	OperationUpdate
	OperationDelete
)

func (k OperationKind) String() string {
	switch k {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one record mutation. Insert carries New, Delete carries Old and
// Update carries both.
type Operation struct {
	Kind OperationKind
	Old  Record
	New  Record
}

// Insert returns an insert operation.
func Insert(r Record) Operation {
	return Operation{Kind: OperationInsert, New: r}
}

// Update returns an update operation.
func Update(old, new Record) Operation {
	return Operation{Kind: OperationUpdate, Old: old, New: new}
}

// Delete returns a delete operation.
func Delete(r Record) Operation {
	return Operation{Kind: OperationDelete, Old: r}
}

// Current returns the record that identifies the operation: New for inserts
// and updates, Old for deletes.
func (o Operation) Current() Record {
	if o.Kind == OperationDelete {
		return o.Old
	}
	return o.New
}
