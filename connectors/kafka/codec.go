package kafka

import (
	"fmt"

	"github.com/birdayz/kflow/knode"
	"github.com/vmihailenco/msgpack/v5"
)

type envelope struct {
	Kind knode.OperationKind `msgpack:"k"`
	Old  []any               `msgpack:"o,omitempty"`
	New  []any               `msgpack:"n,omitempty"`
}

// EncodeOperation serializes op as a Kafka record value.
func EncodeOperation(op knode.Operation) ([]byte, error) {
	return msgpack.Marshal(&envelope{Kind: op.Kind, Old: op.Old.Values, New: op.New.Values})
}

// DecodeOperation parses a record value written by EncodeOperation and checks
// it against schema.
func DecodeOperation(data []byte, schema knode.Schema) (knode.Operation, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return knode.Operation{}, fmt.Errorf("%w: %w", knode.ErrInvalidRecord, err)
	}
	op := knode.Operation{Kind: env.Kind, Old: knode.Record{Values: env.Old}, New: knode.Record{Values: env.New}}

	check := func(r knode.Record) error {
		if len(r.Values) != len(schema.Fields) {
			return fmt.Errorf("%w: %d values for %d fields", knode.ErrInvalidRecord, len(r.Values), len(schema.Fields))
		}
		return nil
	}
	switch op.Kind {
	case knode.OperationInsert:
		return op, check(op.New)
	case knode.OperationDelete:
		return op, check(op.Old)
	case knode.OperationUpdate:
		if err := check(op.Old); err != nil {
			return op, err
		}
		return op, check(op.New)
	default:
		return op, fmt.Errorf("%w: unknown operation kind %d", knode.ErrInvalidRecord, op.Kind)
	}
}
