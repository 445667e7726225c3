package processors

import (
	"context"
	"fmt"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

// CounterSchema is the output schema of a counter: the grouping key and the
// number of live records with that key.
var CounterSchema = knode.Schema{}.
	Field(knode.FieldDefinition{Name: "key", Type: knode.FieldTypeString}, true).
	Field(knode.FieldDefinition{Name: "count", Type: knode.FieldTypeInt}, false)

// NewCounter returns a processor that counts records per value of the given
// input column. Every change of a count is forwarded as an insert, update or
// delete of a CounterSchema record. Its output port is stateful, so
// downstream nodes can look counts up by key.
func NewCounter(column int) knode.ProcessorFactory {
	return &counterFactory{column: column}
}

type counterFactory struct {
	column int
}

func (f *counterFactory) InputPorts() []knode.PortHandle {
	return []knode.PortHandle{knode.DefaultPortHandle}
}

func (f *counterFactory) OutputPorts() []knode.OutputPortDef {
	return []knode.OutputPortDef{knode.NewOutputPortDef(knode.DefaultPortHandle, knode.OutputPortOptions{Stateful: true})}
}

func (f *counterFactory) OutputSchema(_ knode.PortHandle, inputs map[knode.PortHandle]knode.Schema) (knode.Schema, error) {
	in, err := knode.SchemaRequired(inputs, knode.DefaultPortHandle)
	if err != nil {
		return knode.Schema{}, err
	}
	if f.column < 0 || f.column >= len(in.Fields) {
		return knode.Schema{}, fmt.Errorf("%w: column %d out of range (%d fields)", knode.ErrInvalidSchema, f.column, len(in.Fields))
	}
	return CounterSchema, nil
}

func (f *counterFactory) Build(_, _ map[knode.PortHandle]knode.Schema) (knode.Processor, error) {
	return &Counter{
		column: f.column,
		counts: kstate.NewMap("count/", kserde.String, kserde.Int64),
	}, nil
}

// Counter is the runtime instance built by NewCounter.
type Counter struct {
	column int
	counts *kstate.Map[string, int64]
}

func (c *Counter) Init(kstate.Transaction) error {
	return nil
}

func (c *Counter) Process(ctx context.Context, _ knode.PortHandle, op knode.Operation, fw knode.Forwarder, txn kstate.Transaction, _ map[knode.PortHandle]knode.RecordReader) error {
	switch op.Kind {
	case knode.OperationInsert:
		return c.add(ctx, fw, txn, op.New, 1)
	case knode.OperationDelete:
		return c.add(ctx, fw, txn, op.Old, -1)
	case knode.OperationUpdate:
		oldKey, err := c.key(op.Old)
		if err != nil {
			return err
		}
		newKey, err := c.key(op.New)
		if err != nil {
			return err
		}
		if oldKey == newKey {
			return nil
		}
		if err := c.add(ctx, fw, txn, op.Old, -1); err != nil {
			return err
		}
		return c.add(ctx, fw, txn, op.New, 1)
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

func (c *Counter) key(r knode.Record) (string, error) {
	if c.column >= len(r.Values) {
		return "", fmt.Errorf("%w: record has %d values, counting column %d", knode.ErrInvalidRecord, len(r.Values), c.column)
	}
	return fmt.Sprint(r.Values[c.column]), nil
}

func (c *Counter) add(ctx context.Context, fw knode.Forwarder, txn kstate.Transaction, r knode.Record, delta int64) error {
	key, err := c.key(r)
	if err != nil {
		return err
	}
	old, _, err := c.counts.Get(txn, key)
	if err != nil {
		return err
	}
	updated := old + delta
	if updated < 0 {
		return fmt.Errorf("count of %q would drop below zero", key)
	}

	var out knode.Operation
	switch {
	case old == 0:
		out = knode.Insert(knode.NewRecord(key, updated))
	case updated == 0:
		out = knode.Delete(knode.NewRecord(key, old))
	default:
		out = knode.Update(knode.NewRecord(key, old), knode.NewRecord(key, updated))
	}

	if updated == 0 {
		err = c.counts.Delete(txn, key)
	} else {
		err = c.counts.Put(txn, key, updated)
	}
	if err != nil {
		return err
	}
	return fw.Forward(ctx, knode.DefaultPortHandle, out)
}

func (c *Counter) Commit(kstate.Transaction) error {
	return nil
}

func (c *Counter) Close() error {
	return nil
}

var _ knode.Processor = (*Counter)(nil)
