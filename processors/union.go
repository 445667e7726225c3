package processors

import (
	"context"
	"fmt"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

// NewUnion returns a processor with n input ports, 0 to n-1, that forwards
// everything it receives to its single output. All inputs must carry the
// same schema.
func NewUnion(n int) knode.ProcessorFactory {
	ports := make([]knode.PortHandle, n)
	for i := range ports {
		ports[i] = knode.PortHandle(i)
	}
	return &unionFactory{inputs: ports}
}

type unionFactory struct {
	inputs []knode.PortHandle
}

func (f *unionFactory) InputPorts() []knode.PortHandle {
	return f.inputs
}

func (f *unionFactory) OutputPorts() []knode.OutputPortDef {
	return []knode.OutputPortDef{knode.NewOutputPortDef(knode.DefaultPortHandle, knode.OutputPortOptions{})}
}

func (f *unionFactory) OutputSchema(_ knode.PortHandle, inputs map[knode.PortHandle]knode.Schema) (knode.Schema, error) {
	if len(f.inputs) == 0 {
		return knode.Schema{}, fmt.Errorf("%w: union without inputs", knode.ErrInvalidSchema)
	}
	first, err := knode.SchemaRequired(inputs, f.inputs[0])
	if err != nil {
		return knode.Schema{}, err
	}
	for _, port := range f.inputs[1:] {
		schema, err := knode.SchemaRequired(inputs, port)
		if err != nil {
			return knode.Schema{}, err
		}
		if !schema.Equal(first) {
			return knode.Schema{}, fmt.Errorf("%w: union input %d differs from input %d", knode.ErrInvalidSchema, port, f.inputs[0])
		}
	}
	return first, nil
}

func (f *unionFactory) Build(_, _ map[knode.PortHandle]knode.Schema) (knode.Processor, error) {
	return unionProcessor{}, nil
}

type unionProcessor struct{}

func (unionProcessor) Init(kstate.Transaction) error { return nil }

func (unionProcessor) Process(ctx context.Context, _ knode.PortHandle, op knode.Operation, fw knode.Forwarder, _ kstate.Transaction, _ map[knode.PortHandle]knode.RecordReader) error {
	return fw.Forward(ctx, knode.DefaultPortHandle, op)
}

func (unionProcessor) Commit(kstate.Transaction) error { return nil }

func (unionProcessor) Close() error { return nil }
