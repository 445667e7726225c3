package processors

import (
	"context"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

// ForEach returns a processor that calls fn for every operation and forwards
// it unchanged. fn runs on the node's goroutine.
func ForEach(fn func(knode.Operation)) knode.ProcessorFactory {
	return &forEachFactory{fn: fn}
}

// NewIdentity returns a processor that forwards every operation unchanged.
func NewIdentity() knode.ProcessorFactory {
	return ForEach(nil)
}

type forEachFactory struct {
	fn func(knode.Operation)
}

func (f *forEachFactory) InputPorts() []knode.PortHandle {
	return []knode.PortHandle{knode.DefaultPortHandle}
}

func (f *forEachFactory) OutputPorts() []knode.OutputPortDef {
	return []knode.OutputPortDef{knode.NewOutputPortDef(knode.DefaultPortHandle, knode.OutputPortOptions{})}
}

func (f *forEachFactory) OutputSchema(_ knode.PortHandle, inputs map[knode.PortHandle]knode.Schema) (knode.Schema, error) {
	return knode.SchemaRequired(inputs, knode.DefaultPortHandle)
}

func (f *forEachFactory) Build(_, _ map[knode.PortHandle]knode.Schema) (knode.Processor, error) {
	return &ForEachProcessor{fn: f.fn}, nil
}

type ForEachProcessor struct {
	fn func(knode.Operation)
}

func (p *ForEachProcessor) Init(kstate.Transaction) error {
	return nil
}

func (p *ForEachProcessor) Process(ctx context.Context, _ knode.PortHandle, op knode.Operation, fw knode.Forwarder, _ kstate.Transaction, _ map[knode.PortHandle]knode.RecordReader) error {
	if p.fn != nil {
		p.fn(op)
	}
	return fw.Forward(ctx, knode.DefaultPortHandle, op)
}

func (p *ForEachProcessor) Commit(kstate.Transaction) error {
	return nil
}

func (p *ForEachProcessor) Close() error {
	return nil
}

var _ knode.Processor = (*ForEachProcessor)(nil)
