package knode

import (
	"context"

	"github.com/birdayz/kflow/kstate"
)

// SourceFactory describes a source node and builds its runtime instance.
type SourceFactory interface {
	OutputPorts() []OutputPortDef
	// OutputSchema returns the fixed schema of an output port.
	OutputSchema(port PortHandle) (Schema, error)
	Build(outputSchemas map[PortHandle]Schema) (Source, error)
}

// ProcessorFactory describes a processor node and builds its runtime instance.
type ProcessorFactory interface {
	InputPorts() []PortHandle
	OutputPorts() []OutputPortDef
	// OutputSchema derives the schema of an output port from the schemas of
	// the input ports. It must be a pure function and must fail with
	// ErrMissingInputSchema if a required input is absent.
	OutputSchema(port PortHandle, inputSchemas map[PortHandle]Schema) (Schema, error)
	Build(inputSchemas, outputSchemas map[PortHandle]Schema) (Processor, error)
}

// SinkFactory describes a sink node and builds its runtime instance.
type SinkFactory interface {
	InputPorts() []PortHandle
	Build(inputSchemas map[PortHandle]Schema) (Sink, error)
}

// Emit is one operation produced by a source.
type Emit struct {
	Port PortHandle
	Op   Operation
	// Offset is the source's read position after this operation. Offsets
	// start at 1 and never decrease.
	Offset uint64
}

// Source is the runtime instance of a source node.
type Source interface {
	// Open positions the source right after resumeAfter. Zero means start
	// from the beginning.
	Open(ctx context.Context, resumeAfter uint64) error
	// Next blocks until the next operation is available. It returns
	// ErrSourceExhausted when the source is done, and must return promptly
	// once ctx is canceled.
	Next(ctx context.Context) (Emit, error)
	Close() error
}

// Forwarder sends operations to every connection of an output port.
type Forwarder interface {
	Forward(ctx context.Context, port PortHandle, op Operation) error
}

// RecordReader looks up records retained by an upstream stateful output
// port. It sees the upstream node's last committed state.
type RecordReader interface {
	Get(key ...any) (Record, bool, error)
}

// Processor is the runtime instance of a processor node.
type Processor interface {
	// Init is called once before any operation, with a transaction that is
	// committed right after it returns.
	Init(txn kstate.Transaction) error
	Process(ctx context.Context, from PortHandle, op Operation, fw Forwarder, txn kstate.Transaction, readers map[PortHandle]RecordReader) error
	// Commit is called at every checkpoint, before txn is made durable.
	Commit(txn kstate.Transaction) error
	Close() error
}

// Sink is the runtime instance of a sink node.
type Sink interface {
	Init(txn kstate.Transaction) error
	Process(ctx context.Context, from PortHandle, op Operation, txn kstate.Transaction, readers map[PortHandle]RecordReader) error
	Commit(txn kstate.Transaction) error
	Close() error
}
