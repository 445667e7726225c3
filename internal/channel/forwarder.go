package channel

import (
	"context"
	"fmt"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

type outputPort struct {
	def    knode.OutputPortDef
	schema knode.Schema
	edges  []*Edge
	store  *RecordStore
}

// Forwarder routes the output of one node to its outgoing edges. It
// implements knode.Forwarder.
type Forwarder struct {
	node  kdag.NodeHandle
	ports map[knode.PortHandle]*outputPort
	edges []*Edge
	txn   kstate.Transaction
}

// NewForwarder builds a forwarder for node. edges must all originate at
// node; ports without edges drop their operations.
func NewForwarder(node kdag.NodeHandle, defs []knode.OutputPortDef, schemas map[knode.PortHandle]knode.Schema, edges []*Edge) (*Forwarder, error) {
	f := &Forwarder{
		node:  node,
		ports: make(map[knode.PortHandle]*outputPort, len(defs)),
		edges: edges,
	}
	for _, def := range defs {
		p := &outputPort{def: def, schema: schemas[def.Handle]}
		if def.Options.Stateful {
			p.store = NewRecordStore(def.Handle, p.schema)
		}
		f.ports[def.Handle] = p
	}
	for _, e := range edges {
		if e.From.Node != node {
			return nil, fmt.Errorf("edge %s does not originate at %s", e, node)
		}
		p, ok := f.ports[e.From.Port]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no output port %d", knode.ErrInvalidPortHandle, node, e.From.Port)
		}
		p.edges = append(p.edges, e)
	}
	return f, nil
}

// SetTransaction sets the transaction that stateful ports record into. It
// must be called again after every commit.
func (f *Forwarder) SetTransaction(txn kstate.Transaction) {
	f.txn = txn
}

func (f *Forwarder) Forward(ctx context.Context, port knode.PortHandle, op knode.Operation) error {
	p, ok := f.ports[port]
	if !ok {
		return fmt.Errorf("%w: %s has no output port %d", knode.ErrInvalidPortHandle, f.node, port)
	}
	if p.store != nil {
		if f.txn == nil {
			return fmt.Errorf("stateful port %d of %s used without a transaction", port, f.node)
		}
		if err := p.store.Apply(f.txn, op); err != nil {
			return fmt.Errorf("record store of port %d: %w", port, err)
		}
	}

	msg := OperationMessage(op)
	for _, e := range p.edges {
		if err := e.Send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// SendBarrier sends a barrier on every outgoing edge. Each edge gets its own
// copy.
func (f *Forwarder) SendBarrier(ctx context.Context, b Barrier) error {
	for _, e := range f.edges {
		if err := e.Send(ctx, BarrierMessage(b.Clone())); err != nil {
			return err
		}
	}
	return nil
}

// SendTerminate sends a terminate message on every outgoing edge.
func (f *Forwarder) SendTerminate(ctx context.Context) error {
	for _, e := range f.edges {
		if err := e.Send(ctx, TerminateMessage()); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every outgoing edge.
func (f *Forwarder) Close() {
	for _, e := range f.edges {
		e.Close()
	}
}

var _ knode.Forwarder = (*Forwarder)(nil)
