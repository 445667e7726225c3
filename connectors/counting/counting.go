// Package counting provides a sink that counts the operations it receives.
package counting

import (
	"context"
	"sync/atomic"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

// Factory builds counting sinks. All sinks built by one factory share its
// counters, so the total survives restarts of the executor within one
// process.
type Factory struct {
	inputs  []knode.PortHandle
	count   atomic.Uint64
	inserts atomic.Uint64
	updates atomic.Uint64
	deletes atomic.Uint64
	commits atomic.Uint64
}

// New returns a counting sink with a single input port.
func New() *Factory {
	return NewWithInputs(1)
}

// NewWithInputs returns a counting sink with n input ports, 0 to n-1.
func NewWithInputs(n int) *Factory {
	ports := make([]knode.PortHandle, n)
	for i := range ports {
		ports[i] = knode.PortHandle(i)
	}
	return &Factory{inputs: ports}
}

func (f *Factory) InputPorts() []knode.PortHandle {
	return f.inputs
}

func (f *Factory) Build(map[knode.PortHandle]knode.Schema) (knode.Sink, error) {
	return &sink{f: f}, nil
}

// Count returns the number of operations received.
func (f *Factory) Count() uint64 {
	return f.count.Load()
}

// Kinds returns the number of inserts, updates and deletes received.
func (f *Factory) Kinds() (inserts, updates, deletes uint64) {
	return f.inserts.Load(), f.updates.Load(), f.deletes.Load()
}

// Commits returns the number of checkpoint commits.
func (f *Factory) Commits() uint64 {
	return f.commits.Load()
}

type sink struct {
	f *Factory
}

func (s *sink) Init(kstate.Transaction) error {
	return nil
}

func (s *sink) Process(_ context.Context, _ knode.PortHandle, op knode.Operation, _ kstate.Transaction, _ map[knode.PortHandle]knode.RecordReader) error {
	s.f.count.Add(1)
	switch op.Kind {
	case knode.OperationInsert:
		s.f.inserts.Add(1)
	case knode.OperationUpdate:
		s.f.updates.Add(1)
	case knode.OperationDelete:
		s.f.deletes.Add(1)
	}
	return nil
}

func (s *sink) Commit(kstate.Transaction) error {
	s.f.commits.Add(1)
	return nil
}

func (s *sink) Close() error {
	return nil
}

var _ knode.SinkFactory = (*Factory)(nil)
