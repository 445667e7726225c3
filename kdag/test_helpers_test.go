package kdag

import (
	"context"
	"errors"
	"fmt"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

var testSchema = knode.Schema{}.
	Field(knode.FieldDefinition{Name: "id", Type: knode.FieldTypeInt}, true).
	Field(knode.FieldDefinition{Name: "value", Type: knode.FieldTypeString}, false)

type testSource struct {
	ports []knode.PortHandle
}

func (s *testSource) OutputPorts() []knode.OutputPortDef {
	if len(s.ports) == 0 {
		return []knode.OutputPortDef{{Handle: knode.DefaultPortHandle}}
	}
	defs := make([]knode.OutputPortDef, len(s.ports))
	for i, p := range s.ports {
		defs[i] = knode.OutputPortDef{Handle: p}
	}
	return defs
}

func (s *testSource) OutputSchema(knode.PortHandle) (knode.Schema, error) {
	return testSchema, nil
}

func (s *testSource) Build(map[knode.PortHandle]knode.Schema) (knode.Source, error) {
	return nil, errors.New("not buildable")
}

// testProcessor forwards the schema of its first input port.
type testProcessor struct {
	inputs  []knode.PortHandle
	failing bool
}

func (p *testProcessor) InputPorts() []knode.PortHandle {
	if len(p.inputs) == 0 {
		return []knode.PortHandle{knode.DefaultPortHandle}
	}
	return p.inputs
}

func (p *testProcessor) OutputPorts() []knode.OutputPortDef {
	return []knode.OutputPortDef{{Handle: knode.DefaultPortHandle}}
}

func (p *testProcessor) OutputSchema(_ knode.PortHandle, inputs map[knode.PortHandle]knode.Schema) (knode.Schema, error) {
	if p.failing {
		return knode.Schema{}, errors.New("boom")
	}
	return knode.SchemaRequired(inputs, p.InputPorts()[0])
}

func (p *testProcessor) Build(_, _ map[knode.PortHandle]knode.Schema) (knode.Processor, error) {
	return nil, errors.New("not buildable")
}

type testSink struct{}

func (s *testSink) InputPorts() []knode.PortHandle {
	return []knode.PortHandle{knode.DefaultPortHandle}
}

func (s *testSink) Build(map[knode.PortHandle]knode.Schema) (knode.Sink, error) {
	return nopSink{}, nil
}

type nopSink struct{}

func (nopSink) Init(kstate.Transaction) error { return nil }
func (nopSink) Process(context.Context, knode.PortHandle, knode.Operation, kstate.Transaction, map[knode.PortHandle]knode.RecordReader) error {
	return nil
}
func (nopSink) Commit(kstate.Transaction) error { return nil }
func (nopSink) Close() error                    { return nil }

func ep(id string, port knode.PortHandle) Endpoint {
	return NewEndpoint(NewNodeHandle(id), port)
}

// chain builds source -> proc-0 -> ... -> proc-(n-1) -> sink.
func chain(d *Dag, n int) error {
	if err := d.AddNode(SourceNode(&testSource{}), NewNodeHandle("source")); err != nil {
		return err
	}
	prev := "source"
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("proc-%d", i)
		if err := d.AddNode(ProcessorNode(&testProcessor{}), NewNodeHandle(id)); err != nil {
			return err
		}
		if err := d.Connect(ep(prev, 0), ep(id, 0)); err != nil {
			return err
		}
		prev = id
	}
	if err := d.AddNode(SinkNode(&testSink{}), NewNodeHandle("sink")); err != nil {
		return err
	}
	return d.Connect(ep(prev, 0), ep("sink", 0))
}
