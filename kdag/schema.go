package kdag

import (
	"fmt"

	"github.com/birdayz/kflow/knode"
)

// Schemas holds the propagated input and output schemas of every node.
type Schemas struct {
	inputs  map[NodeHandle]map[knode.PortHandle]knode.Schema
	outputs map[NodeHandle]map[knode.PortHandle]knode.Schema
}

// Inputs returns the schemas of the node's input ports.
func (s *Schemas) Inputs(h NodeHandle) map[knode.PortHandle]knode.Schema {
	return s.inputs[h]
}

// Outputs returns the schemas of the node's output ports.
func (s *Schemas) Outputs(h NodeHandle) map[knode.PortHandle]knode.Schema {
	return s.outputs[h]
}

// PropagateSchemas walks the DAG in topological order. Sources declare their
// output schemas, processors derive theirs from their inputs, sinks only
// receive. Every declared input port must be connected.
func (d *Dag) PropagateSchemas() (*Schemas, error) {
	order, err := d.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	s := &Schemas{
		inputs:  make(map[NodeHandle]map[knode.PortHandle]knode.Schema, len(order)),
		outputs: make(map[NodeHandle]map[knode.PortHandle]knode.Schema, len(order)),
	}

	for _, h := range order {
		node := d.nodes[h]

		inputs, err := d.inputSchemas(node, s)
		if err != nil {
			return nil, err
		}
		s.inputs[h] = inputs

		outputs := make(map[knode.PortHandle]knode.Schema, len(node.outputs))
		for _, port := range node.outputs {
			var schema knode.Schema
			switch node.Type.Kind() {
			case KindSource:
				schema, err = node.Type.Source().OutputSchema(port.Handle)
			case KindProcessor:
				schema, err = node.Type.Processor().OutputSchema(port.Handle, inputs)
			}
			if err == nil {
				err = schema.Validate()
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %s output port %d: %w", ErrSchemaPropagation, h, port.Handle, err)
			}
			outputs[port.Handle] = schema
		}
		s.outputs[h] = outputs
	}
	return s, nil
}

func (d *Dag) inputSchemas(node *Node, s *Schemas) (map[knode.PortHandle]knode.Schema, error) {
	inputs := make(map[knode.PortHandle]knode.Schema, len(node.inputs))
	for _, port := range node.inputs {
		from, ok := d.inbound[Endpoint{Node: node.Handle, Port: port}]
		if !ok {
			return nil, fmt.Errorf("%w: %s input port %d is not connected", knode.ErrMissingInputSchema, node.Handle, port)
		}
		schema, ok := s.outputs[from.Node][from.Port]
		if !ok {
			return nil, fmt.Errorf("%w: %s input port %d: no schema on %s", knode.ErrMissingInputSchema, node.Handle, port, from)
		}
		inputs[port] = schema
	}
	return inputs, nil
}
