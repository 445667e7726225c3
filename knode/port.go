package knode

import "slices"

// PortHandle identifies one input or output port of a node. Ports are declared
// by the node's factory.
type PortHandle uint16

// DefaultPortHandle is the port used by nodes with a single input or output.
const DefaultPortHandle PortHandle = 0

// OutputPortOptions configures an output port.
type OutputPortOptions struct {
	// Stateful makes the executor retain every operation forwarded on this
	// port in the node's own state, keyed by the record's primary key, so that
	// downstream nodes can look records up through a RecordReader.
	Stateful bool
}

// OutputPortDef declares an output port.
type OutputPortDef struct {
	Handle  PortHandle
	Options OutputPortOptions
}

// NewOutputPortDef is a shorthand for a port declaration.
func NewOutputPortDef(handle PortHandle, opts OutputPortOptions) OutputPortDef {
	return OutputPortDef{Handle: handle, Options: opts}
}

// HasInputPort reports whether ports contains port.
func HasInputPort(ports []PortHandle, port PortHandle) bool {
	return slices.Contains(ports, port)
}

// FindOutputPort returns the declaration of port, if any.
func FindOutputPort(defs []OutputPortDef, port PortHandle) (OutputPortDef, bool) {
	for _, def := range defs {
		if def.Handle == port {
			return def, true
		}
	}
	return OutputPortDef{}, false
}
