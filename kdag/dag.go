package kdag

import (
	"fmt"
	"slices"

	"github.com/birdayz/kflow/knode"
)

// Dag is a directed acyclic graph of sources, processors and sinks. Every
// mutation is validated eagerly, so a Dag is valid at all times. A Dag is not
// safe for concurrent mutation.
type Dag struct {
	nodes map[NodeHandle]*Node
	// insertion order
	order []NodeHandle
	// names maps the rendered handle, which names the state directory, to
	// its owner.
	names map[string]NodeHandle
	edges []Edge

	// inbound maps an input endpoint to the output endpoint feeding it.
	inbound map[Endpoint]Endpoint
	// outbound maps a node to its downstream nodes, with duplicates.
	outbound map[NodeHandle][]Edge
}

// New creates an empty DAG.
func New() *Dag {
	return &Dag{
		nodes:    make(map[NodeHandle]*Node),
		order:    make([]NodeHandle, 0),
		names:    make(map[string]NodeHandle),
		inbound:  make(map[Endpoint]Endpoint),
		outbound: make(map[NodeHandle][]Edge),
	}
}

// AddNode registers a node under handle.
func (d *Dag) AddNode(t NodeType, handle NodeHandle) error {
	if err := handle.Validate(); err != nil {
		return err
	}
	if !t.valid() {
		return fmt.Errorf("%w: %s has no %s factory", ErrInvalidNodeType, handle, t.kind)
	}
	if _, exists := d.nodes[handle]; exists {
		return fmt.Errorf("%w: %s", ErrNodeAlreadyExists, handle)
	}
	if other, exists := d.names[handle.String()]; exists {
		return fmt.Errorf("%w: %s clashes with the name of %s", ErrNodeAlreadyExists, handle, other.describe())
	}
	if len(d.nodes) >= MaxNodesPerDAG {
		return fmt.Errorf("%w: node count exceeds maximum %d", ErrInvalidTopology, MaxNodesPerDAG)
	}

	node := &Node{
		Handle:  handle,
		Type:    t,
		inputs:  slices.Clone(t.InputPorts()),
		outputs: slices.Clone(t.OutputPorts()),
	}
	if dup := duplicatePort(node); dup != "" {
		return fmt.Errorf("%w: %s declares %s twice", ErrInvalidTopology, handle, dup)
	}

	d.nodes[handle] = node
	d.names[handle.String()] = handle
	d.order = append(d.order, handle)
	return nil
}

func duplicatePort(n *Node) string {
	seen := make(map[knode.PortHandle]bool, len(n.inputs))
	for _, p := range n.inputs {
		if seen[p] {
			return fmt.Sprintf("input port %d", p)
		}
		seen[p] = true
	}
	clear(seen)
	for _, p := range n.outputs {
		if seen[p.Handle] {
			return fmt.Sprintf("output port %d", p.Handle)
		}
		seen[p.Handle] = true
	}
	return ""
}

// Connect adds an edge from an output port to an input port. It fails if
// either endpoint is unknown, the input port is already connected, or the
// edge would close a cycle.
func (d *Dag) Connect(from, to Endpoint) error {
	src, ok := d.nodes[from.Node]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from.Node)
	}
	dst, ok := d.nodes[to.Node]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to.Node)
	}
	if _, ok := knode.FindOutputPort(src.outputs, from.Port); !ok {
		return fmt.Errorf("cannot connect %s -> %s: %w: %s (%s) has no output port %d",
			from, to, knode.ErrInvalidPortHandle, from.Node, src.Type.Kind(), from.Port)
	}
	if !knode.HasInputPort(dst.inputs, to.Port) {
		return fmt.Errorf("cannot connect %s -> %s: %w: %s (%s) has no input port %d",
			from, to, knode.ErrInvalidPortHandle, to.Node, dst.Type.Kind(), to.Port)
	}
	if prev, ok := d.inbound[to]; ok {
		return fmt.Errorf("cannot connect %s -> %s: %w: fed by %s", from, to, ErrPortAlreadyConnected, prev)
	}
	if from.Node == to.Node || d.reaches(to.Node, from.Node) {
		return fmt.Errorf("cannot connect %s -> %s: %w", from, to, ErrCycleDetected)
	}
	if len(d.outbound[from.Node]) >= MaxChildrenPerNode {
		return fmt.Errorf("%w: node %s exceeds maximum of %d connections",
			ErrInvalidTopology, from.Node, MaxChildrenPerNode)
	}

	e := Edge{From: from, To: to}
	d.edges = append(d.edges, e)
	d.inbound[to] = from
	d.outbound[from.Node] = append(d.outbound[from.Node], e)
	return nil
}

// Node returns the node registered under handle.
func (d *Dag) Node(handle NodeHandle) (*Node, bool) {
	n, ok := d.nodes[handle]
	return n, ok
}

// Nodes returns all node handles in insertion order.
func (d *Dag) Nodes() []NodeHandle {
	return slices.Clone(d.order)
}

// Sources returns the handles of all source nodes in insertion order.
func (d *Dag) Sources() []NodeHandle {
	var res []NodeHandle
	for _, h := range d.order {
		if d.nodes[h].Type.Kind() == KindSource {
			res = append(res, h)
		}
	}
	return res
}

// Edges returns all edges in the order they were connected.
func (d *Dag) Edges() []Edge {
	return slices.Clone(d.edges)
}

// Upstream returns the output endpoint connected to the given input port.
func (d *Dag) Upstream(handle NodeHandle, port knode.PortHandle) (Endpoint, bool) {
	e, ok := d.inbound[Endpoint{Node: handle, Port: port}]
	return e, ok
}

// Downstream returns every input endpoint fed by the given output port.
func (d *Dag) Downstream(from Endpoint) []Endpoint {
	var res []Endpoint
	for _, e := range d.outbound[from.Node] {
		if e.From == from {
			res = append(res, e.To)
		}
	}
	return res
}
