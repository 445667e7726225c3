package kdag

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/birdayz/kflow/knode"
)

// NodeHandle identifies a node in the DAG. It is a comparable value; two
// handles are equal when shard and id are equal.
type NodeHandle struct {
	shard   uint16
	sharded bool
	id      string
}

// NewNodeHandle returns the handle of an unsharded node.
func NewNodeHandle(id string) NodeHandle {
	return NodeHandle{id: id}
}

// NewShardedNodeHandle returns the handle of one shard of a node.
func NewShardedNodeHandle(shard uint16, id string) NodeHandle {
	return NodeHandle{shard: shard, sharded: true, id: id}
}

func (h NodeHandle) ID() string {
	return h.id
}

// Shard returns the shard and whether the handle has one.
func (h NodeHandle) Shard() (uint16, bool) {
	return h.shard, h.sharded
}

// String renders the handle as id or shard_id. It is also the name of the
// node's state directory.
func (h NodeHandle) String() string {
	if !h.sharded {
		return h.id
	}
	return strconv.FormatUint(uint64(h.shard), 10) + "_" + h.id
}

func (h NodeHandle) describe() string {
	if !h.sharded {
		return fmt.Sprintf("node %q", h.id)
	}
	return fmt.Sprintf("shard %d of node %q", h.shard, h.id)
}

// Validate checks that the id is non-empty and free of whitespace and path
// separators.
func (h NodeHandle) Validate() error {
	if h.id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidNodeID)
	}
	if strings.ContainsAny(h.id, " \t\n\r") {
		return fmt.Errorf("%w: id %q cannot contain whitespace", ErrInvalidNodeID, h.id)
	}
	if strings.ContainsAny(h.id, `/\`) || h.id == "." || h.id == ".." {
		return fmt.Errorf("%w: id %q is not a valid directory name", ErrInvalidNodeID, h.id)
	}
	return nil
}

// Compare orders handles by id, then shard.
func (h NodeHandle) Compare(other NodeHandle) int {
	if c := cmp.Compare(h.id, other.id); c != 0 {
		return c
	}
	if h.sharded != other.sharded {
		if h.sharded {
			return 1
		}
		return -1
	}
	return cmp.Compare(h.shard, other.shard)
}

// Endpoint is one side of a connection: a node and one of its ports.
type Endpoint struct {
	Node NodeHandle
	Port knode.PortHandle
}

// NewEndpoint is a shorthand for an Endpoint literal.
func NewEndpoint(node NodeHandle, port knode.PortHandle) Endpoint {
	return Endpoint{Node: node, Port: port}
}

func (e Endpoint) String() string {
	return e.Node.String() + ":" + strconv.FormatUint(uint64(e.Port), 10)
}

// Kind is the kind of a node.
type Kind int

const (
	KindSource Kind = iota
	KindProcessor
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "Source"
	case KindProcessor:
		return "Processor"
	case KindSink:
		return "Sink"
	default:
		return "Unknown"
	}
}

// NodeType wraps the factory of a node together with its kind. Build one with
// SourceNode, ProcessorNode or SinkNode.
type NodeType struct {
	kind      Kind
	source    knode.SourceFactory
	processor knode.ProcessorFactory
	sink      knode.SinkFactory
}

func SourceNode(f knode.SourceFactory) NodeType {
	return NodeType{kind: KindSource, source: f}
}

func ProcessorNode(f knode.ProcessorFactory) NodeType {
	return NodeType{kind: KindProcessor, processor: f}
}

func SinkNode(f knode.SinkFactory) NodeType {
	return NodeType{kind: KindSink, sink: f}
}

func (t NodeType) Kind() Kind {
	return t.kind
}

// Source returns the factory of a source node, or nil.
func (t NodeType) Source() knode.SourceFactory {
	return t.source
}

// Processor returns the factory of a processor node, or nil.
func (t NodeType) Processor() knode.ProcessorFactory {
	return t.processor
}

// Sink returns the factory of a sink node, or nil.
func (t NodeType) Sink() knode.SinkFactory {
	return t.sink
}

func (t NodeType) valid() bool {
	switch t.kind {
	case KindSource:
		return t.source != nil
	case KindProcessor:
		return t.processor != nil
	case KindSink:
		return t.sink != nil
	}
	return false
}

// InputPorts returns the declared input ports. Sources have none.
func (t NodeType) InputPorts() []knode.PortHandle {
	switch t.kind {
	case KindProcessor:
		return t.processor.InputPorts()
	case KindSink:
		return t.sink.InputPorts()
	}
	return nil
}

// OutputPorts returns the declared output ports. Sinks have none.
func (t NodeType) OutputPorts() []knode.OutputPortDef {
	switch t.kind {
	case KindSource:
		return t.source.OutputPorts()
	case KindProcessor:
		return t.processor.OutputPorts()
	}
	return nil
}

// Node is a node of the DAG.
type Node struct {
	Handle NodeHandle
	Type   NodeType

	inputs  []knode.PortHandle
	outputs []knode.OutputPortDef
}

// InputPorts returns the ports declared by the node's factory at AddNode time.
func (n *Node) InputPorts() []knode.PortHandle {
	return n.inputs
}

// OutputPorts returns the ports declared by the node's factory at AddNode time.
func (n *Node) OutputPorts() []knode.OutputPortDef {
	return n.outputs
}

// Edge connects an output port to an input port.
type Edge struct {
	From Endpoint
	To   Endpoint
}

func (e Edge) String() string {
	return e.From.String() + " -> " + e.To.String()
}
