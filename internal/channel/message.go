// Package channel carries operations and control messages between node
// workers. Every edge of the DAG is one bounded Go channel.
package channel

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
)

// DefaultCapacity is the default number of buffered messages per edge.
const DefaultCapacity = 1024

// ErrChannelClosed is returned when an edge is closed without a preceding
// terminate message, which means the upstream worker failed.
var ErrChannelClosed = errors.New("channel closed unexpectedly")

type Kind uint8

const (
	KindOperation Kind = iota
	KindBarrier
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindOperation:
		return "operation"
	case KindBarrier:
		return "barrier"
	case KindTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Barrier is a checkpoint barrier. It maps every source whose data flowed
// into the sender to the source offset the sender's state covers.
type Barrier map[kdag.NodeHandle]uint64

// Merge raises b's offsets to those in other.
func (b Barrier) Merge(other Barrier) {
	for src, off := range other {
		if off > b[src] {
			b[src] = off
		}
	}
}

func (b Barrier) Clone() Barrier {
	return maps.Clone(b)
}

func (b Barrier) String() string {
	sources := slices.SortedFunc(maps.Keys(b), kdag.NodeHandle.Compare)
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = fmt.Sprintf("%s=%d", src, b[src])
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Message travels along one edge.
type Message struct {
	Kind    Kind
	Op      knode.Operation
	Barrier Barrier
}

func OperationMessage(op knode.Operation) Message {
	return Message{Kind: KindOperation, Op: op}
}

func BarrierMessage(b Barrier) Message {
	return Message{Kind: KindBarrier, Barrier: b}
}

func TerminateMessage() Message {
	return Message{Kind: KindTerminate}
}

// Edge is the bounded channel backing one DAG edge. It has exactly one
// sender, the worker of the upstream node, which closes it on exit.
type Edge struct {
	From kdag.Endpoint
	To   kdag.Endpoint

	ch        chan Message
	closeOnce sync.Once
}

func NewEdge(e kdag.Edge, capacity int) *Edge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Edge{From: e.From, To: e.To, ch: make(chan Message, capacity)}
}

// Send blocks until msg is buffered or ctx is done.
func (e *Edge) Send(ctx context.Context, msg Message) error {
	select {
	case e.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the receive side.
func (e *Edge) C() <-chan Message {
	return e.ch
}

// Close closes the edge. Subsequent calls are no-ops.
func (e *Edge) Close() {
	e.closeOnce.Do(func() {
		close(e.ch)
	})
}

func (e *Edge) String() string {
	return e.From.String() + " -> " + e.To.String()
}
