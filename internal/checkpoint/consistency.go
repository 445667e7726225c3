package checkpoint

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/birdayz/kflow/kdag"
)

// Kind tells whether every node has caught up with a source.
type Kind int

const (
	FullyConsistent Kind = iota
	PartiallyConsistent
)

func (k Kind) String() string {
	switch k {
	case FullyConsistent:
		return "FullyConsistent"
	case PartiallyConsistent:
		return "PartiallyConsistent"
	default:
		return "Unknown"
	}
}

// Consistency is the classification of one source.
type Consistency struct {
	Kind Kind
	// Offset is the source's emitted offset when fully consistent, and the
	// lowest offset committed by any downstream node otherwise.
	Offset uint64
	// Lagging lists the nodes behind the source with their committed offset.
	// It is empty when fully consistent.
	Lagging map[kdag.NodeHandle]uint64
}

func (c Consistency) IsFullyConsistent() bool {
	return c.Kind == FullyConsistent
}

func (c Consistency) String() string {
	if c.Kind == FullyConsistent {
		return fmt.Sprintf("FullyConsistent(%d)", c.Offset)
	}
	nodes := slices.SortedFunc(maps.Keys(c.Lagging), kdag.NodeHandle.Compare)
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = fmt.Sprintf("%s=%d", n, c.Lagging[n])
	}
	return fmt.Sprintf("PartiallyConsistent(%d, [%s])", c.Offset, strings.Join(parts, " "))
}

// Classify computes the consistency of every source of dag from the records
// of its nodes. Nodes without a record count as having committed nothing.
//
// For a node N downstream of source S, the committed offset of N for S is the
// minimum over N's input ports fed by S, directly or transitively, of the
// offset recorded for S on that port.
func Classify(dag *kdag.Dag, records map[kdag.NodeHandle]Record) map[kdag.NodeHandle]Consistency {
	res := make(map[kdag.NodeHandle]Consistency)
	for _, src := range dag.Sources() {
		emitted := records[src].Emitted
		feeds := map[kdag.NodeHandle]bool{src: true}
		reachable := dag.Reachable(src)
		for _, n := range reachable {
			feeds[n] = true
		}

		c := Consistency{Kind: FullyConsistent, Offset: emitted}
		for _, n := range reachable {
			committed, ok := committedOffset(dag, records[n], n, src, feeds)
			if !ok || committed >= emitted {
				continue
			}
			if c.Lagging == nil {
				c.Lagging = make(map[kdag.NodeHandle]uint64)
			}
			c.Kind = PartiallyConsistent
			c.Lagging[n] = committed
			c.Offset = min(c.Offset, committed)
		}
		res[src] = c
	}
	return res
}

func committedOffset(dag *kdag.Dag, rec Record, n, src kdag.NodeHandle, feeds map[kdag.NodeHandle]bool) (uint64, bool) {
	node, ok := dag.Node(n)
	if !ok {
		return 0, false
	}
	var (
		committed uint64
		found     bool
	)
	for _, port := range node.InputPorts() {
		up, ok := dag.Upstream(n, port)
		if !ok || !feeds[up.Node] {
			continue
		}
		off := rec.Input(port, src)
		if !found || off < committed {
			committed = off
		}
		found = true
	}
	return committed, found
}

// ResumeOffset returns the offset a source may resume after without any
// downstream node missing data.
func (c Consistency) ResumeOffset() uint64 {
	return c.Offset
}
