package kdag

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/knode"
)

func TestNodeHandle(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "counter", NewNodeHandle("counter").String())
		assert.Equal(t, "3_counter", NewShardedNodeHandle(3, "counter").String())
	})

	t.Run("equality", func(t *testing.T) {
		assert.Equal(t, NewNodeHandle("a"), NewNodeHandle("a"))
		assert.NotEqual(t, NewNodeHandle("a"), NewShardedNodeHandle(0, "a"))
		assert.NotEqual(t, NewShardedNodeHandle(1, "a"), NewShardedNodeHandle(2, "a"))
	})

	t.Run("validate", func(t *testing.T) {
		for _, id := range []string{"", "has space", "a/b", `a\b`, "..", "tab\t"} {
			err := NewNodeHandle(id).Validate()
			assert.True(t, errors.Is(err, ErrInvalidNodeID), "id %q", id)
		}
		assert.NoError(t, NewNodeHandle("node-1.v2").Validate())
	})
}

func TestAddNode(t *testing.T) {
	t.Run("duplicate handle", func(t *testing.T) {
		d := New()
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewNodeHandle("source")))
		err := d.AddNode(SinkNode(&testSink{}), NewNodeHandle("source"))
		assert.True(t, errors.Is(err, ErrNodeAlreadyExists))
	})

	t.Run("sharded handles are distinct", func(t *testing.T) {
		d := New()
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewShardedNodeHandle(0, "source")))
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewShardedNodeHandle(1, "source")))
		assert.Equal(t, 2, len(d.Sources()))
	})

	t.Run("rendered name clash", func(t *testing.T) {
		d := New()
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewShardedNodeHandle(1, "x")))
		err := d.AddNode(SourceNode(&testSource{}), NewNodeHandle("1_x"))
		assert.True(t, errors.Is(err, ErrNodeAlreadyExists))
		assert.Equal(t, 1, len(d.Nodes()))

		d = New()
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewNodeHandle("1_x")))
		err = d.AddNode(SourceNode(&testSource{}), NewShardedNodeHandle(1, "x"))
		assert.True(t, errors.Is(err, ErrNodeAlreadyExists))
	})

	t.Run("invalid id", func(t *testing.T) {
		d := New()
		err := d.AddNode(SourceNode(&testSource{}), NewNodeHandle(""))
		assert.True(t, errors.Is(err, ErrInvalidNodeID))
	})

	t.Run("nil factory", func(t *testing.T) {
		d := New()
		err := d.AddNode(SourceNode(nil), NewNodeHandle("source"))
		assert.True(t, errors.Is(err, ErrInvalidNodeType))

		err = d.AddNode(NodeType{}, NewNodeHandle("source"))
		assert.True(t, errors.Is(err, ErrInvalidNodeType))
	})

	t.Run("duplicate port declaration", func(t *testing.T) {
		d := New()
		err := d.AddNode(ProcessorNode(&testProcessor{inputs: []knode.PortHandle{1, 1}}), NewNodeHandle("p"))
		assert.True(t, errors.Is(err, ErrInvalidTopology))
	})
}

func TestConnect(t *testing.T) {
	setup := func(t *testing.T) *Dag {
		t.Helper()
		d := New()
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewNodeHandle("source")))
		assert.NoError(t, d.AddNode(ProcessorNode(&testProcessor{inputs: []knode.PortHandle{0, 1}}), NewNodeHandle("union")))
		assert.NoError(t, d.AddNode(SinkNode(&testSink{}), NewNodeHandle("sink")))
		return d
	}

	t.Run("valid", func(t *testing.T) {
		d := setup(t)
		assert.NoError(t, d.Connect(ep("source", 0), ep("union", 0)))
		assert.NoError(t, d.Connect(ep("source", 0), ep("union", 1)))
		assert.NoError(t, d.Connect(ep("union", 0), ep("sink", 0)))

		assert.Equal(t, 3, len(d.Edges()))
		up, ok := d.Upstream(NewNodeHandle("union"), 1)
		assert.True(t, ok)
		assert.Equal(t, ep("source", 0), up)
		assert.Equal(t, []Endpoint{ep("union", 0), ep("union", 1)}, d.Downstream(ep("source", 0)))
	})

	t.Run("unknown node", func(t *testing.T) {
		d := setup(t)
		err := d.Connect(ep("missing", 0), ep("sink", 0))
		assert.True(t, errors.Is(err, ErrNodeNotFound))
		err = d.Connect(ep("source", 0), ep("missing", 0))
		assert.True(t, errors.Is(err, ErrNodeNotFound))
	})

	t.Run("undeclared output port", func(t *testing.T) {
		d := setup(t)
		err := d.Connect(ep("source", 7), ep("sink", 0))
		assert.True(t, errors.Is(err, knode.ErrInvalidPortHandle))
		assert.Equal(t, 0, len(d.Edges()))
	})

	t.Run("undeclared input port", func(t *testing.T) {
		d := setup(t)
		err := d.Connect(ep("source", 0), ep("union", 2))
		assert.True(t, errors.Is(err, knode.ErrInvalidPortHandle))
	})

	t.Run("sink has no output ports", func(t *testing.T) {
		d := setup(t)
		err := d.Connect(ep("sink", 0), ep("union", 0))
		assert.True(t, errors.Is(err, knode.ErrInvalidPortHandle))
	})

	t.Run("source has no input ports", func(t *testing.T) {
		d := setup(t)
		err := d.Connect(ep("union", 0), ep("source", 0))
		assert.True(t, errors.Is(err, knode.ErrInvalidPortHandle))
	})

	t.Run("input port connected twice", func(t *testing.T) {
		d := setup(t)
		assert.NoError(t, d.Connect(ep("source", 0), ep("union", 0)))
		err := d.Connect(ep("source", 0), ep("union", 0))
		assert.True(t, errors.Is(err, ErrPortAlreadyConnected))
	})

	t.Run("cycle", func(t *testing.T) {
		d := New()
		for _, id := range []string{"a", "b", "c"} {
			assert.NoError(t, d.AddNode(ProcessorNode(&testProcessor{}), NewNodeHandle(id)))
		}
		assert.NoError(t, d.Connect(ep("a", 0), ep("b", 0)))
		assert.NoError(t, d.Connect(ep("b", 0), ep("c", 0)))

		err := d.Connect(ep("c", 0), ep("a", 0))
		assert.True(t, errors.Is(err, ErrCycleDetected))
		assert.Equal(t, 2, len(d.Edges()))
	})

	t.Run("self loop", func(t *testing.T) {
		d := New()
		assert.NoError(t, d.AddNode(ProcessorNode(&testProcessor{inputs: []knode.PortHandle{0, 1}}), NewNodeHandle("a")))
		err := d.Connect(ep("a", 0), ep("a", 1))
		assert.True(t, errors.Is(err, ErrCycleDetected))
	})
}

func TestTopologicalOrder(t *testing.T) {
	d := New()
	assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewNodeHandle("s2")))
	assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewNodeHandle("s1")))
	assert.NoError(t, d.AddNode(ProcessorNode(&testProcessor{inputs: []knode.PortHandle{0, 1}}), NewNodeHandle("union")))
	assert.NoError(t, d.AddNode(SinkNode(&testSink{}), NewNodeHandle("out")))
	assert.NoError(t, d.Connect(ep("s1", 0), ep("union", 0)))
	assert.NoError(t, d.Connect(ep("s2", 0), ep("union", 1)))
	assert.NoError(t, d.Connect(ep("union", 0), ep("out", 0)))

	order, err := d.TopologicalOrder()
	assert.NoError(t, err)
	assert.Equal(t, []NodeHandle{
		NewNodeHandle("s1"),
		NewNodeHandle("s2"),
		NewNodeHandle("union"),
		NewNodeHandle("out"),
	}, order)

	assert.Equal(t, []NodeHandle{NewNodeHandle("s2"), NewNodeHandle("s1")}, d.Sources())
	assert.Equal(t, []NodeHandle{NewNodeHandle("out"), NewNodeHandle("union")}, d.Reachable(NewNodeHandle("s1")))
	assert.Equal(t, 0, len(d.Reachable(NewNodeHandle("out"))))
}

func TestPropagateSchemas(t *testing.T) {
	t.Run("chain", func(t *testing.T) {
		d := New()
		assert.NoError(t, chain(d, 3))

		schemas, err := d.PropagateSchemas()
		assert.NoError(t, err)
		assert.True(t, testSchema.Equal(schemas.Inputs(NewNodeHandle("sink"))[0]))
		assert.True(t, testSchema.Equal(schemas.Outputs(NewNodeHandle("proc-2"))[0]))
		assert.Equal(t, 0, len(schemas.Outputs(NewNodeHandle("sink"))))
	})

	t.Run("unconnected input port", func(t *testing.T) {
		d := New()
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewNodeHandle("source")))
		assert.NoError(t, d.AddNode(ProcessorNode(&testProcessor{inputs: []knode.PortHandle{0, 1}}), NewNodeHandle("union")))
		assert.NoError(t, d.Connect(ep("source", 0), ep("union", 0)))

		_, err := d.PropagateSchemas()
		assert.True(t, errors.Is(err, knode.ErrMissingInputSchema))
	})

	t.Run("unconnected sink", func(t *testing.T) {
		d := New()
		assert.NoError(t, d.AddNode(SinkNode(&testSink{}), NewNodeHandle("sink")))
		_, err := d.PropagateSchemas()
		assert.True(t, errors.Is(err, knode.ErrMissingInputSchema))
	})

	t.Run("factory error", func(t *testing.T) {
		d := New()
		assert.NoError(t, d.AddNode(SourceNode(&testSource{}), NewNodeHandle("source")))
		assert.NoError(t, d.AddNode(ProcessorNode(&testProcessor{failing: true}), NewNodeHandle("p")))
		assert.NoError(t, d.Connect(ep("source", 0), ep("p", 0)))

		_, err := d.PropagateSchemas()
		assert.True(t, errors.Is(err, ErrSchemaPropagation))
		assert.Contains(t, err.Error(), "boom")
	})
}

func BenchmarkBuildChain(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d := New()
		assert.NoError(b, chain(d, 100))
		_, err := d.PropagateSchemas()
		assert.NoError(b, err)
	}
}
