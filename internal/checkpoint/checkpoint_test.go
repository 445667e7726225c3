package checkpoint

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/connectors/counting"
	"github.com/birdayz/kflow/connectors/generator"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate/memory"
	"github.com/birdayz/kflow/processors"
	"github.com/vmihailenco/msgpack/v5"
)

func h(id string) kdag.NodeHandle {
	return kdag.NewNodeHandle(id)
}

func ep(id string, port knode.PortHandle) kdag.Endpoint {
	return kdag.NewEndpoint(h(id), port)
}

func TestRecordReadWrite(t *testing.T) {
	env, err := memory.New().Open(t.TempDir())
	assert.NoError(t, err)
	defer env.Close()

	t.Run("missing record", func(t *testing.T) {
		rec, ok, err := Read(env.Reader())
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, uint64(0), rec.Input(0, h("source")))
	})

	t.Run("advance keeps maximum", func(t *testing.T) {
		rec := NewRecord()
		rec.Advance(1, map[kdag.NodeHandle]uint64{h("a"): 10, h("b"): 3})
		rec.Advance(1, map[kdag.NodeHandle]uint64{h("a"): 7, h("b"): 4})

		txn, err := env.Begin()
		assert.NoError(t, err)
		assert.NoError(t, Write(txn, rec))
		assert.NoError(t, txn.Commit())

		got, ok, err := Read(env.Reader())
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(10), got.Input(1, h("a")))
		assert.Equal(t, uint64(4), got.Input(1, h("b")))
		assert.Equal(t, uint64(0), got.Input(0, h("a")))
	})

	t.Run("unknown version", func(t *testing.T) {
		raw, err := msgpack.Marshal(&Record{Version: 99})
		assert.NoError(t, err)

		txn, err := env.Begin()
		assert.NoError(t, err)
		assert.NoError(t, txn.Put(MetadataKey, raw))
		assert.NoError(t, txn.Commit())

		_, _, err = Read(env.Reader())
		assert.True(t, errors.Is(err, ErrUnknownVersion))
	})
}

// diamond builds s1 -> a -> u:0, s1 -> b -> u:1, s2 -> u:2, u -> sink.
func diamond(t *testing.T) *kdag.Dag {
	t.Helper()
	d := kdag.New()
	assert.NoError(t, d.AddNode(kdag.SourceNode(generator.New(10)), h("s1")))
	assert.NoError(t, d.AddNode(kdag.SourceNode(generator.New(10)), h("s2")))
	assert.NoError(t, d.AddNode(kdag.ProcessorNode(processors.NewIdentity()), h("a")))
	assert.NoError(t, d.AddNode(kdag.ProcessorNode(processors.NewIdentity()), h("b")))
	assert.NoError(t, d.AddNode(kdag.ProcessorNode(processors.NewUnion(3)), h("u")))
	assert.NoError(t, d.AddNode(kdag.SinkNode(counting.New()), h("sink")))

	assert.NoError(t, d.Connect(ep("s1", 0), ep("a", 0)))
	assert.NoError(t, d.Connect(ep("s1", 0), ep("b", 0)))
	assert.NoError(t, d.Connect(ep("a", 0), ep("u", 0)))
	assert.NoError(t, d.Connect(ep("b", 0), ep("u", 1)))
	assert.NoError(t, d.Connect(ep("s2", 0), ep("u", 2)))
	assert.NoError(t, d.Connect(ep("u", 0), ep("sink", 0)))
	return d
}

func inputs(port knode.PortHandle, offsets map[string]uint64) Record {
	rec := NewRecord()
	rec.Inputs[port] = offsets
	return rec
}

func TestClassify(t *testing.T) {
	t.Run("no records", func(t *testing.T) {
		res := Classify(diamond(t), nil)
		assert.Equal(t, 2, len(res))
		for _, c := range res {
			assert.Equal(t, Consistency{Kind: FullyConsistent}, c)
		}
	})

	t.Run("fully consistent", func(t *testing.T) {
		u := NewRecord()
		u.Inputs[0] = map[string]uint64{"s1": 10}
		u.Inputs[1] = map[string]uint64{"s1": 10}
		u.Inputs[2] = map[string]uint64{"s2": 4}

		records := map[kdag.NodeHandle]Record{
			h("s1"):   {Emitted: 10},
			h("s2"):   {Emitted: 4},
			h("a"):    inputs(0, map[string]uint64{"s1": 10}),
			h("b"):    inputs(0, map[string]uint64{"s1": 10}),
			h("u"):    u,
			h("sink"): inputs(0, map[string]uint64{"s1": 10, "s2": 4}),
		}
		res := Classify(diamond(t), records)
		assert.Equal(t, Consistency{Kind: FullyConsistent, Offset: 10}, res[h("s1")])
		assert.Equal(t, Consistency{Kind: FullyConsistent, Offset: 4}, res[h("s2")])
	})

	t.Run("one path behind", func(t *testing.T) {
		u := NewRecord()
		u.Inputs[0] = map[string]uint64{"s1": 10}
		u.Inputs[1] = map[string]uint64{"s1": 6}
		u.Inputs[2] = map[string]uint64{"s2": 4}

		records := map[kdag.NodeHandle]Record{
			h("s1"):   {Emitted: 10},
			h("s2"):   {Emitted: 4},
			h("a"):    inputs(0, map[string]uint64{"s1": 10}),
			h("b"):    inputs(0, map[string]uint64{"s1": 6}),
			h("u"):    u,
			h("sink"): inputs(0, map[string]uint64{"s1": 6, "s2": 4}),
		}
		res := Classify(diamond(t), records)

		s1 := res[h("s1")]
		assert.Equal(t, PartiallyConsistent, s1.Kind)
		assert.Equal(t, uint64(6), s1.Offset)
		assert.Equal(t, map[kdag.NodeHandle]uint64{h("b"): 6, h("u"): 6, h("sink"): 6}, s1.Lagging)
		assert.Equal(t, uint64(6), s1.ResumeOffset())
		assert.Equal(t, "PartiallyConsistent(6, [b=6 sink=6 u=6])", s1.String())

		assert.True(t, res[h("s2")].IsFullyConsistent())
	})

	t.Run("missing downstream record", func(t *testing.T) {
		records := map[kdag.NodeHandle]Record{
			h("s1"): {Emitted: 3},
		}
		res := Classify(diamond(t), records)
		s1 := res[h("s1")]
		assert.Equal(t, PartiallyConsistent, s1.Kind)
		assert.Equal(t, uint64(0), s1.Offset)
		assert.Equal(t, 4, len(s1.Lagging))
	})

	t.Run("source without downstream", func(t *testing.T) {
		d := kdag.New()
		assert.NoError(t, d.AddNode(kdag.SourceNode(generator.New(1)), h("alone")))
		res := Classify(d, map[kdag.NodeHandle]Record{h("alone"): {Emitted: 1}})
		assert.Equal(t, "FullyConsistent(1)", res[h("alone")].String())
	})
}
