package kafka

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/connectors/counting"
	"github.com/birdayz/kflow/connectors/generator"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

func startRedpanda(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	ctr, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4")
	testcontainers.CleanupContainer(t, ctr)
	assert.NoError(t, err)

	broker, err := ctr.KafkaSeedBroker(ctx)
	assert.NoError(t, err)
	return broker
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	kcl, err := kgo.NewClient(kgo.SeedBrokers(broker))
	assert.NoError(t, err)
	defer kcl.Close()
	_, err = kadm.NewClient(kcl).CreateTopics(context.Background(), 1, 1, map[string]*string{}, topic)
	assert.NoError(t, err)
}

func h(id string) kdag.NodeHandle {
	return kdag.NewNodeHandle(id)
}

func runPipeline(t *testing.T, d *kdag.Dag, dir string) {
	t.Helper()
	exec, err := kflow.NewExecutor(d, dir)
	assert.NoError(t, err)
	assert.NoError(t, exec.Start(context.Background()))
	assert.NoError(t, exec.Join())
}

func TestKafkaRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	const n = 300
	broker := startRedpanda(t)
	createTopic(t, broker, "ops")

	sink, err := NewSink(SinkConfig{Brokers: []string{broker}, Topic: "ops"})
	assert.NoError(t, err)
	produce := kdag.New()
	assert.NoError(t, produce.AddNode(kdag.SourceNode(generator.New(n)), h("generator")))
	assert.NoError(t, produce.AddNode(kdag.SinkNode(sink), h("kafka")))
	assert.NoError(t, produce.Connect(kdag.NewEndpoint(h("generator"), 0), kdag.NewEndpoint(h("kafka"), 0)))
	runPipeline(t, produce, t.TempDir())

	source, err := NewSource(SourceConfig{Brokers: []string{broker}, Topic: "ops", Schema: generator.Schema, StopAtEnd: true})
	assert.NoError(t, err)
	consumeDag := func(c *counting.Factory) *kdag.Dag {
		d := kdag.New()
		assert.NoError(t, d.AddNode(kdag.SourceNode(source), h("kafka")))
		assert.NoError(t, d.AddNode(kdag.SinkNode(c), h("count")))
		assert.NoError(t, d.Connect(kdag.NewEndpoint(h("kafka"), 0), kdag.NewEndpoint(h("count"), knode.DefaultPortHandle)))
		return d
	}

	dir := t.TempDir()
	first := counting.New()
	runPipeline(t, consumeDag(first), dir)
	assert.Equal(t, uint64(n), first.Count())

	m, err := kflow.NewMetadataManager(consumeDag(first), dir)
	assert.NoError(t, err)
	assert.Equal(t, kflow.Consistency{Kind: kflow.FullyConsistent, Offset: n}, m.CheckpointConsistency()[h("kafka")])
	assert.NoError(t, m.Close())

	// A second run resumes at the end of the partition.
	second := counting.New()
	runPipeline(t, consumeDag(second), dir)
	assert.Equal(t, uint64(0), second.Count())
}
