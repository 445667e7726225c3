package kflow_test

import (
	"context"
	"fmt"
	"os"

	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/connectors/counting"
	"github.com/birdayz/kflow/connectors/generator"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/processors"
)

func ExampleExecutor() {
	dir, err := os.MkdirTemp("", "kflow-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	source := kdag.NewNodeHandle("numbers")
	counter := kdag.NewNodeHandle("counter")
	sink := kdag.NewNodeHandle("sink")
	counts := counting.New()

	dag := kdag.New()
	_ = dag.AddNode(kdag.SourceNode(generator.New(100, generator.WithGroups(4))), source)
	_ = dag.AddNode(kdag.ProcessorNode(processors.NewCounter(1)), counter)
	_ = dag.AddNode(kdag.SinkNode(counts), sink)
	_ = dag.Connect(kdag.NewEndpoint(source, 0), kdag.NewEndpoint(counter, 0))
	_ = dag.Connect(kdag.NewEndpoint(counter, 0), kdag.NewEndpoint(sink, 0))

	exec, err := kflow.NewExecutor(dag, dir)
	if err != nil {
		panic(err)
	}
	if err := exec.Start(context.Background()); err != nil {
		panic(err)
	}
	if err := exec.Join(); err != nil {
		panic(err)
	}

	m, err := kflow.NewMetadataManager(dag, dir)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	inserts, updates, _ := counts.Kinds()
	fmt.Println("inserts:", inserts, "updates:", updates)
	fmt.Println(m.CheckpointConsistency()[source])
	// Output:
	// inserts: 4 updates: 96
	// FullyConsistent(100)
}
