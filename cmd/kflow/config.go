package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/connectors/counting"
	"github.com/birdayz/kflow/connectors/generator"
	"github.com/birdayz/kflow/connectors/kafka"
	"github.com/birdayz/kflow/connectors/sqlite"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kstate"
	"github.com/birdayz/kflow/kstate/badger"
	"github.com/birdayz/kflow/kstate/memory"
	"github.com/birdayz/kflow/kstate/pebble"
	"github.com/birdayz/kflow/processors"
	"gopkg.in/yaml.v3"
)

var errInvalidConfig = errors.New("invalid config")

// Config describes a demo pipeline: one source, an optional counter grouping
// by the source's second column, and one sink.
type Config struct {
	Dir             string           `yaml:"dir"`
	Storage         string           `yaml:"storage"`
	ChannelCapacity int              `yaml:"channel_capacity"`
	Checkpoint      CheckpointConfig `yaml:"checkpoint"`
	Log             LogConfig        `yaml:"log"`
	Source          SourceConfig     `yaml:"source"`
	Counter         bool             `yaml:"counter"`
	Sink            SinkConfig       `yaml:"sink"`
}

type CheckpointConfig struct {
	Interval      time.Duration `yaml:"interval"`
	MaxOperations int           `yaml:"max_operations"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SourceConfig struct {
	Type      string            `yaml:"type"`
	Count     uint64            `yaml:"count"`
	Unbounded bool              `yaml:"unbounded"`
	Rate      float64           `yaml:"rate"`
	Groups    int               `yaml:"groups"`
	Kafka     KafkaSourceConfig `yaml:"kafka"`
}

type KafkaSourceConfig struct {
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	Partition int32    `yaml:"partition"`
	StopAtEnd bool     `yaml:"stop_at_end"`
}

type SinkConfig struct {
	Type   string       `yaml:"type"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

type SQLiteConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func defaultConfig() Config {
	policy := kflow.DefaultCheckpointPolicy()
	return Config{
		Dir:     "kflow-state",
		Storage: "pebble",
		Checkpoint: CheckpointConfig{
			Interval:      policy.Interval,
			MaxOperations: policy.MaxOperations,
		},
		Log:    LogConfig{Level: "info"},
		Source: SourceConfig{Type: "generator", Count: 1000},
		Sink:   SinkConfig{Type: "counting"},
	}
}

// loadConfig reads path over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// backend returns the configured storage backend. Engine internals log to
// log.
func (c Config) backend(log *slog.Logger) (kstate.Backend, error) {
	switch c.Storage {
	case "pebble":
		return &pebble.Backend{Logger: log}, nil
	case "badger":
		return &badger.Backend{Logger: log}, nil
	case "memory":
		return memory.NewDurable(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage %q", errInvalidConfig, c.Storage)
	}
}

func (c Config) policy() kflow.CheckpointPolicy {
	return kflow.CheckpointPolicy{
		Interval:      c.Checkpoint.Interval,
		MaxOperations: c.Checkpoint.MaxOperations,
	}
}

// pipeline holds the built DAG and the sink, if it can report a count.
type pipeline struct {
	dag      *kdag.Dag
	counting *counting.Factory
}

var (
	sourceHandle  = kdag.NewNodeHandle("source")
	counterHandle = kdag.NewNodeHandle("counter")
	sinkHandle    = kdag.NewNodeHandle("sink")
)

func (c Config) build() (*pipeline, error) {
	p := &pipeline{dag: kdag.New()}

	var src kdag.NodeType
	switch c.Source.Type {
	case "generator":
		var opts []generator.Option
		if c.Source.Unbounded {
			opts = append(opts, generator.Unbounded())
		}
		if c.Source.Rate > 0 {
			opts = append(opts, generator.WithRate(c.Source.Rate))
		}
		if c.Source.Groups > 0 {
			opts = append(opts, generator.WithGroups(c.Source.Groups))
		}
		src = kdag.SourceNode(generator.New(c.Source.Count, opts...))
	case "kafka":
		f, err := kafka.NewSource(kafka.SourceConfig{
			Brokers:   c.Source.Kafka.Brokers,
			Topic:     c.Source.Kafka.Topic,
			Partition: c.Source.Kafka.Partition,
			Schema:    generator.Schema,
			StopAtEnd: c.Source.Kafka.StopAtEnd,
		})
		if err != nil {
			return nil, err
		}
		src = kdag.SourceNode(f)
	default:
		return nil, fmt.Errorf("%w: unknown source %q", errInvalidConfig, c.Source.Type)
	}

	var sink kdag.NodeType
	switch c.Sink.Type {
	case "counting":
		p.counting = counting.New()
		sink = kdag.SinkNode(p.counting)
	case "sqlite":
		f, err := sqlite.New(c.Sink.SQLite.DSN, c.Sink.SQLite.Table)
		if err != nil {
			return nil, err
		}
		sink = kdag.SinkNode(f)
	case "kafka":
		f, err := kafka.NewSink(kafka.SinkConfig{Brokers: c.Sink.Kafka.Brokers, Topic: c.Sink.Kafka.Topic})
		if err != nil {
			return nil, err
		}
		sink = kdag.SinkNode(f)
	default:
		return nil, fmt.Errorf("%w: unknown sink %q", errInvalidConfig, c.Sink.Type)
	}

	if err := p.dag.AddNode(src, sourceHandle); err != nil {
		return nil, err
	}
	if err := p.dag.AddNode(sink, sinkHandle); err != nil {
		return nil, err
	}
	last := sourceHandle
	if c.Counter {
		if err := p.dag.AddNode(kdag.ProcessorNode(processors.NewCounter(1)), counterHandle); err != nil {
			return nil, err
		}
		if err := p.dag.Connect(kdag.NewEndpoint(sourceHandle, 0), kdag.NewEndpoint(counterHandle, 0)); err != nil {
			return nil, err
		}
		last = counterHandle
	}
	if err := p.dag.Connect(kdag.NewEndpoint(last, 0), kdag.NewEndpoint(sinkHandle, 0)); err != nil {
		return nil, err
	}
	return p, nil
}
