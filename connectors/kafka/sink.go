package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
	"github.com/twmb/franz-go/pkg/kgo"
)

const defaultFlushTimeout = 30 * time.Second

// SinkConfig configures a Kafka sink.
type SinkConfig struct {
	Brokers []string
	Topic   string
	// FlushTimeout bounds the flush at every checkpoint.
	FlushTimeout time.Duration
	Log          *slog.Logger
}

// SinkFactory builds Kafka sinks.
type SinkFactory struct {
	cfg SinkConfig
}

func NewSink(cfg SinkConfig) (*SinkFactory, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: no brokers", ErrInvalidConfig)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: no topic", ErrInvalidConfig)
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	return &SinkFactory{cfg: cfg}, nil
}

func (f *SinkFactory) InputPorts() []knode.PortHandle {
	return []knode.PortHandle{knode.DefaultPortHandle}
}

func (f *SinkFactory) Build(inputs map[knode.PortHandle]knode.Schema) (knode.Sink, error) {
	schema, err := knode.SchemaRequired(inputs, knode.DefaultPortHandle)
	if err != nil {
		return nil, err
	}
	return &Sink{cfg: f.cfg, schema: schema}, nil
}

// Sink is the runtime instance of a Kafka sink. Produced records are
// acknowledged at the latest by the next checkpoint; a failed delivery fails
// that checkpoint.
type Sink struct {
	cfg    SinkConfig
	schema knode.Schema
	client *kgo.Client

	mu       sync.Mutex
	firstErr error
}

func (s *Sink) Init(kstate.Transaction) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.DefaultProduceTopic(s.cfg.Topic),
		clientLogger(s.cfg.Log),
	)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	s.client = client
	return nil
}

func (s *Sink) Process(ctx context.Context, _ knode.PortHandle, op knode.Operation, _ kstate.Transaction, _ map[knode.PortHandle]knode.RecordReader) error {
	key, err := op.Current().Key(s.schema)
	if err != nil {
		return err
	}
	value, err := EncodeOperation(op)
	if err != nil {
		return err
	}
	s.client.Produce(ctx, &kgo.Record{Key: key, Value: value}, s.delivered)
	return s.err()
}

func (s *Sink) delivered(_ *kgo.Record, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
	}
}

func (s *Sink) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr != nil {
		return fmt.Errorf("produce to %s: %w", s.cfg.Topic, s.firstErr)
	}
	return nil
}

func (s *Sink) Commit(kstate.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout)
	defer cancel()
	if err := s.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return s.err()
}

func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

var (
	_ knode.SinkFactory = (*SinkFactory)(nil)
	_ knode.Sink        = (*Sink)(nil)
)
