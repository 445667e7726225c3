// Package kafka connects pipelines to Kafka topics.
//
// The source reads one partition. The offset it reports for a Kafka record is
// the record's Kafka offset plus one, so resuming after offset n starts at
// Kafka offset n. The sink produces one record per operation, keyed by the
// record's primary key, and flushes at every checkpoint. Record values are
// encoded with EncodeOperation.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/birdayz/kflow/knode"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

var ErrInvalidConfig = errors.New("invalid kafka config")

// SourceConfig configures a Kafka source.
type SourceConfig struct {
	Brokers   []string
	Topic     string
	Partition int32
	// Schema of the records carried by the topic.
	Schema knode.Schema
	// StopAtEnd makes the source exhausted once it reached the partition's
	// end offset as of Open. Otherwise it waits for new records forever.
	StopAtEnd bool
	Log       *slog.Logger
}

func (c SourceConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: no brokers", ErrInvalidConfig)
	}
	if c.Topic == "" {
		return fmt.Errorf("%w: no topic", ErrInvalidConfig)
	}
	if c.Partition < 0 {
		return fmt.Errorf("%w: negative partition", ErrInvalidConfig)
	}
	return c.Schema.Validate()
}

// SourceFactory builds Kafka sources.
type SourceFactory struct {
	cfg SourceConfig
}

func NewSource(cfg SourceConfig) (*SourceFactory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SourceFactory{cfg: cfg}, nil
}

func (f *SourceFactory) OutputPorts() []knode.OutputPortDef {
	return []knode.OutputPortDef{knode.NewOutputPortDef(knode.DefaultPortHandle, knode.OutputPortOptions{})}
}

func (f *SourceFactory) OutputSchema(port knode.PortHandle) (knode.Schema, error) {
	if port != knode.DefaultPortHandle {
		return knode.Schema{}, fmt.Errorf("%w: kafka source has no port %d", knode.ErrInvalidPortHandle, port)
	}
	return f.cfg.Schema, nil
}

func (f *SourceFactory) Build(map[knode.PortHandle]knode.Schema) (knode.Source, error) {
	return &Source{cfg: f.cfg}, nil
}

// Source is the runtime instance of a Kafka source.
type Source struct {
	cfg    SourceConfig
	client *kgo.Client

	buffered []*kgo.Record
	next     int64
	end      int64
}

func (s *Source) Open(ctx context.Context, resumeAfter uint64) error {
	s.next = int64(resumeAfter)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			s.cfg.Topic: {s.cfg.Partition: kgo.NewOffset().At(s.next)},
		}),
		kgo.FetchMaxWait(500*time.Millisecond),
		clientLogger(s.cfg.Log),
	)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	s.client = client

	if !s.cfg.StopAtEnd {
		return nil
	}
	offsets, err := kadm.NewClient(client).ListEndOffsets(ctx, s.cfg.Topic)
	if err != nil {
		return fmt.Errorf("fetch end offset: %w", err)
	}
	end, ok := offsets.Lookup(s.cfg.Topic, s.cfg.Partition)
	if !ok {
		return fmt.Errorf("%w: partition %d of %s not found", ErrInvalidConfig, s.cfg.Partition, s.cfg.Topic)
	}
	if end.Err != nil {
		return fmt.Errorf("fetch end offset: %w", end.Err)
	}
	s.end = end.Offset
	return nil
}

func (s *Source) Next(ctx context.Context) (knode.Emit, error) {
	if s.cfg.StopAtEnd && s.next >= s.end {
		return knode.Emit{}, knode.ErrSourceExhausted
	}
	for len(s.buffered) == 0 {
		fetches := s.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return knode.Emit{}, err
		}
		if fetches.IsClientClosed() {
			return knode.Emit{}, errors.New("kafka client closed")
		}
		if err := fetches.Err(); err != nil {
			return knode.Emit{}, fmt.Errorf("fetch %s/%d: %w", s.cfg.Topic, s.cfg.Partition, err)
		}
		s.buffered = fetches.Records()
	}

	r := s.buffered[0]
	s.buffered = s.buffered[1:]
	op, err := DecodeOperation(r.Value, s.cfg.Schema)
	if err != nil {
		return knode.Emit{}, fmt.Errorf("record at offset %d: %w", r.Offset, err)
	}
	s.next = r.Offset + 1
	return knode.Emit{
		Port:   knode.DefaultPortHandle,
		Op:     op,
		Offset: uint64(r.Offset) + 1,
	}, nil
}

func (s *Source) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

var (
	_ knode.SourceFactory = (*SourceFactory)(nil)
	_ knode.Source        = (*Source)(nil)
)
