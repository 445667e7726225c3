// Package generator provides a deterministic source. The operation at offset
// n inserts the record (n, "g<n mod groups>"), so a restarted generator
// reproduces exactly what it emitted before.
package generator

import (
	"context"
	"fmt"

	"github.com/birdayz/kflow/knode"
	"golang.org/x/time/rate"
)

// Schema is the schema of generated records.
var Schema = knode.Schema{}.
	Field(knode.FieldDefinition{Name: "id", Type: knode.FieldTypeInt}, true).
	Field(knode.FieldDefinition{Name: "group", Type: knode.FieldTypeString}, false)

const defaultGroups = 10

type Option func(*Factory)

// WithRate limits the generator to perSecond operations per second.
var WithRate = func(perSecond float64) Option {
	return func(f *Factory) {
		f.limit = rate.Limit(perSecond)
	}
}

// WithGroups sets the number of distinct values of the group column.
var WithGroups = func(n int) Option {
	return func(f *Factory) {
		f.groups = n
	}
}

// Unbounded makes the generator run until it is stopped, ignoring count.
var Unbounded = func() Option {
	return func(f *Factory) {
		f.unbounded = true
	}
}

// Stateful makes the output port stateful, so downstream nodes can look
// generated records up by id.
var Stateful = func() Option {
	return func(f *Factory) {
		f.stateful = true
	}
}

// Factory builds generator sources.
type Factory struct {
	count     uint64
	groups    int
	limit     rate.Limit
	unbounded bool
	stateful  bool
}

// New returns a generator of count inserts, offsets 1 to count.
func New(count uint64, opts ...Option) *Factory {
	f := &Factory{count: count, groups: defaultGroups, limit: rate.Inf}
	for _, opt := range opts {
		opt(f)
	}
	if f.groups <= 0 {
		f.groups = 1
	}
	return f
}

func (f *Factory) OutputPorts() []knode.OutputPortDef {
	return []knode.OutputPortDef{knode.NewOutputPortDef(knode.DefaultPortHandle, knode.OutputPortOptions{Stateful: f.stateful})}
}

func (f *Factory) OutputSchema(port knode.PortHandle) (knode.Schema, error) {
	if port != knode.DefaultPortHandle {
		return knode.Schema{}, fmt.Errorf("%w: generator has no port %d", knode.ErrInvalidPortHandle, port)
	}
	return Schema, nil
}

func (f *Factory) Build(map[knode.PortHandle]knode.Schema) (knode.Source, error) {
	return &Source{
		count:     f.count,
		groups:    f.groups,
		unbounded: f.unbounded,
		limiter:   rate.NewLimiter(f.limit, 1),
	}, nil
}

// Record returns the record a generator emits at offset.
func Record(offset uint64, groups int) knode.Record {
	return knode.NewRecord(int64(offset), fmt.Sprintf("g%d", offset%uint64(groups)))
}

// Source is the runtime instance of a generator.
type Source struct {
	count     uint64
	groups    int
	unbounded bool
	limiter   *rate.Limiter
	next      uint64
}

func (s *Source) Open(_ context.Context, resumeAfter uint64) error {
	s.next = resumeAfter + 1
	return nil
}

func (s *Source) Next(ctx context.Context) (knode.Emit, error) {
	if !s.unbounded && s.next > s.count {
		return knode.Emit{}, knode.ErrSourceExhausted
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return knode.Emit{}, err
	}
	offset := s.next
	s.next++
	return knode.Emit{
		Port:   knode.DefaultPortHandle,
		Op:     knode.Insert(Record(offset, s.groups)),
		Offset: offset,
	}, nil
}

func (s *Source) Close() error {
	return nil
}

var (
	_ knode.SourceFactory = (*Factory)(nil)
	_ knode.Source        = (*Source)(nil)
)
