package kafka

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/connectors/generator"
	"github.com/birdayz/kflow/knode"
)

func TestDecodeOperation(t *testing.T) {
	t.Run("update keeps types", func(t *testing.T) {
		op := knode.Update(knode.NewRecord(int64(1), "a"), knode.NewRecord(int64(1), "b"))
		data, err := EncodeOperation(op)
		assert.NoError(t, err)
		got, err := DecodeOperation(data, generator.Schema)
		assert.NoError(t, err)
		assert.Equal(t, op, got)
	})

	t.Run("schema mismatch", func(t *testing.T) {
		data, err := EncodeOperation(knode.Insert(knode.NewRecord(int64(1))))
		assert.NoError(t, err)
		_, err = DecodeOperation(data, generator.Schema)
		assert.IsError(t, err, knode.ErrInvalidRecord)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeOperation([]byte{0xc1}, generator.Schema)
		assert.IsError(t, err, knode.ErrInvalidRecord)
	})
}

func TestConfigValidation(t *testing.T) {
	_, err := NewSource(SourceConfig{Topic: "t"})
	assert.IsError(t, err, ErrInvalidConfig)
	_, err = NewSource(SourceConfig{Brokers: []string{"localhost:9092"}})
	assert.IsError(t, err, ErrInvalidConfig)
	_, err = NewSink(SinkConfig{Brokers: []string{"localhost:9092"}})
	assert.IsError(t, err, ErrInvalidConfig)

	f, err := NewSink(SinkConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	assert.NoError(t, err)
	assert.Equal(t, defaultFlushTimeout, f.cfg.FlushTimeout)
}
