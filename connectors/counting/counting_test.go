package counting

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/knode"
)

func TestCountingSharedAcrossBuilds(t *testing.T) {
	f := New()
	for range 2 {
		s, err := f.Build(nil)
		assert.NoError(t, err)
		assert.NoError(t, s.Process(context.Background(), 0, knode.Insert(knode.NewRecord(int64(1))), nil, nil))
		assert.NoError(t, s.Process(context.Background(), 0, knode.Delete(knode.NewRecord(int64(1))), nil, nil))
		assert.NoError(t, s.Commit(nil))
	}
	assert.Equal(t, uint64(4), f.Count())
	inserts, updates, deletes := f.Kinds()
	assert.Equal(t, uint64(2), inserts)
	assert.Equal(t, uint64(0), updates)
	assert.Equal(t, uint64(2), deletes)
	assert.Equal(t, uint64(2), f.Commits())
}
