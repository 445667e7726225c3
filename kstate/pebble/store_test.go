package pebble

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kstate/kstatetest"
)

func TestBackend(t *testing.T) {
	kstatetest.RunContractTests(t, New(), kstatetest.Durable)
}

func TestUpperBound(t *testing.T) {
	cases := []struct {
		prefix, want []byte
	}{
		{[]byte("a"), []byte("b")},
		{[]byte{1, 0xff}, []byte{2}},
		{[]byte{0xff, 0xff}, nil},
	}
	for _, tc := range cases {
		got := upperBound(tc.prefix)
		if string(got) != string(tc.want) || (got == nil) != (tc.want == nil) {
			t.Errorf("upperBound(%x) = %x, want %x", tc.prefix, got, tc.want)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := &pebbleLogger{logger: log}
	l.Infof("[JOB %d] WAL file %s", 1, "000002.log")
	assert.Contains(t, buf.String(), "[JOB 1] WAL file 000002.log")
	assert.Panics(t, func() { l.Fatalf("corrupt %s", "MANIFEST") })
	assert.Contains(t, buf.String(), "corrupt MANIFEST")

	b := &Backend{NoSync: true, Logger: log}
	dir := t.TempDir()
	for range 2 {
		env, err := b.Open(dir)
		assert.NoError(t, err)
		assert.NoError(t, env.Close())
	}
}
