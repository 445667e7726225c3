package kflow

import (
	"log/slog"
	"time"

	"github.com/birdayz/kflow/internal/execution"
	"github.com/birdayz/kflow/kstate"
	"github.com/prometheus/client_golang/prometheus"
)

type config struct {
	backend         kstate.Backend
	channelCapacity int
	policy          CheckpointPolicy
	log             *slog.Logger
	registerer      prometheus.Registerer
}

// Option is a function that configures an Executor or a MetadataManager.
type Option func(*config)

// WithStorage sets the storage backend of node environments. Default is
// pebble.
var WithStorage = func(backend kstate.Backend) Option {
	return func(c *config) {
		c.backend = backend
	}
}

// WithChannelCapacity sets the number of messages buffered per edge.
var WithChannelCapacity = func(n int) Option {
	return func(c *config) {
		c.channelCapacity = n
	}
}

// WithCheckpointPolicy sets when sources emit checkpoint barriers.
var WithCheckpointPolicy = func(p CheckpointPolicy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithCheckpointInterval is a shorthand that sets only the time trigger of
// the checkpoint policy.
var WithCheckpointInterval = func(interval time.Duration) Option {
	return func(c *config) {
		c.policy.Interval = interval
	}
}

// WithLogger sets the logger. Default discards everything.
var WithLogger = func(log *slog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithMetricsRegisterer registers the executor's metrics with reg.
var WithMetricsRegisterer = func(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// CheckpointPolicy decides when sources emit checkpoint barriers.
type CheckpointPolicy = execution.CheckpointPolicy

// DefaultCheckpointPolicy emits a barrier every second or every 10000
// operations, whichever comes first.
var DefaultCheckpointPolicy = execution.DefaultCheckpointPolicy

// NodeState is the lifecycle state of one node.
type NodeState = execution.NodeState

// Node states
const (
	StateUninitialized = execution.StateUninitialized
	StateInitialized   = execution.StateInitialized
	StateRunning       = execution.StateRunning
	StateDraining      = execution.StateDraining
	StateTerminated    = execution.StateTerminated
	StateFailed        = execution.StateFailed
)

// ProcessingError identifies the node and stage a run failed in.
type ProcessingError = execution.ProcessingError

// ProcessingStage indicates where in a node's lifecycle an error occurred.
type ProcessingStage = execution.ProcessingStage

// NullWriter is a writer that discards all data
type NullWriter struct{}

func (NullWriter) Write(p []byte) (int, error) { return len(p), nil }

// NullLogger creates a logger that discards all output
func NullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(NullWriter{}, nil))
}
