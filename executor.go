// Package kflow executes dataflow pipelines described by a kdag.Dag.
//
// Every node runs on its own goroutine and owns a private transactional
// state environment below the executor's directory. Sources emit checkpoint
// barriers; a node commits its state together with the source offsets it has
// seen once a barrier arrived on every input. After a run, a MetadataManager
// tells per source whether all downstream state caught up with it.
package kflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/birdayz/kflow/internal/execution"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kstate/pebble"
	"github.com/google/uuid"
)

var (
	ErrAlreadyStarted = errors.New("kflow: executor already started")
	ErrNotStarted     = errors.New("kflow: executor not started")
)

// Executor runs a DAG once. Create a new Executor for every run.
type Executor struct {
	dag    *kdag.Dag
	plan   *execution.Plan
	dir    string
	cfg    config
	runID  string
	runner *execution.Runner

	mu            sync.Mutex
	started       bool
	stopRequested bool
}

func newConfig(opts []Option) config {
	cfg := config{
		backend:         pebble.New(),
		channelCapacity: 0,
		policy:          DefaultCheckpointPolicy(),
		log:             NullLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewExecutor prepares dag for execution with state below dir. Graph and
// schema errors are returned here, before anything runs.
func NewExecutor(dag *kdag.Dag, dir string, opts ...Option) (*Executor, error) {
	cfg := newConfig(opts)
	if err := cfg.policy.Validate(); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, errors.New("kflow: state directory required")
	}

	plan, err := execution.NewPlan(dag)
	if err != nil {
		return nil, fmt.Errorf("kflow: invalid pipeline: %w", err)
	}

	runID := uuid.NewString()
	cfg.log = cfg.log.With("run", runID)

	return &Executor{
		dag:   dag,
		plan:  plan,
		dir:   dir,
		cfg:   cfg,
		runID: runID,
	}, nil
}

// RunID identifies this run in logs.
func (e *Executor) RunID() string {
	return e.runID
}

// Start builds every node and starts the workers. It does not block. ctx
// bounds the whole run; canceling it aborts all workers.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	metrics, err := execution.NewMetrics(e.cfg.registerer)
	if err != nil {
		return fmt.Errorf("kflow: register metrics: %w", err)
	}

	runner := execution.NewRunner(e.plan, e.dir, execution.Config{
		Backend:         e.cfg.backend,
		ChannelCapacity: e.cfg.channelCapacity,
		Policy:          e.cfg.policy,
		Log:             e.cfg.log,
		Metrics:         metrics,
	})
	if err := runner.Start(ctx); err != nil {
		return err
	}
	if e.stopRequested {
		runner.Stop()
	}
	e.runner = runner
	return nil
}

// Stop asks every source to stop. Sources emit a final barrier and close
// their outputs; the rest of the graph drains. Stop does not wait, use Join.
// A Stop before Start makes the run stop right after it started.
func (e *Executor) Stop() {
	e.mu.Lock()
	e.stopRequested = true
	runner := e.runner
	e.mu.Unlock()
	if runner != nil {
		runner.Stop()
	}
}

// Join waits for every node to finish and closes all state. It returns the
// first error of any node, a *ProcessingError naming the node and stage, or
// the context error if the run was canceled.
func (e *Executor) Join() error {
	e.mu.Lock()
	runner := e.runner
	e.mu.Unlock()
	if runner == nil {
		return ErrNotStarted
	}
	return runner.Wait()
}

// NodeStates returns the current state of every node.
func (e *Executor) NodeStates() map[kdag.NodeHandle]NodeState {
	e.mu.Lock()
	runner := e.runner
	e.mu.Unlock()
	if runner == nil {
		res := make(map[kdag.NodeHandle]NodeState, len(e.plan.Order))
		for _, h := range e.plan.Order {
			res[h] = StateUninitialized
		}
		return res
	}
	return runner.States()
}
