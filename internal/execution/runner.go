// Package execution runs a kdag.Dag: one goroutine per node, one bounded
// channel per edge, checkpoint barriers flowing from sources to sinks.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/birdayz/kflow/internal/channel"
	"github.com/birdayz/kflow/internal/checkpoint"
	"github.com/birdayz/kflow/internal/statedir"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Config configures a Runner.
type Config struct {
	Backend         kstate.Backend
	ChannelCapacity int
	Policy          CheckpointPolicy
	Log             *slog.Logger
	Metrics         *Metrics
}

// Plan is a DAG prepared for execution.
type Plan struct {
	Dag     *kdag.Dag
	Schemas *kdag.Schemas
	Order   []kdag.NodeHandle
}

// NewPlan validates dag and propagates its schemas.
func NewPlan(dag *kdag.Dag) (*Plan, error) {
	schemas, err := dag.PropagateSchemas()
	if err != nil {
		return nil, err
	}
	order, err := dag.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	return &Plan{Dag: dag, Schemas: schemas, Order: order}, nil
}

type worker interface {
	handle() kdag.NodeHandle
	nodeState() *nodeState
	run(ctx context.Context) error
	closeOutputs()
}

// Runner executes a Plan once.
type Runner struct {
	plan *Plan
	dir  string
	cfg  Config
	log  *slog.Logger

	envs    map[kdag.NodeHandle]*statedir.Env
	workers []worker
	states  map[kdag.NodeHandle]*nodeState

	stop     chan struct{}
	stopOnce sync.Once

	group    *errgroup.Group
	errOnce  sync.Once
	firstErr error
	cancel   context.CancelFunc
}

func NewRunner(plan *Plan, dir string, cfg Config) *Runner {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics, _ = NewMetrics(nil)
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = channel.DefaultCapacity
	}
	r := &Runner{
		plan:   plan,
		dir:    dir,
		cfg:    cfg,
		log:    cfg.Log,
		envs:   make(map[kdag.NodeHandle]*statedir.Env, len(plan.Order)),
		states: make(map[kdag.NodeHandle]*nodeState, len(plan.Order)),
		stop:   make(chan struct{}),
	}
	for _, h := range plan.Order {
		r.states[h] = &nodeState{log: r.log.With("node", h.String())}
	}
	return r
}

// Start opens every environment, builds every node and spawns the workers.
// If anything fails before the workers run, everything opened is closed
// again.
func (r *Runner) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = multierr.Append(err, r.closeEnvs())
		}
	}()

	for _, h := range r.plan.Order {
		env, err := statedir.Open(r.dir, h, r.cfg.Backend)
		if err != nil {
			return err
		}
		r.envs[h] = env
	}

	records, err := r.readRecords()
	if err != nil {
		return err
	}
	consistency := checkpoint.Classify(r.plan.Dag, records)

	outgoing := make(map[kdag.NodeHandle][]*channel.Edge)
	incoming := make(map[kdag.NodeHandle][]*channel.Edge)
	for _, e := range r.plan.Dag.Edges() {
		edge := channel.NewEdge(e, r.cfg.ChannelCapacity)
		outgoing[e.From.Node] = append(outgoing[e.From.Node], edge)
		incoming[e.To.Node] = append(incoming[e.To.Node], edge)
	}

	for _, h := range r.plan.Order {
		w, err := r.build(h, records[h], consistency, outgoing[h], incoming[h])
		if err != nil {
			return err
		}
		r.workers = append(r.workers, w)
		r.states[h].changeState(StateInitialized)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	for _, w := range r.workers {
		r.group.Go(func() error {
			err := w.run(ctx)
			if err != nil {
				r.fail(err)
			}
			w.closeOutputs()
			return err
		})
	}
	r.log.Info("Started", "nodes", len(r.workers), "edges", len(r.plan.Dag.Edges()))
	return nil
}

// fail records the first error and cancels every worker before the failing
// worker closes its edges, so downstream workers never report a closed
// channel as the cause.
func (r *Runner) fail(err error) {
	r.errOnce.Do(func() {
		r.firstErr = err
		r.log.Error("Node failed", "error", err)
		r.cancel()
	})
}

func (r *Runner) readRecords() (map[kdag.NodeHandle]checkpoint.Record, error) {
	records := make(map[kdag.NodeHandle]checkpoint.Record, len(r.envs))
	for h, env := range r.envs {
		rec, _, err := checkpoint.Read(env.Reader())
		if err != nil {
			return nil, fmt.Errorf("read checkpoint of %s: %w", h, err)
		}
		records[h] = rec
	}
	return records, nil
}

func (r *Runner) build(h kdag.NodeHandle, rec checkpoint.Record, consistency map[kdag.NodeHandle]checkpoint.Consistency, out, in []*channel.Edge) (worker, error) {
	node, _ := r.plan.Dag.Node(h)
	inputs := r.plan.Schemas.Inputs(h)
	outputs := r.plan.Schemas.Outputs(h)
	log := r.log.With("node", h.String())

	fw, err := channel.NewForwarder(h, node.OutputPorts(), outputs, out)
	if err != nil {
		return nil, NewProcessingError(err, StageBuild, h)
	}
	metrics := r.cfg.Metrics.forNode(h.String())

	if node.Type.Kind() == kdag.KindSource {
		src, err := node.Type.Source().Build(outputs)
		if err != nil {
			return nil, NewProcessingError(err, StageBuild, h)
		}
		resume := consistency[h].ResumeOffset()
		if resume < rec.Emitted {
			log.Warn("Downstream nodes lag behind, replaying", "emitted", rec.Emitted, "resume_after", resume)
		}
		return &sourceWorker{
			node:        h,
			log:         log,
			state:       r.states[h],
			metrics:     metrics,
			src:         src,
			env:         r.envs[h],
			fw:          fw,
			policy:      r.cfg.Policy,
			resumeAfter: resume,
			stop:        r.stop,
			rec:         rec,
		}, nil
	}

	var op operator
	switch node.Type.Kind() {
	case kdag.KindProcessor:
		p, err := node.Type.Processor().Build(inputs, outputs)
		if err != nil {
			return nil, NewProcessingError(err, StageBuild, h)
		}
		op = processorOperator{Processor: p, fw: fw}
	case kdag.KindSink:
		s, err := node.Type.Sink().Build(inputs)
		if err != nil {
			return nil, NewProcessingError(err, StageBuild, h)
		}
		op = sinkOperator{Sink: s}
	default:
		return nil, NewProcessingError(errors.New("unknown node kind"), StageBuild, h)
	}

	ports := make([]*inputPort, 0, len(in))
	readers := make(map[knode.PortHandle]knode.RecordReader)
	for _, e := range in {
		ports = append(ports, &inputPort{port: e.To.Port, edge: e})

		upstream, _ := r.plan.Dag.Node(e.From.Node)
		def, _ := knode.FindOutputPort(upstream.OutputPorts(), e.From.Port)
		if def.Options.Stateful {
			readers[e.To.Port] = channel.NewRecordReader(r.envs[e.From.Node].Reader(), e.From.Port)
		}
	}

	return &operatorWorker{
		node:    h,
		log:     log,
		state:   r.states[h],
		metrics: metrics,
		op:      op,
		env:     r.envs[h],
		fw:      fw,
		inputs:  ports,
		readers: readers,
		rec:     rec,
	}, nil
}

// Stop asks every source to stop. It is safe to call more than once and
// from any goroutine.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// Wait waits for every worker, then closes the environments. It returns the
// first worker error.
func (r *Runner) Wait() error {
	err := r.group.Wait()
	if r.firstErr != nil {
		err = r.firstErr
	}
	r.cancel()
	if cerr := r.closeEnvs(); cerr != nil {
		r.log.Error("Failed to close state", "error", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

func (r *Runner) closeEnvs() error {
	var err error
	for h, env := range r.envs {
		if cerr := env.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close state of %s: %w", h, cerr))
		}
		delete(r.envs, h)
	}
	return err
}

// States returns a snapshot of every node's state.
func (r *Runner) States() map[kdag.NodeHandle]NodeState {
	res := make(map[kdag.NodeHandle]NodeState, len(r.states))
	for h, s := range r.states {
		res[h] = s.get()
	}
	return res
}
