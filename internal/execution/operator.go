package execution

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/birdayz/kflow/internal/channel"
	"github.com/birdayz/kflow/internal/checkpoint"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

// userStatePrefix confines the state of node implementations, away from the
// checkpoint record and the record stores.
var userStatePrefix = []byte{0x01}

// operator unifies processors and sinks.
type operator interface {
	Init(txn kstate.Transaction) error
	process(ctx context.Context, from knode.PortHandle, op knode.Operation, txn kstate.Transaction, readers map[knode.PortHandle]knode.RecordReader) error
	Commit(txn kstate.Transaction) error
	Close() error
}

type processorOperator struct {
	knode.Processor
	fw knode.Forwarder
}

func (p processorOperator) process(ctx context.Context, from knode.PortHandle, op knode.Operation, txn kstate.Transaction, readers map[knode.PortHandle]knode.RecordReader) error {
	return p.Process(ctx, from, op, p.fw, txn, readers)
}

type sinkOperator struct {
	knode.Sink
}

func (s sinkOperator) process(ctx context.Context, from knode.PortHandle, op knode.Operation, txn kstate.Transaction, readers map[knode.PortHandle]knode.RecordReader) error {
	return s.Process(ctx, from, op, txn, readers)
}

// inputPort tracks the alignment state of one input.
type inputPort struct {
	port    knode.PortHandle
	edge    *channel.Edge
	barrier channel.Barrier
	blocked bool
	closed  bool
}

// operatorWorker drives a processor or a sink. It receives from every input
// port that is neither blocked on a barrier nor closed, and commits once
// every port that is still open has delivered a barrier.
type operatorWorker struct {
	node    kdag.NodeHandle
	log     *slog.Logger
	state   *nodeState
	metrics nodeMetrics

	op      operator
	env     kstate.Environment
	fw      *channel.Forwarder
	inputs  []*inputPort
	readers map[knode.PortHandle]knode.RecordReader

	txn  kstate.Transaction
	user kstate.Transaction
	rec  checkpoint.Record
}

func (w *operatorWorker) handle() kdag.NodeHandle {
	return w.node
}

func (w *operatorWorker) nodeState() *nodeState {
	return w.state
}

func (w *operatorWorker) closeOutputs() {
	w.fw.Close()
}

func (w *operatorWorker) run(ctx context.Context) (err error) {
	w.state.changeState(StateRunning)
	defer func() {
		if w.txn != nil {
			w.txn.Discard()
		}
		if err != nil {
			_ = w.op.Close()
			w.state.changeState(StateFailed)
			return
		}
		if cerr := w.op.Close(); cerr != nil {
			err = NewProcessingError(cerr, StageClose, w.node)
			w.state.changeState(StateFailed)
			return
		}
		w.state.changeState(StateTerminated)
	}()

	if err := w.begin(); err != nil {
		return err
	}
	if err := w.op.Init(w.user); err != nil {
		return NewProcessingError(err, StageInit, w.node)
	}
	if err := w.persist(); err != nil {
		return err
	}

	cases := make([]reflect.SelectCase, 0, len(w.inputs)+1)
	ports := make([]*inputPort, 0, len(w.inputs))
	for {
		if w.allClosed() {
			return w.finish(ctx)
		}

		cases = append(cases[:0], reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
		ports = ports[:0]
		for _, in := range w.inputs {
			if in.blocked || in.closed {
				continue
			}
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(in.edge.C())})
			ports = append(ports, in)
		}

		chosen, v, ok := reflect.Select(cases)
		if chosen == 0 {
			return ctx.Err()
		}
		in := ports[chosen-1]
		if !ok {
			return NewProcessingError(fmt.Errorf("%w: %s", channel.ErrChannelClosed, in.edge), StageReceive, w.node)
		}
		if err := w.handleMessage(ctx, in, v.Interface().(channel.Message)); err != nil {
			return err
		}
	}
}

func (w *operatorWorker) handleMessage(ctx context.Context, in *inputPort, msg channel.Message) error {
	switch msg.Kind {
	case channel.KindOperation:
		if err := w.op.process(ctx, in.port, msg.Op, w.user, w.readers); err != nil {
			return NewProcessingError(err, StageProcess, w.node)
		}
		w.metrics.operations.Inc()
	case channel.KindBarrier:
		in.blocked = true
		in.barrier = msg.Barrier
	case channel.KindTerminate:
		w.log.Debug("Input terminated", "port", in.port)
		in.closed = true
		w.state.changeState(StateDraining)
	}
	if w.aligned() {
		return w.checkpoint(ctx)
	}
	return nil
}

// aligned reports whether at least one barrier is pending and every port
// that is still open has delivered one.
func (w *operatorWorker) aligned() bool {
	pending := false
	for _, in := range w.inputs {
		if in.closed {
			continue
		}
		if !in.blocked {
			return false
		}
		pending = true
	}
	return pending
}

func (w *operatorWorker) allClosed() bool {
	for _, in := range w.inputs {
		if !in.closed {
			return false
		}
	}
	return true
}

func (w *operatorWorker) begin() error {
	txn, err := w.env.Begin()
	if err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	w.txn = txn
	w.user = kstate.Prefixed(txn, userStatePrefix)
	w.fw.SetTransaction(txn)
	return nil
}

// persist commits the open transaction together with the checkpoint record
// and opens the next one.
func (w *operatorWorker) persist() error {
	if err := checkpoint.Write(w.txn, w.rec); err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	if err := w.txn.Commit(); err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	w.txn = nil
	return w.begin()
}

// checkpoint commits the aligned barriers, forwards their union and unblocks
// every port.
func (w *operatorWorker) checkpoint(ctx context.Context) error {
	start := time.Now()
	merged := channel.Barrier{}
	for _, in := range w.inputs {
		if !in.blocked {
			continue
		}
		w.rec.Advance(in.port, in.barrier)
		merged.Merge(in.barrier)
	}

	if err := w.op.Commit(w.user); err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	if err := w.persist(); err != nil {
		return err
	}
	w.metrics.commits.Inc()
	w.metrics.commitDuration.Observe(time.Since(start).Seconds())
	w.log.Debug("Committed checkpoint", "barrier", merged, "duration", time.Since(start))

	if err := w.fw.SendBarrier(ctx, merged); err != nil {
		return NewProcessingError(err, StageForward, w.node)
	}
	w.metrics.barriers.Inc()

	for _, in := range w.inputs {
		in.blocked = false
		in.barrier = nil
	}
	return nil
}

// finish runs once every input is closed: a last commit, then terminate
// downstream.
func (w *operatorWorker) finish(ctx context.Context) error {
	if err := w.op.Commit(w.user); err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	if err := w.persist(); err != nil {
		return err
	}
	if err := w.fw.SendTerminate(ctx); err != nil {
		return NewProcessingError(err, StageForward, w.node)
	}
	return nil
}
