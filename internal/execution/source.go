package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/birdayz/kflow/internal/channel"
	"github.com/birdayz/kflow/internal/checkpoint"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
)

type pulled struct {
	emit knode.Emit
	err  error
}

// sourceWorker drives one source. A separate goroutine pulls from the source
// so that barriers and stop requests are served while Next blocks.
type sourceWorker struct {
	node    kdag.NodeHandle
	log     *slog.Logger
	state   *nodeState
	metrics nodeMetrics

	src         knode.Source
	env         kstate.Environment
	fw          *channel.Forwarder
	policy      CheckpointPolicy
	resumeAfter uint64
	stop        <-chan struct{}

	txn         kstate.Transaction
	rec         checkpoint.Record
	lastOffset  uint64
	sinceCommit int
}

func (w *sourceWorker) handle() kdag.NodeHandle {
	return w.node
}

func (w *sourceWorker) nodeState() *nodeState {
	return w.state
}

func (w *sourceWorker) closeOutputs() {
	w.fw.Close()
}

func (w *sourceWorker) run(ctx context.Context) (err error) {
	w.state.changeState(StateRunning)
	defer func() {
		if w.txn != nil {
			w.txn.Discard()
		}
		if err != nil {
			_ = w.src.Close()
			w.state.changeState(StateFailed)
			return
		}
		if cerr := w.src.Close(); cerr != nil {
			err = NewProcessingError(cerr, StageClose, w.node)
			w.state.changeState(StateFailed)
			return
		}
		w.state.changeState(StateTerminated)
	}()

	if err := w.begin(); err != nil {
		return err
	}
	w.lastOffset = w.resumeAfter
	if err := w.src.Open(ctx, w.resumeAfter); err != nil {
		return NewProcessingError(fmt.Errorf("open after offset %d: %w", w.resumeAfter, err), StageInit, w.node)
	}
	w.log.Debug("Source opened", "resume_after", w.resumeAfter)

	pullCtx, cancelPull := context.WithCancel(ctx)
	results := make(chan pulled)
	pullDone := make(chan struct{})
	go w.pull(pullCtx, results, pullDone)
	// The source must not be used concurrently, so Close waits for the
	// puller.
	defer func() {
		cancelPull()
		<-pullDone
	}()

	var tick <-chan time.Time
	if w.policy.Interval > 0 {
		ticker := time.NewTicker(w.policy.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			w.log.Info("Stop requested")
			return w.drain(ctx, cancelPull)
		case <-tick:
			if err := w.checkpoint(ctx); err != nil {
				return err
			}
		case res := <-results:
			if errors.Is(res.err, knode.ErrSourceExhausted) {
				w.log.Info("Source exhausted", "offset", w.lastOffset)
				return w.drain(ctx, cancelPull)
			}
			if res.err != nil {
				return NewProcessingError(res.err, StageSource, w.node)
			}
			if err := w.emit(ctx, res.emit); err != nil {
				return err
			}
			if w.policy.MaxOperations > 0 && w.sinceCommit >= w.policy.MaxOperations {
				if err := w.checkpoint(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (w *sourceWorker) pull(ctx context.Context, results chan<- pulled, done chan<- struct{}) {
	defer close(done)
	for {
		emit, err := w.src.Next(ctx)
		select {
		case results <- pulled{emit: emit, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (w *sourceWorker) emit(ctx context.Context, e knode.Emit) error {
	if e.Offset < w.lastOffset {
		return NewProcessingError(fmt.Errorf("%w: %d after %d", ErrOffsetRegression, e.Offset, w.lastOffset), StageSource, w.node)
	}
	if err := w.fw.Forward(ctx, e.Port, e.Op); err != nil {
		return NewProcessingError(err, StageForward, w.node)
	}
	w.lastOffset = e.Offset
	w.sinceCommit++
	w.metrics.operations.Inc()
	return nil
}

// drain stops pulling, then emits a final barrier and terminates every edge.
// Operations the puller read after the stop are dropped; they are past the
// committed offset and will be read again on resume.
func (w *sourceWorker) drain(ctx context.Context, cancelPull context.CancelFunc) error {
	w.state.changeState(StateDraining)
	cancelPull()
	if err := w.checkpoint(ctx); err != nil {
		return err
	}
	if err := w.fw.SendTerminate(ctx); err != nil {
		return NewProcessingError(err, StageForward, w.node)
	}
	return nil
}

func (w *sourceWorker) begin() error {
	txn, err := w.env.Begin()
	if err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	w.txn = txn
	w.fw.SetTransaction(txn)
	return nil
}

// checkpoint commits the emitted offset and sends a barrier carrying it.
func (w *sourceWorker) checkpoint(ctx context.Context) error {
	start := time.Now()
	w.rec.Emitted = w.lastOffset
	if err := checkpoint.Write(w.txn, w.rec); err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	if err := w.txn.Commit(); err != nil {
		return NewProcessingError(err, StageCommit, w.node)
	}
	w.txn = nil
	if err := w.begin(); err != nil {
		return err
	}
	w.sinceCommit = 0
	w.metrics.commits.Inc()
	w.metrics.commitDuration.Observe(time.Since(start).Seconds())
	w.metrics.emitted.Set(float64(w.lastOffset))
	w.log.Debug("Committed checkpoint", "emitted", w.lastOffset, "duration", time.Since(start))

	if err := w.fw.SendBarrier(ctx, channel.Barrier{w.node: w.lastOffset}); err != nil {
		return NewProcessingError(err, StageForward, w.node)
	}
	w.metrics.barriers.Inc()
	return nil
}
