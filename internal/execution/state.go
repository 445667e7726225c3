package execution

import (
	"log/slog"
	"sync/atomic"
)

// NodeState is the lifecycle state of one node worker.
type NodeState int32

const (
	StateUninitialized NodeState = iota
	StateInitialized
	StateRunning
	StateDraining
	StateTerminated
	StateFailed
)

func (s NodeState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateTerminated:
		return "TERMINATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// nodeState is written by the node's worker and read by anyone.
type nodeState struct {
	v   atomic.Int32
	log *slog.Logger
}

func (s *nodeState) get() NodeState {
	return NodeState(s.v.Load())
}

func (s *nodeState) changeState(newState NodeState) {
	old := NodeState(s.v.Swap(int32(newState)))
	if old != newState {
		s.log.Info("Change state", "from", old, "to", newState)
	}
}
