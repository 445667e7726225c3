package execution

import (
	"errors"
	"fmt"

	"github.com/birdayz/kflow/kdag"
)

// ProcessingStage indicates where in a node's lifecycle an error occurred
type ProcessingStage string

const (
	StageBuild   ProcessingStage = "build"
	StageInit    ProcessingStage = "init"
	StageSource  ProcessingStage = "source"
	StageProcess ProcessingStage = "process"
	StageForward ProcessingStage = "forward"
	StageReceive ProcessingStage = "receive"
	StageCommit  ProcessingStage = "commit"
	StageClose   ProcessingStage = "close"
)

var (
	ErrInvalidCheckpointPolicy = errors.New("invalid checkpoint policy")
	ErrOffsetRegression        = errors.New("source offset went backwards")
)

// ProcessingError wraps an error with the node and stage it occurred in.
type ProcessingError struct {
	// Cause is the underlying error
	Cause error

	// Stage identifies where in the node's lifecycle the error occurred
	Stage ProcessingStage

	// Node is the node that failed
	Node kdag.NodeHandle
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s error in node %q: %v", e.Stage, e.Node, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError creates a ProcessingError. An error that already is a
// ProcessingError is returned unchanged.
func NewProcessingError(cause error, stage ProcessingStage, node kdag.NodeHandle) error {
	var pe *ProcessingError
	if errors.As(cause, &pe) {
		return cause
	}
	return &ProcessingError{Cause: cause, Stage: stage, Node: node}
}
