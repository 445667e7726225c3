package execution

import (
	"fmt"
	"time"
)

// CheckpointPolicy decides when sources emit checkpoint barriers. A barrier
// is emitted when either trigger fires. Interval-triggered barriers fire
// even while the source is idle; with Interval unset, an idle source holds
// back the commits of every node that joins its data with other inputs.
type CheckpointPolicy struct {
	// Interval is the maximum time between two barriers. Zero disables the
	// time trigger.
	Interval time.Duration
	// MaxOperations is the maximum number of operations between two
	// barriers. Zero disables the volume trigger.
	MaxOperations int
}

// DefaultCheckpointPolicy returns the policy used when none is configured.
func DefaultCheckpointPolicy() CheckpointPolicy {
	return CheckpointPolicy{
		Interval:      time.Second,
		MaxOperations: 10_000,
	}
}

func (p CheckpointPolicy) Validate() error {
	if p.Interval < 0 || p.MaxOperations < 0 {
		return fmt.Errorf("%w: negative trigger", ErrInvalidCheckpointPolicy)
	}
	if p.Interval == 0 && p.MaxOperations == 0 {
		return fmt.Errorf("%w: at least one of interval and max operations must be set", ErrInvalidCheckpointPolicy)
	}
	return nil
}
