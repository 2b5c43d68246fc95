package trading

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStateTransition is returned by Start and Stop when the agent
	// is not in a state the command applies to. The agent is left unchanged.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrAgentNotFound is returned by the Registry for unknown agent ids.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentExists is returned when registering a duplicate agent id.
	ErrAgentExists = errors.New("agent already registered")

	// ErrInvalidPrice is returned when the price feed quotes a non-positive price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidConfig is returned by NewAgent for unusable configurations.
	ErrInvalidConfig = errors.New("invalid agent config")
)

// Stage names the step of an iteration that failed.
type Stage string

const (
	StagePredict Stage = "predict"
	StagePrice   Stage = "price"
	StagePanic   Stage = "panic"
)

// IterationError is an unexpected fault inside one loop iteration. The
// loop backs off and retries; it never aborts the agent on a single one.
type IterationError struct {
	Stage Stage
	Err   error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration failed at %s: %v", e.Stage, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}
