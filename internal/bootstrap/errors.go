package bootstrap

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnstable is returned by the setup executor and agent launcher when a
// stability probe fails mid-sequence. The orchestrator answers it with a
// rollback to PhaseStabilizing, never a silent proceed.
var ErrUnstable = errors.New("bootstrap: node environment unstable")

// ErrBarrierAlreadySet is returned by a second publish to the cluster
// address barrier. The value is rejected, not overwritten.
var ErrBarrierAlreadySet = errors.New("bootstrap: cluster address barrier already set")

// BootTimeoutError reports that the provider never surfaced a reachable
// address within the boot time budget.
type BootTimeoutError struct {
	Node   string
	Waited time.Duration
}

func (e *BootTimeoutError) Error() string {
	return fmt.Sprintf("node %s: no reachable address within %v", e.Node, e.Waited)
}

// SessionUnavailableError reports that the command channel to a node could
// not be (re-)established within its connect budget.
type SessionUnavailableError struct {
	Node string
	Err  error
}

func (e *SessionUnavailableError) Error() string {
	return fmt.Sprintf("node %s: command channel unavailable: %v", e.Node, e.Err)
}

func (e *SessionUnavailableError) Unwrap() error { return e.Err }

// InstabilityExceededError reports that a node never quiesced within its
// stability attempt budget, or exhausted the global rollback budget.
type InstabilityExceededError struct {
	Node     string
	Attempts int
}

func (e *InstabilityExceededError) Error() string {
	return fmt.Sprintf("node %s: environment never stabilized after %d attempts", e.Node, e.Attempts)
}

// SetupStepFailedError reports a provisioning step that kept failing its
// run or verification after exhausting its per-step attempts.
type SetupStepFailedError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *SetupStepFailedError) Error() string {
	return fmt.Sprintf("setup step %q failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *SetupStepFailedError) Unwrap() error { return e.Err }

// AgentLaunchFailedError reports that the coordination agent did not come
// up within the launch attempt budget.
type AgentLaunchFailedError struct {
	Node     string
	Attempts int
	Err      error
}

func (e *AgentLaunchFailedError) Error() string {
	return fmt.Sprintf("node %s: agent launch failed after %d attempts: %v", e.Node, e.Attempts, e.Err)
}

func (e *AgentLaunchFailedError) Unwrap() error { return e.Err }

// BarrierTimeoutError reports a worker that waited too long for the head
// node's address.
type BarrierTimeoutError struct {
	Node   string
	Waited time.Duration
}

func (e *BarrierTimeoutError) Error() string {
	return fmt.Sprintf("node %s: head address not published within %v", e.Node, e.Waited)
}
