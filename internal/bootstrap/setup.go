package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sshx "github.com/skyward-cloud/nodeboot/internal/platform/ssh"
	"github.com/skyward-cloud/nodeboot/internal/util/retry"
)

// SetupStep is one named, idempotent provisioning command. Verify, when
// set, must exit zero for the step to count as done; it also short-circuits
// a re-run after a rollback.
type SetupStep struct {
	Name    string
	Command string
	Verify  string
}

// DefaultSetupSteps prepares a stock Ubuntu image for the cluster agent:
// silence the background upgrader, install the runtime manager, install
// the agent package, then verify the install end to end. Every command is
// safe to run twice.
func DefaultSetupSteps() []SetupStep {
	return []SetupStep{
		{
			Name: "disable-auto-upgrades",
			Command: "sudo systemctl stop unattended-upgrades 2>/dev/null; " +
				"sudo systemctl disable unattended-upgrades 2>/dev/null; true",
		},
		{
			Name: "install-runtime-manager",
			Command: "test -d $HOME/miniconda3 || (" +
				"curl -fsSL https://repo.anaconda.com/miniconda/Miniconda3-latest-Linux-x86_64.sh -o /tmp/miniconda.sh && " +
				"bash /tmp/miniconda.sh -b -p $HOME/miniconda3)",
			Verify: "test -x $HOME/miniconda3/bin/python",
		},
		{
			Name:    "install-cluster-agent",
			Command: "$HOME/miniconda3/bin/pip install -q 'ray[default]'",
			Verify:  "test -x $HOME/miniconda3/bin/ray",
		},
		{
			Name:    "verify-install",
			Command: "$HOME/miniconda3/bin/ray --version",
		},
	}
}

// ExecutorConfig tunes the setup step executor.
type ExecutorConfig struct {
	// Retry is the per-step attempt budget.
	Retry RetryPolicy
	// CommandTimeout bounds each remote command.
	CommandTimeout time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = 10 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 5 * time.Minute
	}
	return c
}

// Executor runs an ordered sequence of setup steps over an established
// command channel, re-checking stability before every step.
type Executor struct {
	steps    []SetupStep
	detector *Detector
	cfg      ExecutorConfig
	obs      Observer
}

// NewExecutor creates a setup executor for the given ordered steps.
func NewExecutor(steps []SetupStep, detector *Detector, cfg ExecutorConfig, obs Observer) *Executor {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Executor{steps: steps, detector: detector, cfg: cfg.withDefaults(), obs: obs}
}

// Run executes every step in order. A stability probe failing before a
// step aborts with ErrUnstable so the caller can roll the node back; a
// step exhausting its attempt budget returns a SetupStepFailedError.
// lastUptime is the node's current uptime baseline; the possibly-updated
// baseline is returned on every path.
func (e *Executor) Run(ctx context.Context, sess sshx.Session, node string, lastUptime time.Duration) (time.Duration, error) {
	baseline := lastUptime

	for _, step := range e.steps {
		ev, err := e.detector.Check(ctx, sess, baseline)
		if err != nil {
			return baseline, err
		}
		baseline = ev.Uptime
		if !ev.Stable() {
			return baseline, fmt.Errorf("before step %q: %w", step.Name, ErrUnstable)
		}

		if err := e.runStep(ctx, sess, node, step); err != nil {
			return baseline, err
		}
	}

	return baseline, nil
}

func (e *Executor) runStep(ctx context.Context, sess sshx.Session, node string, step SetupStep) error {
	// A step that already verifies is done from an earlier pass.
	if step.Verify != "" {
		res, err := sess.Run(ctx, step.Verify, e.cfg.CommandTimeout)
		if err == nil && res.ExitCode == 0 {
			return nil
		}
	}

	attempts := 0
	opts := append(e.cfg.Retry.options(), retry.WithNotify(func(attempt int, err error) {
		e.obs.Event(Event{
			Type:    EventAttempt,
			Node:    node,
			Phase:   PhaseSettingUp,
			Attempt: attempt,
			Message: fmt.Sprintf("step %s: %v", step.Name, err),
		})
	}))
	err := retry.Do(ctx, func() error {
		attempts++
		return e.execute(ctx, sess, step)
	}, opts...)
	if err != nil {
		var fatal *retry.FatalError
		if errors.As(err, &fatal) {
			err = fatal.Err
		}
		return &SetupStepFailedError{Step: step.Name, Attempts: attempts, Err: err}
	}
	return nil
}

// execute runs the step command and its verification once.
func (e *Executor) execute(ctx context.Context, sess sshx.Session, step SetupStep) error {
	res, err := sess.Run(ctx, step.Command, e.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exit %d: %s", res.ExitCode, firstLine(res.Stderr))
	}

	if step.Verify != "" {
		res, err := sess.Run(ctx, step.Verify, e.cfg.CommandTimeout)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("verification exit %d: %s", res.ExitCode, firstLine(res.Stderr))
		}
	}
	return nil
}

// firstLine trims remote stderr down to its first line for error messages.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
