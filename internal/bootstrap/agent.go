package bootstrap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	sshx "github.com/skyward-cloud/nodeboot/internal/platform/ssh"
)

// AgentConfig tunes the agent launch coordinator. The command templates
// accept {node_ip}, {head_ip} and {port} placeholders.
type AgentConfig struct {
	Port          int
	HeadCommand   string
	WorkerCommand string
	StatusCommand string

	// Retry is the launch attempt budget.
	Retry RetryPolicy
	// GraceWindow is how long a freshly started agent must stay up before
	// it counts as running. An exit inside the window is a failed attempt.
	GraceWindow time.Duration
	// CommandTimeout bounds each remote command.
	CommandTimeout time.Duration
}

func (c AgentConfig) withDefaults() AgentConfig {
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 10
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = 15 * time.Second
	}
	if c.GraceWindow == 0 {
		c.GraceWindow = 10 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 5 * time.Minute
	}
	return c
}

// LaunchSpec identifies the node an agent is launched on. HeadAddress is
// the node's own address on the head, the published head address on
// workers.
type LaunchSpec struct {
	Node        string
	Role        Role
	Address     string
	HeadAddress string
}

// Launcher starts the cluster agent on a node and verifies it stays up.
// The head node's launcher publishes the head address to the barrier once
// the agent is confirmed running.
type Launcher struct {
	detector *Detector
	barrier  *ClusterAddressBarrier
	cfg      AgentConfig
	obs      Observer
}

// NewLauncher creates an agent launch coordinator.
func NewLauncher(detector *Detector, barrier *ClusterAddressBarrier, cfg AgentConfig, obs Observer) *Launcher {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Launcher{detector: detector, barrier: barrier, cfg: cfg.withDefaults(), obs: obs}
}

// Launch drives the launch attempt budget. A failed stability probe
// aborts with ErrUnstable so the caller can roll the node back; anything
// else burns attempts until the budget is spent, which yields an
// AgentLaunchFailedError. The updated uptime baseline is returned on
// every path.
func (l *Launcher) Launch(ctx context.Context, sess sshx.Session, spec LaunchSpec, lastUptime time.Duration) (time.Duration, error) {
	baseline := lastUptime
	var lastErr error

	// Heads launch straight out of setup; workers launch while waiting
	// on the barrier. Events carry the matching phase.
	phase := PhaseSettingUp
	if spec.Role == RoleWorker {
		phase = PhaseAwaitingBarrier
	}

	for attempt := 1; attempt <= l.cfg.Retry.MaxAttempts; attempt++ {
		ev, err := l.detector.Check(ctx, sess, baseline)
		if err != nil {
			return baseline, err
		}
		baseline = ev.Uptime
		if !ev.Stable() {
			return baseline, fmt.Errorf("before launch attempt %d: %w", attempt, ErrUnstable)
		}

		err = l.attempt(ctx, sess, spec)
		if err == nil {
			if spec.Role == RoleHead && l.barrier != nil {
				if err := l.barrier.Publish(spec.Address); err != nil {
					return baseline, err
				}
				l.obs.Event(Event{
					Type:    EventBarrierPublished,
					Node:    spec.Node,
					Phase:   phase,
					Message: spec.Address,
				})
			}
			return baseline, nil
		}
		lastErr = err

		l.obs.Event(Event{
			Type:    EventAttempt,
			Node:    spec.Node,
			Phase:   phase,
			Attempt: attempt,
			Message: fmt.Sprintf("agent launch: %v", err),
		})

		if attempt < l.cfg.Retry.MaxAttempts {
			if err := sleep(ctx, l.cfg.Retry.Delay); err != nil {
				return baseline, err
			}
		}
	}

	return baseline, &AgentLaunchFailedError{Node: spec.Node, Attempts: l.cfg.Retry.MaxAttempts, Err: lastErr}
}

// attempt performs one start-then-verify cycle.
func (l *Launcher) attempt(ctx context.Context, sess sshx.Session, spec LaunchSpec) error {
	if spec.Role == RoleWorker {
		res, err := sess.Run(ctx, fmt.Sprintf("ping -c 1 -W 5 %s", spec.HeadAddress), l.cfg.CommandTimeout)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("head %s unreachable", spec.HeadAddress)
		}
	}

	res, err := sess.Run(ctx, l.render(l.startCommand(spec.Role), spec), l.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("start exit %d: %s", res.ExitCode, firstLine(res.Stderr))
	}

	// Let a crash-on-start surface before declaring success.
	if err := sleep(ctx, l.cfg.GraceWindow); err != nil {
		return err
	}

	res, err = sess.Run(ctx, l.render(l.cfg.StatusCommand, spec), l.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("agent exited within %v of start", l.cfg.GraceWindow)
	}
	return nil
}

func (l *Launcher) startCommand(role Role) string {
	if role == RoleHead {
		return l.cfg.HeadCommand
	}
	return l.cfg.WorkerCommand
}

func (l *Launcher) render(command string, spec LaunchSpec) string {
	return strings.NewReplacer(
		"{node_ip}", spec.Address,
		"{head_ip}", spec.HeadAddress,
		"{port}", strconv.Itoa(l.cfg.Port),
	).Replace(command)
}
