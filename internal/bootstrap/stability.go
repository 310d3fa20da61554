package bootstrap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	sshx "github.com/skyward-cloud/nodeboot/internal/platform/ssh"
)

// StabilityEvidence is the result of one stability probe. A node counts
// as stable only when every individual check passed (AND semantics).
type StabilityEvidence struct {
	// UptimeMonotonic is false when the observed uptime dropped below the
	// last recorded value, meaning the node rebooted in between.
	UptimeMonotonic bool
	// Reachable reports the outbound network probe.
	Reachable bool
	// InstallLocksFree reports that no package-manager lock is held and
	// no unattended upgrade process is running.
	InstallLocksFree bool

	// Uptime is the caller's new monotonic watermark. When the uptime
	// read failed it carries the previous baseline unchanged, so a
	// reboot cannot hide behind a failed read.
	Uptime time.Duration
}

// Stable reports whether all checks passed.
func (e StabilityEvidence) Stable() bool {
	return e.UptimeMonotonic && e.Reachable && e.InstallLocksFree
}

// StabilityConfig tunes the stability detector.
type StabilityConfig struct {
	// ProbeTarget is the known-good address pinged from the node.
	ProbeTarget string
	// LockAttempts bounds the in-place re-checks while an install lock is
	// held; LockDelay is the wait between them.
	LockAttempts int
	LockDelay    time.Duration
	// Backoffs are the waits between whole stability attempts, cycled.
	Backoffs []time.Duration
	// MaxAttempts bounds WaitStable.
	MaxAttempts int
	// SettleDelay is the quiet period after the first stable probe, to
	// catch late reboots.
	SettleDelay time.Duration
	// CommandTimeout bounds each probe command.
	CommandTimeout time.Duration
}

func (c StabilityConfig) withDefaults() StabilityConfig {
	if c.ProbeTarget == "" {
		c.ProbeTarget = "1.1.1.1"
	}
	if c.LockAttempts == 0 {
		c.LockAttempts = 3
	}
	if c.LockDelay == 0 {
		c.LockDelay = 5 * time.Second
	}
	if len(c.Backoffs) == 0 {
		c.Backoffs = []time.Duration{30 * time.Second, 15 * time.Second, 20 * time.Second}
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 8
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 30 * time.Second
	}
	return c
}

// Detector determines whether a node's operating environment is currently
// quiescent. It is consulted before setup begins, before every setup step
// and before every agent launch attempt; reboots can happen at any time.
type Detector struct {
	cfg StabilityConfig
	obs Observer
}

// NewDetector creates a stability detector.
func NewDetector(cfg StabilityConfig, obs Observer) *Detector {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Detector{cfg: cfg.withDefaults(), obs: obs}
}

// Check runs a single stability probe. lastUptime is the previous
// baseline; an observed uptime below it means the node rebooted. Errors
// are transport failures only; failed checks are reported as evidence.
func (d *Detector) Check(ctx context.Context, sess sshx.Session, lastUptime time.Duration) (StabilityEvidence, error) {
	var ev StabilityEvidence

	uptime, ok, err := d.readUptime(ctx, sess)
	if err != nil {
		return ev, err
	}
	if ok {
		ev.Uptime = uptime
		ev.UptimeMonotonic = uptime >= lastUptime
	} else {
		// Keep the old watermark; advancing it here would let a reboot
		// behind a failed read pass the next monotonic check.
		ev.Uptime = lastUptime
	}

	res, err := sess.Run(ctx, fmt.Sprintf("ping -c 1 -W 5 %s", d.cfg.ProbeTarget), d.cfg.CommandTimeout)
	if err != nil {
		return ev, err
	}
	ev.Reachable = res.ExitCode == 0

	free, err := d.locksFree(ctx, sess)
	if err != nil {
		return ev, err
	}
	ev.InstallLocksFree = free

	return ev, nil
}

// WaitStable re-probes with bounded backoff until the node is quiescent.
// It returns the new uptime baseline and the number of attempts used; on
// exhaustion the error is an InstabilityExceededError. The settle delay
// after the first stable probe absorbs late reboots.
func (d *Detector) WaitStable(ctx context.Context, sess sshx.Session, node string, lastUptime time.Duration) (time.Duration, int, error) {
	baseline := lastUptime

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ev, err := d.Check(ctx, sess, baseline)
		if err != nil {
			return baseline, attempt, err
		}
		baseline = ev.Uptime

		d.obs.Event(Event{
			Type:    EventProbe,
			Node:    node,
			Phase:   PhaseStabilizing,
			Attempt: attempt,
			Fields: map[string]string{
				"uptime_monotonic": strconv.FormatBool(ev.UptimeMonotonic),
				"reachable":        strconv.FormatBool(ev.Reachable),
				"locks_free":       strconv.FormatBool(ev.InstallLocksFree),
			},
		})

		if ev.Stable() {
			if err := sleep(ctx, d.cfg.SettleDelay); err != nil {
				return baseline, attempt, err
			}
			return baseline, attempt, nil
		}

		if attempt < d.cfg.MaxAttempts {
			backoff := d.cfg.Backoffs[(attempt-1)%len(d.cfg.Backoffs)]
			if err := sleep(ctx, backoff); err != nil {
				return baseline, attempt, err
			}
		}
	}

	return baseline, d.cfg.MaxAttempts, &InstabilityExceededError{Node: node, Attempts: d.cfg.MaxAttempts}
}

// readUptime reads the node's monotonic uptime. The bool result is false
// when the value could not be read or parsed.
func (d *Detector) readUptime(ctx context.Context, sess sshx.Session) (time.Duration, bool, error) {
	res, err := sess.Run(ctx, "cat /proc/uptime", d.cfg.CommandTimeout)
	if err != nil {
		return 0, false, err
	}
	if res.ExitCode != 0 {
		return 0, false, nil
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return 0, false, nil
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false, nil
	}
	return time.Duration(seconds * float64(time.Second)), true, nil
}

// locksFree probes the package-manager locks, waiting in place a bounded
// number of times while they are held.
func (d *Detector) locksFree(ctx context.Context, sess sshx.Session) (bool, error) {
	const lockProbe = "fuser /var/lib/dpkg/lock-frontend /var/lib/apt/lists/lock 2>/dev/null || pgrep -x unattended-upgrade"

	for attempt := 0; attempt < d.cfg.LockAttempts; attempt++ {
		res, err := sess.Run(ctx, lockProbe, d.cfg.CommandTimeout)
		if err != nil {
			return false, err
		}
		if res.ExitCode != 0 {
			// Neither lock holder nor upgrade process found.
			return true, nil
		}
		if attempt < d.cfg.LockAttempts-1 {
			if err := sleep(ctx, d.cfg.LockDelay); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}
