package config

import (
	"testing"
	"time"
)

func TestLoadTimeouts_Defaults(t *testing.T) {
	tm := LoadTimeouts()

	if tm.PollInterval != 5*time.Second {
		t.Errorf("expected 5s poll interval, got %v", tm.PollInterval)
	}
	if tm.MaxBootTime != 10*time.Minute {
		t.Errorf("expected 10m max boot time, got %v", tm.MaxBootTime)
	}
	if tm.SessionConnectTimeout != 60*time.Second {
		t.Errorf("expected 60s connect timeout, got %v", tm.SessionConnectTimeout)
	}
	if tm.AgentAttempts != 10 {
		t.Errorf("expected 10 agent attempts, got %d", tm.AgentAttempts)
	}
	if tm.MaxRollbacks != 5 {
		t.Errorf("expected 5 rollbacks, got %d", tm.MaxRollbacks)
	}
}

func TestLoadTimeouts_EnvOverrides(t *testing.T) {
	t.Setenv("NODEBOOT_POLL_INTERVAL", "250ms")
	t.Setenv("NODEBOOT_AGENT_ATTEMPTS", "3")
	t.Setenv("NODEBOOT_MAX_BOOT_TIME", "garbage")

	tm := LoadTimeouts()

	if tm.PollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms poll interval, got %v", tm.PollInterval)
	}
	if tm.AgentAttempts != 3 {
		t.Errorf("expected 3 agent attempts, got %d", tm.AgentAttempts)
	}
	// Invalid values fall back to the default.
	if tm.MaxBootTime != 10*time.Minute {
		t.Errorf("expected default max boot time, got %v", tm.MaxBootTime)
	}
}
