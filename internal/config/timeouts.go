package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timing knobs of the bootstrap state
// machine. These values can be customized via environment variables and
// are never mutated at runtime.
type Timeouts struct {
	PollInterval time.Duration // Instance describe poll interval
	MaxBootTime  time.Duration // Budget for reaching a reachable address

	SessionConnectTimeout time.Duration // Per-attempt SSH connect timeout
	SessionAttempts       int           // SSH connect attempt budget
	SessionRetryDelay     time.Duration // Delay between SSH connect attempts

	StabilityAttempts int           // Stability probe attempt budget
	SettleDelay       time.Duration // Quiet period after first stable probe

	SetupAttempts   int           // Per-step attempt budget
	SetupRetryDelay time.Duration // Delay between step attempts

	AgentAttempts    int           // Agent launch attempt budget
	AgentGraceWindow time.Duration // Early-exit window counted as failure
	AgentRetryDelay  time.Duration // Delay between launch attempts
	BarrierTimeout   time.Duration // Worker wait for the head address

	MaxRollbacks   int           // Global per-node backward-transition budget
	CommandTimeout time.Duration // Default remote command timeout
}

// LoadTimeouts loads timeout configuration from environment variables.
// If a variable is not set or invalid, the default is used.
//
// Environment Variables:
//   - NODEBOOT_POLL_INTERVAL (default: 5s)
//   - NODEBOOT_MAX_BOOT_TIME (default: 10m)
//   - NODEBOOT_SESSION_CONNECT_TIMEOUT (default: 60s)
//   - NODEBOOT_SESSION_ATTEMPTS (default: 5)
//   - NODEBOOT_SESSION_RETRY_DELAY (default: 10s)
//   - NODEBOOT_STABILITY_ATTEMPTS (default: 8)
//   - NODEBOOT_SETTLE_DELAY (default: 15s)
//   - NODEBOOT_SETUP_ATTEMPTS (default: 3)
//   - NODEBOOT_SETUP_RETRY_DELAY (default: 10s)
//   - NODEBOOT_AGENT_ATTEMPTS (default: 10)
//   - NODEBOOT_AGENT_GRACE_WINDOW (default: 10s)
//   - NODEBOOT_AGENT_RETRY_DELAY (default: 15s)
//   - NODEBOOT_BARRIER_TIMEOUT (default: 10m)
//   - NODEBOOT_MAX_ROLLBACKS (default: 5)
//   - NODEBOOT_COMMAND_TIMEOUT (default: 5m)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		PollInterval:          parseDuration("NODEBOOT_POLL_INTERVAL", 5*time.Second),
		MaxBootTime:           parseDuration("NODEBOOT_MAX_BOOT_TIME", 10*time.Minute),
		SessionConnectTimeout: parseDuration("NODEBOOT_SESSION_CONNECT_TIMEOUT", 60*time.Second),
		SessionAttempts:       parseInt("NODEBOOT_SESSION_ATTEMPTS", 5),
		SessionRetryDelay:     parseDuration("NODEBOOT_SESSION_RETRY_DELAY", 10*time.Second),
		StabilityAttempts:     parseInt("NODEBOOT_STABILITY_ATTEMPTS", 8),
		SettleDelay:           parseDuration("NODEBOOT_SETTLE_DELAY", 15*time.Second),
		SetupAttempts:         parseInt("NODEBOOT_SETUP_ATTEMPTS", 3),
		SetupRetryDelay:       parseDuration("NODEBOOT_SETUP_RETRY_DELAY", 10*time.Second),
		AgentAttempts:         parseInt("NODEBOOT_AGENT_ATTEMPTS", 10),
		AgentGraceWindow:      parseDuration("NODEBOOT_AGENT_GRACE_WINDOW", 10*time.Second),
		AgentRetryDelay:       parseDuration("NODEBOOT_AGENT_RETRY_DELAY", 15*time.Second),
		BarrierTimeout:        parseDuration("NODEBOOT_BARRIER_TIMEOUT", 10*time.Minute),
		MaxRollbacks:          parseInt("NODEBOOT_MAX_ROLLBACKS", 5),
		CommandTimeout:        parseDuration("NODEBOOT_COMMAND_TIMEOUT", 5*time.Minute),
	}
}

// parseDuration parses a duration from an environment variable.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
