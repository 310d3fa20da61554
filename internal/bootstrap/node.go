package bootstrap

import (
	"fmt"
	"time"
)

// Role is a node's place in the cluster topology.
type Role string

const (
	RoleHead   Role = "head"
	RoleWorker Role = "worker"
)

// NodeInstance is the single mutable record for one node's bootstrap. It
// is owned exclusively by the orchestrator task driving that node; the
// components only ever see immutable inputs derived from it.
type NodeInstance struct {
	Name  string
	Token string
	Role  Role

	ID      string // provider-assigned, empty until created
	Address string // public address, empty until assigned

	Phase     Phase
	Attempts  map[Phase]int // entries per phase, re-entries included
	Rollbacks int           // backward transitions taken
	LastErr   error

	Timings map[Phase]time.Duration

	enteredAt  time.Time
	lastUptime time.Duration
	lastStint  time.Duration // time spent in the phase just left
}

func newNode(name, token string, role Role) *NodeInstance {
	n := &NodeInstance{
		Name:      name,
		Token:     token,
		Role:      role,
		Phase:     PhaseRequested,
		Attempts:  make(map[Phase]int),
		Timings:   make(map[Phase]time.Duration),
		enteredAt: time.Now(),
	}
	n.Attempts[PhaseRequested] = 1
	return n
}

// advance moves the node to a strictly later phase.
func (n *NodeInstance) advance(to Phase) error {
	if to <= n.Phase {
		return fmt.Errorf("invalid forward transition %s -> %s", n.Phase, to)
	}
	n.enter(to)
	return nil
}

// rollback moves the node to a strictly earlier, non-terminal phase. Only
// the orchestrator's instability and channel-loss handling uses it.
func (n *NodeInstance) rollback(to Phase) error {
	if to >= n.Phase || to.Terminal() {
		return fmt.Errorf("invalid rollback %s -> %s", n.Phase, to)
	}
	n.Rollbacks++
	n.enter(to)
	return nil
}

// fail moves the node to the terminal Failed phase and records the error.
func (n *NodeInstance) fail(err error) {
	n.LastErr = err
	n.enter(PhaseFailed)
}

func (n *NodeInstance) enter(p Phase) {
	now := time.Now()
	n.lastStint = now.Sub(n.enteredAt)
	n.Timings[n.Phase] += n.lastStint
	n.Phase = p
	n.Attempts[p]++
	n.enteredAt = now
}

// result snapshots the node into its immutable per-node outcome.
func (n *NodeInstance) result() BootstrapResult {
	attempts := make(map[Phase]int, len(n.Attempts))
	for k, v := range n.Attempts {
		attempts[k] = v
	}
	timings := make(map[Phase]time.Duration, len(n.Timings))
	for k, v := range n.Timings {
		timings[k] = v
	}
	return BootstrapResult{
		Node:         n.Name,
		ID:           n.ID,
		Role:         n.Role,
		PhaseReached: n.Phase,
		Err:          n.LastErr,
		Rollbacks:    n.Rollbacks,
		Attempts:     attempts,
		Timings:      timings,
	}
}
