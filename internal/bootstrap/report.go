package bootstrap

import (
	"fmt"
	"strings"
	"time"
)

// BootstrapResult is the per-node outcome exposed to callers.
type BootstrapResult struct {
	Node         string
	ID           string
	Role         Role
	PhaseReached Phase
	Err          error
	Rollbacks    int
	Attempts     map[Phase]int
	Timings      map[Phase]time.Duration
}

// ClusterBootstrapReport aggregates all node outcomes for one request.
type ClusterBootstrapReport struct {
	Request   string
	Satisfied bool
	Duration  time.Duration
	Results   []BootstrapResult
}

// Running returns how many nodes reached AgentRunning.
func (r *ClusterBootstrapReport) Running() int {
	count := 0
	for _, res := range r.Results {
		if res.PhaseReached == PhaseAgentRunning {
			count++
		}
	}
	return count
}

// Summary renders a human-readable per-node breakdown.
func (r *ClusterBootstrapReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "request %s: %d/%d nodes running (took %v)\n",
		r.Request, r.Running(), len(r.Results), r.Duration.Round(time.Millisecond))
	for _, res := range r.Results {
		fmt.Fprintf(&b, "  %-20s %-6s %-16s rollbacks=%d", res.Node, res.Role, res.PhaseReached, res.Rollbacks)
		if res.Err != nil {
			fmt.Fprintf(&b, " error=%v", res.Err)
		}
		b.WriteString("\n")
	}
	return b.String()
}
