package bootstrap

// Phase is a named stage in a node's bootstrap state machine. A node is in
// exactly one phase at any time; transitions only move forward except for
// the explicit rollback to PhaseStabilizing (or PhaseNetworkReady when the
// command channel itself was lost).
type Phase int

const (
	PhaseRequested Phase = iota
	PhaseBooting
	PhaseNetworkReady
	PhaseSessionEstablished
	PhaseStabilizing
	PhaseSettingUp
	PhaseAwaitingBarrier // workers only
	PhaseAgentRunning    // terminal success
	PhaseFailed          // terminal failure
)

var phaseNames = map[Phase]string{
	PhaseRequested:          "Requested",
	PhaseBooting:            "Booting",
	PhaseNetworkReady:       "NetworkReady",
	PhaseSessionEstablished: "SessionEstablished",
	PhaseStabilizing:        "Stabilizing",
	PhaseSettingUp:          "SettingUp",
	PhaseAwaitingBarrier:    "AwaitingBarrier",
	PhaseAgentRunning:       "AgentRunning",
	PhaseFailed:             "Failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether the phase ends the node's state machine.
func (p Phase) Terminal() bool {
	return p == PhaseAgentRunning || p == PhaseFailed
}
