package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
	sshx "github.com/skyward-cloud/nodeboot/internal/platform/ssh"
	"github.com/skyward-cloud/nodeboot/internal/util/async"
)

// NodeSpec names one requested node and carries its instance creation
// parameters. The create spec's token doubles as the node's stable
// identity for describe and terminate.
type NodeSpec struct {
	Name   string
	Role   Role
	Create cloud.CreateSpec
}

// Request is a validated provisioning request as seen by the orchestrator.
type Request struct {
	Name string
	// AllowPartialWorkers reports the request satisfied when the head is
	// running even if workers failed. Default is all-or-nothing.
	AllowPartialWorkers bool
	Nodes               []NodeSpec
}

// Validate rejects malformed requests before any node task starts.
func (r *Request) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("request name is required")
	}
	if len(r.Nodes) == 0 {
		return fmt.Errorf("request must name at least one node")
	}

	heads := 0
	names := make(map[string]struct{}, len(r.Nodes))
	tokens := make(map[string]struct{}, len(r.Nodes))
	for _, n := range r.Nodes {
		if n.Role == RoleHead {
			heads++
		}
		if _, dup := names[n.Name]; dup {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		names[n.Name] = struct{}{}
		if n.Create.Token == "" {
			return fmt.Errorf("node %s: empty request token", n.Name)
		}
		if _, dup := tokens[n.Create.Token]; dup {
			return fmt.Errorf("duplicate request token on node %q", n.Name)
		}
		tokens[n.Create.Token] = struct{}{}
	}
	if heads != 1 {
		return fmt.Errorf("request must carry exactly one head node, got %d", heads)
	}
	return nil
}

// Config aggregates the per-component tuning of one bootstrap run.
type Config struct {
	Poller    PollerConfig
	Stability StabilityConfig
	Executor  ExecutorConfig
	Agent     AgentConfig

	// Steps override DefaultSetupSteps when non-nil.
	Steps []SetupStep

	// BarrierTimeout bounds a worker's wait for the head address.
	BarrierTimeout time.Duration
	// MaxRollbacks is the global per-node backward-transition budget.
	MaxRollbacks int
	// TerminateOnFailure tears down the instance of every node that ends
	// in the Failed phase.
	TerminateOnFailure bool
}

func (c Config) withDefaults() Config {
	if c.Steps == nil {
		c.Steps = DefaultSetupSteps()
	}
	if c.BarrierTimeout == 0 {
		c.BarrierTimeout = 10 * time.Minute
	}
	if c.MaxRollbacks == 0 {
		c.MaxRollbacks = 5
	}
	return c
}

// Orchestrator owns the per-node bootstrap state machines. One goroutine
// per node; nodes share nothing but the cluster address barrier.
type Orchestrator struct {
	api     cloud.InstanceAPI
	dialer  sshx.Dialer
	cfg     Config
	obs     Observer
	metrics *Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver routes events to the given observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.obs = obs
	}
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an orchestrator over the given provider API and session
// dialer.
func New(api cloud.InstanceAPI, dialer sshx.Dialer, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:    api,
		dialer: dialer,
		cfg:    cfg.withDefaults(),
		obs:    NopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.obs = withRetryMetrics(o.obs, o.metrics)
	return o
}

// Run bootstraps every node of the request in parallel and returns the
// aggregate report. A validation error aborts before any provider call.
// Run always returns a report once the fan-out started, even when every
// node failed; Satisfied encodes the request-level outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*ClusterBootstrapReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	barrier := NewClusterAddressBarrier()
	detector := NewDetector(o.cfg.Stability, o.obs)
	executor := NewExecutor(o.cfg.Steps, detector, o.cfg.Executor, o.obs)
	launcher := NewLauncher(detector, barrier, o.cfg.Agent, o.obs)

	start := time.Now()
	results := make([]BootstrapResult, len(req.Nodes))
	tasks := make([]async.Task, len(req.Nodes))
	for i, spec := range req.Nodes {
		i, spec := i, spec
		tasks[i] = async.Task{
			Name: spec.Name,
			Func: func(ctx context.Context) error {
				node := o.runNode(ctx, spec, barrier, detector, executor, launcher)
				results[i] = node.result()
				return node.LastErr
			},
		}
	}
	async.Run(ctx, tasks)

	if o.cfg.TerminateOnFailure {
		o.cleanupFailed(req, results)
	}

	report := &ClusterBootstrapReport{
		Request:  req.Name,
		Duration: time.Since(start),
		Results:  results,
	}
	report.Satisfied = o.satisfied(req, results)
	return report, nil
}

// satisfied applies the request-level success policy: the head must run,
// and workers too unless partial workers are allowed.
func (o *Orchestrator) satisfied(req Request, results []BootstrapResult) bool {
	for _, res := range results {
		if res.PhaseReached == PhaseAgentRunning {
			continue
		}
		if res.Role == RoleHead || !req.AllowPartialWorkers {
			return false
		}
	}
	return true
}

// cleanupFailed tears down the instances of failed nodes. Cleanup runs on
// a fresh context so a cancelled bootstrap can still release instances.
func (o *Orchestrator) cleanupFailed(req Request, results []BootstrapResult) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for i, res := range results {
		if res.PhaseReached != PhaseFailed {
			continue
		}
		if err := o.api.Terminate(ctx, req.Nodes[i].Create.Token); err != nil {
			o.obs.Printf("cleanup of node %s failed: %v", res.Node, err)
		}
	}
}

// runNode drives one node's state machine to a terminal phase. The
// NodeInstance is owned by this goroutine alone.
func (o *Orchestrator) runNode(ctx context.Context, spec NodeSpec, barrier *ClusterAddressBarrier, detector *Detector, executor *Executor, launcher *Launcher) *NodeInstance {
	node := newNode(spec.Name, spec.Create.Token, spec.Role)
	poller := NewPoller(o.api, o.cfg.Poller, o.obs)

	var sess sshx.Session
	closeSession := func() {
		if sess != nil {
			if err := sess.Close(); err != nil {
				o.obs.Printf("node %s: closing session: %v", node.Name, err)
			}
			sess = nil
		}
	}
	defer closeSession()

	for !node.Phase.Terminal() {
		if err := ctx.Err(); err != nil {
			o.fail(node, err)
			break
		}

		switch node.Phase {
		case PhaseRequested:
			inst, err := o.api.Create(ctx, spec.Create)
			if err != nil {
				o.fail(node, fmt.Errorf("instance create: %w", err))
				continue
			}
			node.ID = inst.ID
			o.advance(node, PhaseBooting)

		case PhaseBooting:
			inst, err := poller.WaitReady(ctx, node.Name, node.Token)
			if err != nil {
				o.fail(node, err)
				continue
			}
			node.ID = inst.ID
			node.Address = inst.Address
			o.advance(node, PhaseNetworkReady)

		case PhaseNetworkReady:
			s, err := o.dialer.Dial(ctx, node.Address)
			if err != nil {
				// The address may have moved after a provider-side
				// restart; re-confirm it before dialing again.
				o.rollbackOrFail(node, PhaseBooting, &SessionUnavailableError{Node: node.Name, Err: err}, nil)
				continue
			}
			sess = s
			o.advance(node, PhaseSessionEstablished)

		case PhaseSessionEstablished:
			// The channel exists; quiescence is the next gate.
			o.advance(node, PhaseStabilizing)

		case PhaseStabilizing:
			uptime, _, err := detector.WaitStable(ctx, sess, node.Name, node.lastUptime)
			node.lastUptime = uptime
			if err != nil {
				o.handleComponentErr(node, err, closeSession)
				continue
			}
			o.advance(node, PhaseSettingUp)

		case PhaseSettingUp:
			uptime, err := executor.Run(ctx, sess, node.Name, node.lastUptime)
			node.lastUptime = uptime
			if err != nil {
				o.handleComponentErr(node, err, closeSession)
				continue
			}
			if node.Role == RoleHead {
				o.launch(ctx, node, launcher, sess, node.Address, closeSession)
				continue
			}
			o.advance(node, PhaseAwaitingBarrier)

		case PhaseAwaitingBarrier:
			wctx, cancel := context.WithTimeout(ctx, o.cfg.BarrierTimeout)
			headAddr, err := barrier.Wait(wctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					o.fail(node, ctx.Err())
				} else {
					o.fail(node, &BarrierTimeoutError{Node: node.Name, Waited: o.cfg.BarrierTimeout})
				}
				continue
			}
			o.launch(ctx, node, launcher, sess, headAddr, closeSession)

		default:
			o.fail(node, fmt.Errorf("node %s: state machine stuck in %s", node.Name, node.Phase))
		}
	}

	switch node.Phase {
	case PhaseAgentRunning:
		o.obs.Event(Event{Type: EventNodeCompleted, Node: node.Name, Phase: node.Phase})
		o.metrics.Terminal("running")
	case PhaseFailed:
		o.obs.Event(Event{
			Type:    EventNodeFailed,
			Node:    node.Name,
			Phase:   node.Phase,
			Message: fmt.Sprintf("%v", node.LastErr),
		})
		o.metrics.Terminal("failed")
	}
	return node
}

// launch runs the agent launcher and applies its outcome to the node.
func (o *Orchestrator) launch(ctx context.Context, node *NodeInstance, launcher *Launcher, sess sshx.Session, headAddr string, closeSession func()) {
	uptime, err := launcher.Launch(ctx, sess, LaunchSpec{
		Node:        node.Name,
		Role:        node.Role,
		Address:     node.Address,
		HeadAddress: headAddr,
	}, node.lastUptime)
	node.lastUptime = uptime
	if err != nil {
		o.handleComponentErr(node, err, closeSession)
		return
	}
	o.advance(node, PhaseAgentRunning)
}

// handleComponentErr classifies a mid-phase error into the state
// machine's three answers: roll back to Stabilizing on detected
// instability, roll back to NetworkReady on a lost command channel, fail
// on everything terminal.
func (o *Orchestrator) handleComponentErr(node *NodeInstance, err error, closeSession func()) {
	var instability *InstabilityExceededError
	var stepFailed *SetupStepFailedError
	var launchFailed *AgentLaunchFailedError

	switch {
	case errors.Is(err, ErrUnstable):
		o.rollbackOrFail(node, PhaseStabilizing, err, nil)
	case errors.Is(err, sshx.ErrUnavailable):
		o.rollbackOrFail(node, PhaseNetworkReady, &SessionUnavailableError{Node: node.Name, Err: err}, closeSession)
	case errors.As(err, &instability), errors.As(err, &stepFailed), errors.As(err, &launchFailed):
		o.fail(node, err)
	case errors.Is(err, context.Canceled):
		// Operator cancellation only. A command-scoped deadline is a
		// transient signal (hung command, host frozen mid-reboot) and
		// takes the lost-channel path below instead.
		o.fail(node, err)
	default:
		// Unclassified errors, including per-command deadlines, come
		// from the transport layer; treat them as a lost channel and
		// re-dial.
		o.rollbackOrFail(node, PhaseNetworkReady, &SessionUnavailableError{Node: node.Name, Err: err}, closeSession)
	}
}

// rollbackOrFail takes a backward transition while the global budget
// lasts; past it the node fails with the triggering error.
func (o *Orchestrator) rollbackOrFail(node *NodeInstance, to Phase, cause error, closeSession func()) {
	if node.Rollbacks >= o.cfg.MaxRollbacks {
		o.fail(node, fmt.Errorf("rollback budget (%d) exhausted: %w", o.cfg.MaxRollbacks, cause))
		return
	}
	if closeSession != nil {
		closeSession()
	}
	from := node.Phase
	if err := node.rollback(to); err != nil {
		o.fail(node, err)
		return
	}
	o.obs.Event(Event{
		Type:    EventPhaseRollback,
		Node:    node.Name,
		Phase:   to,
		Message: fmt.Sprintf("from %s: %v", from, cause),
	})
	o.metrics.Transition(to, true)
	o.metrics.PhaseDuration(from, node.lastStint)
}

func (o *Orchestrator) advance(node *NodeInstance, to Phase) {
	from := node.Phase
	if err := node.advance(to); err != nil {
		o.fail(node, err)
		return
	}
	o.obs.Event(Event{Type: EventPhaseEntered, Node: node.Name, Phase: to})
	o.metrics.Transition(to, false)
	o.metrics.PhaseDuration(from, node.lastStint)
}

func (o *Orchestrator) fail(node *NodeInstance, err error) {
	from := node.Phase
	node.fail(err)
	o.metrics.Transition(PhaseFailed, false)
	o.metrics.PhaseDuration(from, node.lastStint)
}
