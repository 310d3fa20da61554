package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
	sshx "github.com/skyward-cloud/nodeboot/internal/platform/ssh"
)

func testOrchestratorConfig() Config {
	return Config{
		Poller:    testPollerConfig(),
		Stability: testStabilityConfig(),
		Executor:  testExecutorConfig(),
		Agent:     testAgentConfig(),
		Steps: []SetupStep{
			{Name: "prepare", Command: "echo prepare"},
		},
		BarrierTimeout: time.Second,
		MaxRollbacks:   5,
	}
}

func testRequest(workers int) Request {
	req := Request{
		Name: "demo",
		Nodes: []NodeSpec{
			{Name: "demo-0", Role: RoleHead, Create: cloud.CreateSpec{Token: "tok-0", Name: "demo-0"}},
		},
	}
	for i := 1; i <= workers; i++ {
		req.Nodes = append(req.Nodes, NodeSpec{
			Name: nodeName(i), Role: RoleWorker,
			Create: cloud.CreateSpec{Token: tokenName(i), Name: nodeName(i)},
		})
	}
	return req
}

func nodeName(i int) string  { return "demo-" + string(rune('0'+i)) }
func tokenName(i int) string { return "tok-" + string(rune('0'+i)) }

func TestOrchestrator_HeadAndTwoWorkers(t *testing.T) {
	api := newFakeAPI()
	dialer := newFakeDialer()
	obs := &recordObserver{}
	o := New(api, dialer, testOrchestratorConfig(), WithObserver(obs))

	report, err := o.Run(context.Background(), testRequest(2))
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.True(t, report.Satisfied)
	assert.Equal(t, 3, report.Running())

	for _, res := range report.Results {
		assert.Equal(t, PhaseAgentRunning, res.PhaseReached, "node %s", res.Node)
		assert.NoError(t, res.Err)
		assert.Equal(t, 0, res.Rollbacks)
	}

	// The head's address reached both workers through the barrier: their
	// join command embeds it, and no worker started before the publish.
	published := obs.ofType(EventBarrierPublished)
	require.Len(t, published, 1)
	headAddr := published[0].Message
	for i := 1; i <= 2; i++ {
		sess := dialer.session(api.instances[tokenName(i)].Address)
		require.NotNil(t, sess)
		assert.Equal(t, 1, sess.count("ray start --address="+headAddr+":6379"))
	}
}

func TestOrchestrator_InstabilityRollsBackThenSucceeds(t *testing.T) {
	api := newFakeAPI()
	dialer := newFakeDialer()
	pings := 0
	dialer.build = func(string) *fakeSession {
		sess := newFakeSession()
		sess.handler = func(cmd string) (sshx.RunResult, error, bool) {
			if strings.HasPrefix(cmd, "ping -c 1 -W 5 1.1.1.1") {
				pings++
				// Fail the probe guarding the setup step twice; each
				// failure must roll the node back to Stabilizing.
				if pings == 2 || pings == 4 {
					return sshx.RunResult{ExitCode: 1}, nil, true
				}
			}
			return sshx.RunResult{}, nil, false
		}
		return sess
	}

	o := New(api, dialer, testOrchestratorConfig())
	report, err := o.Run(context.Background(), testRequest(0))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, PhaseAgentRunning, res.PhaseReached)
	assert.Equal(t, 2, res.Rollbacks)
	assert.Equal(t, 3, res.Attempts[PhaseStabilizing])
}

func TestOrchestrator_RollbackBudgetExhausted(t *testing.T) {
	api := newFakeAPI()
	dialer := newFakeDialer()
	dialer.build = func(string) *fakeSession {
		sess := newFakeSession()
		probes := 0
		sess.handler = func(cmd string) (sshx.RunResult, error, bool) {
			if strings.HasPrefix(cmd, "ping -c 1 -W 5 1.1.1.1") {
				probes++
				// Stable while Stabilizing probes, unstable at every
				// setup gate: endless ping-pong until the budget trips.
				if probes%2 == 0 {
					return sshx.RunResult{ExitCode: 1}, nil, true
				}
			}
			return sshx.RunResult{}, nil, false
		}
		return sess
	}

	cfg := testOrchestratorConfig()
	cfg.MaxRollbacks = 2
	o := New(api, dialer, cfg)

	report, err := o.Run(context.Background(), testRequest(0))
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, PhaseFailed, res.PhaseReached)
	assert.Equal(t, 2, res.Rollbacks)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "rollback budget")
	assert.False(t, report.Satisfied)
}

func TestOrchestrator_BootTimeoutIsolatedToOneNode(t *testing.T) {
	api := newFakeAPI()
	// tok-2 never gets past provisioning.
	api.describeFn["tok-2"] = func(int) (*cloud.Instance, error) {
		return &cloud.Instance{ID: "i-x", Status: cloud.StatusProvisioning}, nil
	}
	dialer := newFakeDialer()

	cfg := testOrchestratorConfig()
	cfg.Poller.MaxBootTime = 20 * time.Millisecond
	o := New(api, dialer, cfg)

	report, err := o.Run(context.Background(), testRequest(2))
	require.NoError(t, err)
	assert.False(t, report.Satisfied)
	assert.Equal(t, 2, report.Running())

	byName := make(map[string]BootstrapResult)
	for _, res := range report.Results {
		byName[res.Node] = res
	}
	var bootErr *BootTimeoutError
	require.ErrorAs(t, byName["demo-2"].Err, &bootErr)
	assert.Equal(t, PhaseAgentRunning, byName["demo-0"].PhaseReached)
	assert.Equal(t, PhaseAgentRunning, byName["demo-1"].PhaseReached)
}

func TestOrchestrator_PartialWorkersPolicy(t *testing.T) {
	api := newFakeAPI()
	api.describeFn["tok-2"] = func(int) (*cloud.Instance, error) {
		return &cloud.Instance{ID: "i-x", Status: cloud.StatusProvisioning}, nil
	}
	dialer := newFakeDialer()

	cfg := testOrchestratorConfig()
	cfg.Poller.MaxBootTime = 20 * time.Millisecond
	o := New(api, dialer, cfg)

	req := testRequest(2)
	req.AllowPartialWorkers = true
	report, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, report.Satisfied, "running head with partial workers allowed")
}

func TestOrchestrator_HeadFailureNeverSatisfies(t *testing.T) {
	api := newFakeAPI()
	api.describeFn["tok-0"] = func(int) (*cloud.Instance, error) {
		return &cloud.Instance{ID: "i-x", Status: cloud.StatusProvisioning}, nil
	}
	dialer := newFakeDialer()

	cfg := testOrchestratorConfig()
	cfg.Poller.MaxBootTime = 20 * time.Millisecond
	cfg.BarrierTimeout = 50 * time.Millisecond
	o := New(api, dialer, cfg)

	req := testRequest(1)
	req.AllowPartialWorkers = true
	report, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, report.Satisfied)

	byName := make(map[string]BootstrapResult)
	for _, res := range report.Results {
		byName[res.Node] = res
	}
	var barrierErr *BarrierTimeoutError
	require.ErrorAs(t, byName["demo-1"].Err, &barrierErr, "worker must time out on the barrier")
}

func TestOrchestrator_LostChannelRedials(t *testing.T) {
	api := newFakeAPI()
	dialer := newFakeDialer()
	broken := true
	dialer.build = func(string) *fakeSession {
		sess := newFakeSession()
		mine := broken
		broken = false
		sess.handler = func(cmd string) (sshx.RunResult, error, bool) {
			if mine && cmd == "echo prepare" {
				return sshx.RunResult{}, sshx.ErrUnavailable, true
			}
			return sshx.RunResult{}, nil, false
		}
		return sess
	}

	o := New(api, dialer, testOrchestratorConfig())
	report, err := o.Run(context.Background(), testRequest(0))
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, PhaseAgentRunning, res.PhaseReached)
	assert.Equal(t, 1, res.Rollbacks)
	assert.Equal(t, 2, res.Attempts[PhaseNetworkReady], "channel re-dialed after loss")
}

// A probe command hitting its own deadline (host frozen mid-reboot) is
// transient: the node re-dials and recovers instead of failing terminally.
func TestOrchestrator_CommandDeadlineRollsBack(t *testing.T) {
	api := newFakeAPI()
	dialer := newFakeDialer()
	hung := true
	dialer.build = func(string) *fakeSession {
		sess := newFakeSession()
		mine := hung
		hung = false
		sess.handler = func(cmd string) (sshx.RunResult, error, bool) {
			if mine && strings.HasPrefix(cmd, "ping -c 1 -W 5 1.1.1.1") {
				return sshx.RunResult{}, fmt.Errorf("command %q aborted: %w", cmd, context.DeadlineExceeded), true
			}
			return sshx.RunResult{}, nil, false
		}
		return sess
	}

	o := New(api, dialer, testOrchestratorConfig())
	report, err := o.Run(context.Background(), testRequest(0))
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, PhaseAgentRunning, res.PhaseReached)
	assert.Equal(t, 1, res.Rollbacks)
	assert.NoError(t, res.Err)
}

func TestOrchestrator_UnreachableChannelFailsAfterBudget(t *testing.T) {
	api := newFakeAPI()
	dialer := newFakeDialer()
	dialer.dialErr = sshx.ErrUnavailable

	cfg := testOrchestratorConfig()
	cfg.MaxRollbacks = 2
	o := New(api, dialer, cfg)

	report, err := o.Run(context.Background(), testRequest(0))
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, PhaseFailed, res.PhaseReached)
	assert.Equal(t, 2, res.Rollbacks)
	var sessErr *SessionUnavailableError
	require.ErrorAs(t, res.Err, &sessErr)
	assert.Equal(t, 3, res.Attempts[PhaseBooting], "address re-confirmed before every re-dial")
}

func TestOrchestrator_ValidationRejectsBadRequests(t *testing.T) {
	o := New(newFakeAPI(), newFakeDialer(), testOrchestratorConfig())

	cases := []struct {
		name string
		req  Request
	}{
		{"empty", Request{Name: "x"}},
		{"no head", Request{Name: "x", Nodes: []NodeSpec{
			{Name: "a", Role: RoleWorker, Create: cloud.CreateSpec{Token: "t1"}},
		}}},
		{"two heads", Request{Name: "x", Nodes: []NodeSpec{
			{Name: "a", Role: RoleHead, Create: cloud.CreateSpec{Token: "t1"}},
			{Name: "b", Role: RoleHead, Create: cloud.CreateSpec{Token: "t2"}},
		}}},
		{"duplicate name", Request{Name: "x", Nodes: []NodeSpec{
			{Name: "a", Role: RoleHead, Create: cloud.CreateSpec{Token: "t1"}},
			{Name: "a", Role: RoleWorker, Create: cloud.CreateSpec{Token: "t2"}},
		}}},
		{"duplicate token", Request{Name: "x", Nodes: []NodeSpec{
			{Name: "a", Role: RoleHead, Create: cloud.CreateSpec{Token: "t1"}},
			{Name: "b", Role: RoleWorker, Create: cloud.CreateSpec{Token: "t1"}},
		}}},
		{"missing token", Request{Name: "x", Nodes: []NodeSpec{
			{Name: "a", Role: RoleHead},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := o.Run(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, report)
		})
	}
}

func TestOrchestrator_TerminateOnFailure(t *testing.T) {
	api := newFakeAPI()
	api.describeFn["tok-0"] = func(int) (*cloud.Instance, error) {
		return &cloud.Instance{ID: "i-x", Status: cloud.StatusProvisioning}, nil
	}
	dialer := newFakeDialer()

	cfg := testOrchestratorConfig()
	cfg.Poller.MaxBootTime = 20 * time.Millisecond
	cfg.TerminateOnFailure = true
	o := New(api, dialer, cfg)

	report, err := o.Run(context.Background(), testRequest(0))
	require.NoError(t, err)
	assert.False(t, report.Satisfied)
	assert.Equal(t, []string{"tok-0"}, api.terminated)
}

func TestOrchestrator_CancellationFailsNodes(t *testing.T) {
	api := newFakeAPI()
	api.describeFn["tok-0"] = func(int) (*cloud.Instance, error) {
		return &cloud.Instance{ID: "i-x", Status: cloud.StatusProvisioning}, nil
	}
	dialer := newFakeDialer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(api, dialer, testOrchestratorConfig())
	report, err := o.Run(ctx, testRequest(0))
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, report.Results[0].PhaseReached)
	require.ErrorIs(t, report.Results[0].Err, context.Canceled)
}
