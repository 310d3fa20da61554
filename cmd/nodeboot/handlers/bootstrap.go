// Package handlers implements the execution logic behind the CLI commands.
package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyward-cloud/nodeboot/internal/bootstrap"
	"github.com/skyward-cloud/nodeboot/internal/config"
	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
	sshx "github.com/skyward-cloud/nodeboot/internal/platform/ssh"
)

// BootstrapOptions holds the bootstrap command's flag values.
type BootstrapOptions struct {
	RequestPath string
	MetricsAddr string
	// KeepFailed disables termination of instances whose node failed.
	KeepFailed bool
}

// Bootstrap runs a provisioning request end to end and prints the report.
// A report with unmet success policy is returned as an error so the
// process exits non-zero.
func Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	req, err := config.LoadRequest(opts.RequestPath)
	if err != nil {
		return err
	}

	token := os.Getenv("HCLOUD_TOKEN")
	if token == "" {
		return fmt.Errorf("HCLOUD_TOKEN environment variable is required")
	}

	timeouts := config.LoadTimeouts()

	dialer, err := newDialer(req, timeouts)
	if err != nil {
		return err
	}
	api := cloud.NewHCloudClient(token)

	orchOpts := []bootstrap.Option{
		bootstrap.WithObserver(bootstrap.NewConsoleObserver()),
	}
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		orchOpts = append(orchOpts, bootstrap.WithMetrics(bootstrap.NewMetrics(reg)))
		go serveMetrics(opts.MetricsAddr, reg)
	}

	o := bootstrap.New(api, dialer, orchestratorConfig(req, timeouts, opts), orchOpts...)

	log.Printf("Bootstrapping request %s (%d nodes)...", req.Name, req.Count)
	report, err := o.Run(ctx, bootstrapRequest(req))
	if err != nil {
		return err
	}

	fmt.Print(report.Summary())
	if !report.Satisfied {
		return fmt.Errorf("request %s not satisfied: %d/%d nodes running",
			req.Name, report.Running(), len(report.Results))
	}
	return nil
}

// newDialer builds the SSH client used as the orchestrator's session seam.
func newDialer(req *config.Request, timeouts *config.Timeouts) (sshx.Dialer, error) {
	key, err := os.ReadFile(req.SSH.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	client, err := sshx.NewClient(sshx.Config{
		User:            req.SSH.User,
		PrivateKey:      key,
		ConnectTimeout:  timeouts.SessionConnectTimeout,
		ConnectAttempts: timeouts.SessionAttempts,
		ConnectDelay:    timeouts.SessionRetryDelay,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// bootstrapRequest maps the request file onto the orchestrator's input.
// Node 0 carries the head role; the node name doubles as the request
// token so re-running a bootstrap converges on the same instances.
func bootstrapRequest(req *config.Request) bootstrap.Request {
	out := bootstrap.Request{
		Name:                req.Name,
		AllowPartialWorkers: req.AllowPartialWorkers,
	}
	for i := 0; i < req.Count; i++ {
		role := bootstrap.RoleWorker
		if i == 0 {
			role = bootstrap.RoleHead
		}
		name := req.NodeName(i)
		out.Nodes = append(out.Nodes, bootstrap.NodeSpec{
			Name: name,
			Role: role,
			Create: cloud.CreateSpec{
				Token:      name,
				Name:       name,
				ServerType: req.ServerType,
				Image:      req.Image,
				Location:   req.Location,
				SSHKeys:    req.SSH.Keys,
				Labels:     map[string]string{"nodeboot/request": req.Name},
			},
		})
	}
	return out
}

// orchestratorConfig assembles the component tuning from the request file
// and the environment-driven timeouts.
func orchestratorConfig(req *config.Request, t *config.Timeouts, opts BootstrapOptions) bootstrap.Config {
	return bootstrap.Config{
		Poller: bootstrap.PollerConfig{
			Interval:    t.PollInterval,
			MaxBootTime: t.MaxBootTime,
		},
		Stability: bootstrap.StabilityConfig{
			MaxAttempts:    t.StabilityAttempts,
			SettleDelay:    t.SettleDelay,
			CommandTimeout: t.CommandTimeout,
		},
		Executor: bootstrap.ExecutorConfig{
			Retry: bootstrap.RetryPolicy{
				MaxAttempts: t.SetupAttempts,
				Delay:       t.SetupRetryDelay,
			},
			CommandTimeout: t.CommandTimeout,
		},
		Agent: bootstrap.AgentConfig{
			Port:          req.Agent.Port,
			HeadCommand:   req.Agent.HeadCommand,
			WorkerCommand: req.Agent.WorkerCommand,
			StatusCommand: req.Agent.StatusCommand,
			Retry: bootstrap.RetryPolicy{
				MaxAttempts: t.AgentAttempts,
				Delay:       t.AgentRetryDelay,
			},
			GraceWindow:    t.AgentGraceWindow,
			CommandTimeout: t.CommandTimeout,
		},
		BarrierTimeout:     t.BarrierTimeout,
		MaxRollbacks:       t.MaxRollbacks,
		TerminateOnFailure: !opts.KeepFailed,
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server: %v", err)
	}
}
