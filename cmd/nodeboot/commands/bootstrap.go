package commands

import (
	"github.com/spf13/cobra"

	"github.com/skyward-cloud/nodeboot/cmd/nodeboot/handlers"
)

// Bootstrap returns the command that runs a provisioning request.
//
// The bootstrap process per node:
//  1. Requests the instance (idempotent by request token)
//  2. Polls until the provider reports a reachable address
//  3. Establishes the SSH command channel
//  4. Waits for the node's environment to quiesce
//  5. Runs the ordered setup steps
//  6. Starts the cluster agent (head first, workers join it)
//
// Nodes proceed in parallel; a reboot at any point rolls the affected
// node back instead of failing it, within a bounded budget.
//
// Environment variables:
//
//	HCLOUD_TOKEN: Hetzner Cloud API token (required)
//	NODEBOOT_*:   timing overrides, see internal/config
func Bootstrap() *cobra.Command {
	var (
		requestPath string
		metricsAddr string
		keepFailed  bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Drive a provisioning request until every node runs the agent",
		Long: `Bootstrap drives every node of a provisioning request from "requested"
to "agent running".

The request file names the node count, instance shape and the agent
commands. The first node carries the head role; workers wait for the
head's address before joining.

Examples:
  # Bootstrap the request described in cluster.yaml
  nodeboot bootstrap -r cluster.yaml

  # Keep failed instances around for debugging
  nodeboot bootstrap -r cluster.yaml --keep-failed

  # Expose prometheus metrics while bootstrapping
  nodeboot bootstrap -r cluster.yaml --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Bootstrap(cmd.Context(), handlers.BootstrapOptions{
				RequestPath: requestPath,
				MetricsAddr: metricsAddr,
				KeepFailed:  keepFailed,
			})
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "Path to the provisioning request file (required)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve prometheus metrics on (disabled when empty)")
	cmd.Flags().BoolVar(&keepFailed, "keep-failed", false, "Keep instances of failed nodes instead of terminating them")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}
