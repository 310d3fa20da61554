package commands

import (
	"github.com/spf13/cobra"

	"github.com/skyward-cloud/nodeboot/cmd/nodeboot/handlers"
)

// Stop returns the command that powers off a request's instances without
// deleting them. A later bootstrap of the same request powers them back
// on and reuses them.
func Stop() *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Power off every instance belonging to a provisioning request",
		Long: `Stop powers off all instances created for a provisioning request.

Instances keep their disks and addresses and are billed at the provider's
stopped rate; re-running bootstrap powers them back on.

Example:
  nodeboot stop -r cluster.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Stop(cmd.Context(), requestPath)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "Path to the provisioning request file (required)")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}
