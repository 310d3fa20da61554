package commands

import (
	"github.com/spf13/cobra"

	"github.com/skyward-cloud/nodeboot/cmd/nodeboot/handlers"
)

// Terminate returns the command that tears down a request's instances.
//
// Instances are looked up by the request token label, so terminate works
// regardless of how far a previous bootstrap got. Missing instances are
// skipped silently.
func Terminate() *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Delete every instance belonging to a provisioning request",
		Long: `Terminate deletes all instances created for a provisioning request.

Example:
  nodeboot terminate -r cluster.yaml

WARNING: This operation is irreversible. Node state is lost.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Terminate(cmd.Context(), requestPath)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "Path to the provisioning request file (required)")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}
