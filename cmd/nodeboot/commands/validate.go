package commands

import (
	"github.com/spf13/cobra"

	"github.com/skyward-cloud/nodeboot/cmd/nodeboot/handlers"
)

// Validate returns the command that parses and validates a request file
// without touching the provider.
func Validate() *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a provisioning request file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return handlers.Validate(requestPath)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "Path to the provisioning request file (required)")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}
