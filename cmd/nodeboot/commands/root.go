// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated to
// handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the nodeboot CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodeboot",
		Short: "Bootstrap cloud nodes into a running agent cluster",
	}

	cmd.AddCommand(Bootstrap())
	cmd.AddCommand(Stop())
	cmd.AddCommand(Terminate())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Version())

	return cmd
}
