/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package cmd implements the gateway command line: serve, version and token.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the "gateway" command with all subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gateway",
		Short:         "API gateway of the task-management stack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCommand(), newVersionCommand(), newTokenCommand())
	return rootCmd
}
