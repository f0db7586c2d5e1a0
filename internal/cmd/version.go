/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acronis/task-gateway/internal/version"
)

func newVersionCommand() *cobra.Command {
	var asJSON bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			modified := ""
			if info.Modified {
				modified = " (modified)"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "gateway %s\nrevision: %s%s\ngo: %s\n",
				info.Version, info.Revision, modified, info.GoVersion)
			return err
		},
	}
	versionCmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	return versionCmd
}
