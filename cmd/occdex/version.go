package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/occdex/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "occdex %s\n", version.String())
		},
	}
}
