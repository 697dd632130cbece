package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/occdex/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "occdex",
		Short:   "occdex - versioned post store with optimistic concurrency control",
		Version: version.String(),
		Long: `occdex serves a posts API over Redis, Elasticsearch or an in-process store.
Every write is conditioned on the (seq_no, primary_term) token the client last saw.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("env", "", "configuration environment (default: $ENV or local)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initIndexCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
