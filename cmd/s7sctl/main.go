package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "s7sctl",
		Short: "Client for the s7s transport",
		Long: `s7sctl connects to an s7s server over TLS, performs the cvid handshake
and exchanges request/response envelopes.

The installation uuid is read from S7S_UUID, then from the config file.
When neither provides one a random uuid is generated for the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		connectCmd(opts),
		requestCmd(opts),
		configCmd(opts),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "s7sctl: %v\n", err)
		os.Exit(1)
	}
}
