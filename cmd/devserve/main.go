// Package main is the entry point for the devserve CLI.
//
// Usage:
//
//	devserve serve                       # Serve ./public on :8088, control on :8089
//	devserve serve -c devserve.yaml      # Serve with a YAML or TOML config
//	devserve stop                        # Send "shutdown" to a local server
//	devserve validate -c devserve.toml   # Validate configuration
//	devserve version                     # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "devserve",
	Short: "A local development server with a UDP stop switch",
	Long: `devserve serves a directory of static files over HTTP, relays messages
between browser clients over WebSocket, and stops when it receives the
datagram "shutdown" on its UDP control port.

Quick start:
  1. Put an index.html in ./public
  2. Run: devserve serve
  3. Open http://localhost:8088 in your browser
  4. Stop it: devserve stop  (or: echo shutdown | nc -u -w0 127.0.0.1 8089)

Shutdown waits one second for connections to drain and exits 0. If that
does not happen within three seconds the process exits 1.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this devserve binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "devserve %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
