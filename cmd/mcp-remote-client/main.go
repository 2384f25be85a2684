// Command mcp-remote-client is the bridge's manual-testing variant: it
// speaks to the same remote HTTP/SSE MCP server and runs the same
// transport-and-auth coordinator as mcp-remote-proxy, but is meant to be run
// directly from a terminal (or piped from a test harness) rather than
// spawned by an editor, for exercising a remote server without wiring up a
// full MCP client application first.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-remote-bridge/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:                "mcp-remote-client <server-url> [callback-port] [flags]",
		Short:              "Connect to a remote HTTP/SSE MCP server over stdio, for manual testing",
		Version:            version,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.Run(ctx, args)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "mcp-remote-client version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
