// Command mcp-remote-proxy is the bridge's primary executable: it presents a
// stdio MCP endpoint upstream and forwards everything to a single remote MCP
// server reached over HTTP or SSE, running the OAuth 2.0 + PKCE flow when the
// remote requires it.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-remote-bridge/internal/cli"
)

// version can be set during build with -ldflags, matching the teacher's
// own build-time version injection.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "mcp-remote-proxy <server-url> [callback-port] [flags]",
		Short:   "Bridge a stdio MCP client to a remote HTTP/SSE MCP server",
		Version: version,
		// The grammar (repeatable --header, a bare positional port, header
		// values containing colons) isn't one cobra's own flag parser can
		// express, so argv is handed to internal/cli.ParseArgs unparsed.
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.Run(ctx, args)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "mcp-remote-proxy version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
