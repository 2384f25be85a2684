package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/giantswarm/mcp-remote-bridge/internal/authprovider"
	"github.com/giantswarm/mcp-remote-bridge/internal/bridge"
	"github.com/giantswarm/mcp-remote-bridge/internal/coordinator"
	"github.com/giantswarm/mcp-remote-bridge/internal/selector"
	"github.com/giantswarm/mcp-remote-bridge/internal/store"
	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

// configStoreMajorVersion is bumped whenever the on-disk record shapes in
// internal/store change incompatibly.
const configStoreMajorVersion = 1

// Run parses argv, wires up the config store, auth provider, transport
// selector, and bridge runtime, and blocks serving stdio until the upstream
// side closes or ctx is cancelled. It is the single entry point shared by
// cmd/mcp-remote-proxy and cmd/mcp-remote-client: both executables connect
// to the remote the same way, per spec.md §6's "two executables... share
// argument parsing."
func Run(ctx context.Context, args []string) error {
	opts, err := ParseArgs(args)
	if err != nil {
		return err
	}

	logging.InitForCLI(logging.LevelInfo, os.Stderr)

	st, err := store.New(configStoreMajorVersion)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	provider := authprovider.New(st, opts.ServerURL, authprovider.Options{
		CallbackPort:         opts.CallbackPort,
		Scopes:               opts.Scopes,
		StaticClientMetadata: opts.StaticClientMetadata,
		StaticClientInfo:     opts.StaticClientInfo,
		Resource:             opts.AuthorizeResource,
	})

	if err := st.Prune(map[string]string{provider.ServerHash(): opts.ServerURL}); err != nil {
		logging.Warn("CLI", "prune config store: %v", err)
	}

	if opts.ResetAuthLock {
		if err := coordinator.ForceReclaim(st, provider.ServerHash()); err != nil {
			return fmt.Errorf("reset auth lock: %w", err)
		}
		logging.Info("CLI", "cleared auth lock for %s", opts.ServerURL)
	}

	sel := selector.New(opts.ServerURL, opts.Transport, provider.TokenProvider())
	sel.Headers = opts.Headers

	runtime := bridge.New(sel, provider, bridge.Options{IgnoredTools: opts.IgnoredTools})
	return runtime.Run(ctx)
}
