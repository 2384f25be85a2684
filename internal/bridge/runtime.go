// Package bridge wires a local stdio-speaking MCP client to a single remote
// MCP server reached through the transport selector, forwarding every tool,
// resource, and prompt call straight through with no rewriting or
// multiplexing (spec.md Non-goals).
package bridge

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-remote-bridge/internal/authprovider"
	"github.com/giantswarm/mcp-remote-bridge/internal/selector"
	"github.com/giantswarm/mcp-remote-bridge/internal/transport"
	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

const (
	serverName    = "mcp-remote-bridge"
	serverVersion = "1.0.0"
)

// Options controls passthrough behavior that doesn't belong to the selector
// or the auth provider.
type Options struct {
	// IgnoredTools are tool names the remote server advertises that should
	// never be exposed upstream, matched against the remote's own name
	// (before any passthrough, since this bridge does no renaming).
	IgnoredTools []string
}

// Runtime is the bridge's top-level coordinator: one Selector (transport +
// lock-in), one Provider (OAuth state for this server), one live remote
// client, one upstream stdio MCP server.
type Runtime struct {
	sel      *selector.Selector
	provider *authprovider.Provider
	opts     Options
	ignored  map[string]bool

	client    transport.MCPClient
	mcpServer *mcpserver.MCPServer
}

// New builds a Runtime. sel and provider must target the same remote server.
func New(sel *selector.Selector, provider *authprovider.Provider, opts Options) *Runtime {
	ignored := make(map[string]bool, len(opts.IgnoredTools))
	for _, name := range opts.IgnoredTools {
		ignored[name] = true
	}
	return &Runtime{sel: sel, provider: provider, opts: opts, ignored: ignored}
}

// Run connects to the remote server (driving the OAuth flow if required),
// mirrors its capabilities onto a stdio MCP server, and blocks serving stdio
// until the upstream side closes or ctx is cancelled. When connecting to the
// remote fails, the returned error is *AuthFailedError or
// *TransportUnreachableError so the CLI layer can map it to an exit code; a
// failure after connecting (mirroring capabilities, or the stdio transport
// closing) is returned as a plain wrapped error. A clean shutdown returns nil.
func (r *Runtime) Run(ctx context.Context) error {
	client, err := r.connect(ctx)
	if err != nil {
		return err
	}
	r.client = client
	defer func() {
		if err := r.client.Close(); err != nil {
			logging.Warn("Bridge", "error closing remote client: %v", err)
		}
	}()

	r.mcpServer = mcpserver.NewMCPServer(
		serverName,
		serverVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, false),
		mcpserver.WithPromptCapabilities(true),
	)

	if err := r.mirrorCapabilities(ctx); err != nil {
		return fmt.Errorf("mirror remote capabilities: %w", err)
	}

	logging.Info("Bridge", "serving stdio, forwarding to %s", r.sel.URL)
	if err := mcpserver.ServeStdio(r.mcpServer); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio transport closed unexpectedly: %w", err)
	}
	return nil
}

// connect acquires a remote client, running the OAuth flow and retrying
// exactly once if the selector reports the server wants authentication
// (spec.md §4.6/§7's "invalidate tokens, one reattempt, then fatal").
func (r *Runtime) connect(ctx context.Context) (transport.MCPClient, error) {
	client, err := r.sel.Connect(ctx)
	if err == nil {
		return client, nil
	}

	var authErr *selector.AuthRequiredError
	if !asAuthRequired(err, &authErr) {
		return nil, &TransportUnreachableError{ServerURL: r.sel.URL, Cause: err}
	}

	action := r.provider.InvalidateCredentials(err)
	logging.Info("Bridge", "authentication required for %s (%s), starting OAuth flow", r.sel.URL, action)
	if authErr := r.provider.Authenticate(ctx); authErr != nil {
		return nil, &AuthFailedError{ServerURL: r.sel.URL, Cause: authErr}
	}

	client, err = r.sel.Connect(ctx)
	if err == nil {
		return client, nil
	}

	var secondAuthErr *selector.AuthRequiredError
	if asAuthRequired(err, &secondAuthErr) {
		return nil, &AuthFailedError{ServerURL: r.sel.URL, Cause: err}
	}
	return nil, &TransportUnreachableError{ServerURL: r.sel.URL, Cause: err}
}

func asAuthRequired(err error, target **selector.AuthRequiredError) bool {
	for err != nil {
		if authErr, ok := err.(*selector.AuthRequiredError); ok {
			*target = authErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// mirrorCapabilities lists the remote's tools, resources, and prompts and
// registers a passthrough handler for each on the upstream stdio server.
// Items in Options.IgnoredTools are dropped from the tool list entirely,
// matching spec.md's "denylist at the edge" framing (no partial filtering
// inside a tool call).
func (r *Runtime) mirrorCapabilities(ctx context.Context) error {
	tools, err := r.client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list remote tools: %w", err)
	}
	var kept []mcp.Tool
	for _, tool := range tools {
		if r.ignored[tool.Name] {
			logging.Debug("Bridge", "dropping ignored tool %s", tool.Name)
			continue
		}
		kept = append(kept, tool)
		r.mcpServer.AddTool(tool, r.callToolHandler(tool.Name))
	}
	logging.Info("Bridge", "mirrored %d tools (%d ignored)", len(kept), len(tools)-len(kept))

	resources, err := r.client.ListResources(ctx)
	if err != nil {
		logging.Warn("Bridge", "list remote resources: %v (continuing without resources)", err)
	}
	if len(resources) > 0 {
		serverResources := make([]mcpserver.ServerResource, 0, len(resources))
		for _, resource := range resources {
			serverResources = append(serverResources, mcpserver.ServerResource{
				Resource: resource,
				Handler:  r.readResourceHandler(),
			})
		}
		r.mcpServer.AddResources(serverResources...)
	}

	prompts, err := r.client.ListPrompts(ctx)
	if err != nil {
		logging.Warn("Bridge", "list remote prompts: %v (continuing without prompts)", err)
	}
	if len(prompts) > 0 {
		serverPrompts := make([]mcpserver.ServerPrompt, 0, len(prompts))
		for _, prompt := range prompts {
			serverPrompts = append(serverPrompts, mcpserver.ServerPrompt{
				Prompt:  prompt,
				Handler: r.getPromptHandler(prompt.Name),
			})
		}
		r.mcpServer.AddPrompts(serverPrompts...)
	}

	return nil
}

func (r *Runtime) callToolHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return r.client.CallTool(ctx, name, req.GetArguments())
	}
}

func (r *Runtime) readResourceHandler() func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		result, err := r.client.ReadResource(ctx, req.Params.URI)
		if err != nil {
			return nil, err
		}
		return result.Contents, nil
	}
}

func (r *Runtime) getPromptHandler(name string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := make(map[string]interface{}, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			args[k] = v // mcp.GetPromptRequest carries string-typed arguments
		}
		return r.client.GetPrompt(ctx, name, args)
	}
}
