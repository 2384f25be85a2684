package transport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	clienttransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

// SSEClient connects to a remote MCP server over the older Server-Sent
// Events transport, used as a fallback when streamable HTTP is refused or
// disabled by policy.
type SSEClient struct {
	baseMCPClient
	url          string
	tokens       TokenProvider
	extraHeaders map[string]string
}

// NewSSEClient builds an SSE client that injects the current access token
// (if any) from tokens on every request.
func NewSSEClient(url string, tokens TokenProvider) *SSEClient {
	if tokens == nil {
		tokens = NoToken
	}
	return &SSEClient{url: url, tokens: tokens}
}

// SetHeaders attaches operator-supplied static headers (from --header),
// fixed for the life of the connection like the rest of this transport's
// auth header handling.
func (c *SSEClient) SetHeaders(headers map[string]string) {
	c.extraHeaders = headers
}

// Initialize connects, starts the SSE stream, and performs the MCP
// handshake. If the server responds with a 401 at either step, it returns
// an *AuthRequiredError.
func (c *SSEClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("Transport", "connecting sse client to %s", c.url)

	// Unlike the streamable-HTTP transport, mcp-go's SSE client has no
	// per-request header hook: the token is fixed for the life of this
	// connection. A refreshed token only takes effect on the next
	// Initialize, which is why the selector retries a failed SSE session
	// from scratch rather than expecting it to self-heal.
	var opts []clienttransport.ClientOption
	headers := make(map[string]string, len(c.extraHeaders)+1)
	for k, v := range c.extraHeaders {
		headers[k] = v
	}
	if token := c.tokens.GetAccessToken(ctx); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	if len(headers) > 0 {
		opts = append(opts, clienttransport.WithHeaders(headers))
	}

	mcpClient, err := client.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("create sse client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		if authErr := CheckForAuthRequiredError(err, c.url); authErr != nil {
			logging.Debug("Transport", "sse: auth required starting transport for %s", c.url)
			return authErr
		}
		return fmt.Errorf("start sse transport: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, initializeRequest())
	if err != nil {
		mcpClient.Close()
		if authErr := CheckForAuthRequiredError(err, c.url); authErr != nil {
			logging.Debug("Transport", "sse: auth required for %s", c.url)
			return authErr
		}
		return fmt.Errorf("initialize sse session: %w", err)
	}

	c.client = mcpClient
	c.connected = true
	logging.Debug("Transport", "sse connected: server %s %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)
	return nil
}

func (c *SSEClient) Close() error { return c.closeClient() }

func (c *SSEClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

func (c *SSEClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

func (c *SSEClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

func (c *SSEClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

func (c *SSEClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

func (c *SSEClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

func (c *SSEClient) Ping(ctx context.Context) error { return c.ping(ctx) }
