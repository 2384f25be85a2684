package transport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	clienttransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

// StreamableHTTPClient connects to a remote MCP server over the streamable
// HTTP transport, the selector's default choice.
type StreamableHTTPClient struct {
	baseMCPClient
	url          string
	tokens       TokenProvider
	extraHeaders map[string]string
}

// NewStreamableHTTPClient builds a streamable-HTTP client that injects the
// current access token (if any) from tokens on every request.
func NewStreamableHTTPClient(url string, tokens TokenProvider) *StreamableHTTPClient {
	if tokens == nil {
		tokens = NoToken
	}
	return &StreamableHTTPClient{url: url, tokens: tokens}
}

// SetHeaders attaches operator-supplied static headers (from --header) that
// are sent on every request alongside the Authorization header.
func (c *StreamableHTTPClient) SetHeaders(headers map[string]string) {
	c.extraHeaders = headers
}

// Initialize connects and performs the MCP protocol handshake. If the
// server responds with a 401 at any point, it returns an
// *AuthRequiredError instead of a generic error.
func (c *StreamableHTTPClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("Transport", "connecting streamable-http client to %s", c.url)

	mcpClient, err := client.NewStreamableHttpClient(c.url,
		clienttransport.WithHTTPHeaderFunc(headerFunc(c.tokens, c.extraHeaders)),
	)
	if err != nil {
		return fmt.Errorf("create streamable-http client: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, initializeRequest())
	if err != nil {
		mcpClient.Close()
		if authErr := CheckForAuthRequiredError(err, c.url); authErr != nil {
			logging.Debug("Transport", "streamable-http: auth required for %s", c.url)
			return authErr
		}
		return fmt.Errorf("initialize streamable-http session: %w", err)
	}

	c.client = mcpClient
	c.connected = true
	logging.Debug("Transport", "streamable-http connected: server %s %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)
	return nil
}

func (c *StreamableHTTPClient) Close() error { return c.closeClient() }

func (c *StreamableHTTPClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

func (c *StreamableHTTPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

func (c *StreamableHTTPClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

func (c *StreamableHTTPClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

func (c *StreamableHTTPClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

func (c *StreamableHTTPClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

func (c *StreamableHTTPClient) Ping(ctx context.Context) error { return c.ping(ctx) }
