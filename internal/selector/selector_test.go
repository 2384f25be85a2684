package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-remote-bridge/internal/transport"
)

// fakeClient is a minimal transport.MCPClient whose Initialize behavior is
// scripted by the test.
type fakeClient struct {
	initErr error
}

func (f *fakeClient) Initialize(ctx context.Context) error { return f.initErr }
func (f *fakeClient) Close() error                          { return nil }
func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return nil, nil
}
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (f *fakeClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return nil, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return nil, nil
}
func (f *fakeClient) Ping(ctx context.Context) error { return nil }

var _ transport.MCPClient = (*fakeClient)(nil)

func TestSelector_HTTPFirstSucceedsImmediately(t *testing.T) {
	s := New("https://example.com/mcp", HTTPFirst, nil)
	calls := map[kind]int{}
	s.newClientFunc = func(k kind) transport.MCPClient {
		calls[k]++
		return &fakeClient{}
	}

	client, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, 1, calls[kindHTTP])
	assert.Equal(t, 0, calls[kindSSE])
}

func TestSelector_FallsBackToSSEOnHTTPFailure(t *testing.T) {
	s := New("https://example.com/mcp", HTTPFirst, nil)
	s.newClientFunc = func(k kind) transport.MCPClient {
		if k == kindHTTP {
			return &fakeClient{initErr: errors.New("connection refused")}
		}
		return &fakeClient{}
	}

	client, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestSelector_LocksInTransportAfterSuccess(t *testing.T) {
	s := New("https://example.com/mcp", HTTPFirst, nil)
	calls := map[kind]int{}
	s.newClientFunc = func(k kind) transport.MCPClient {
		calls[k]++
		return &fakeClient{}
	}

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	_, err = s.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls[kindHTTP])
	assert.Equal(t, 0, calls[kindSSE], "locked-in selector should never probe SSE again")
}

func TestSelector_AuthRequiredShortCircuitsBackoff(t *testing.T) {
	s := New("https://example.com/mcp", HTTPOnly, nil)
	attempts := 0
	s.newClientFunc = func(k kind) transport.MCPClient {
		attempts++
		return &fakeClient{initErr: &transport.AuthRequiredError{URL: s.URL}}
	}

	_, err := s.Connect(context.Background())
	require.Error(t, err)
	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, attempts, "auth-required must not be retried with backoff")
}

func TestSelector_HTTPOnlyNeverTriesSSE(t *testing.T) {
	s := New("https://example.com/mcp", HTTPOnly, nil)
	s.newClientFunc = func(k kind) transport.MCPClient {
		if k == kindSSE {
			t.Fatal("http-only strategy must never construct an SSE client")
		}
		return &fakeClient{initErr: errors.New("down")}
	}

	_, err := s.Connect(context.Background())
	require.Error(t, err)
}

func TestSelector_ResetClearsLockIn(t *testing.T) {
	s := New("https://example.com/mcp", HTTPFirst, nil)
	s.newClientFunc = func(k kind) transport.MCPClient { return &fakeClient{} }

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	s.Reset()

	calls := map[kind]int{}
	s.newClientFunc = func(k kind) transport.MCPClient {
		calls[k]++
		return &fakeClient{}
	}
	_, err = s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls[kindHTTP])
}

func TestParseStrategy_UnknownFallsBackToHTTPFirst(t *testing.T) {
	assert.Equal(t, HTTPFirst, ParseStrategy("bogus"))
	assert.Equal(t, SSEOnly, ParseStrategy("sse-only"))
}
