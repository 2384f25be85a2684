package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckForAuthRequiredError_DetectsBearerChallenge(t *testing.T) {
	err := errors.New(`request failed with status 401: Bearer realm="https://idp.example.com", scope="mcp.read"`)

	authErr := CheckForAuthRequiredError(err, "https://mcp.example.com")
	require.NotNil(t, authErr)
	assert.Equal(t, "https://mcp.example.com", authErr.URL)
	require.NotNil(t, authErr.Challenge)
	assert.Equal(t, "https://idp.example.com", authErr.Challenge.Realm)
	assert.Equal(t, "mcp.read", authErr.Challenge.Scope)
}

func TestCheckForAuthRequiredError_NilForNon401(t *testing.T) {
	assert.Nil(t, CheckForAuthRequiredError(errors.New("connection refused"), "https://mcp.example.com"))
	assert.Nil(t, CheckForAuthRequiredError(nil, "https://mcp.example.com"))
}

func TestHeaderFunc_EmptyTokenProducesNilHeaders(t *testing.T) {
	f := headerFunc(StaticTokenProvider(""), nil)
	assert.Nil(t, f(context.Background()))
}

func TestHeaderFunc_InjectsBearerPrefix(t *testing.T) {
	f := headerFunc(StaticTokenProvider("abc123"), nil)
	headers := f(context.Background())
	assert.Equal(t, "Bearer abc123", headers["Authorization"])
}

func TestHeaderFunc_MergesStaticHeadersWithToken(t *testing.T) {
	f := headerFunc(StaticTokenProvider("abc123"), map[string]string{"X-Custom": "value"})
	headers := f(context.Background())
	assert.Equal(t, "Bearer abc123", headers["Authorization"])
	assert.Equal(t, "value", headers["X-Custom"])
}

func TestHeaderFunc_StaticHeadersSurviveWithNoToken(t *testing.T) {
	f := headerFunc(StaticTokenProvider(""), map[string]string{"X-Custom": "value"})
	headers := f(context.Background())
	assert.Equal(t, "value", headers["X-Custom"])
	_, hasAuth := headers["Authorization"]
	assert.False(t, hasAuth)
}
