package transport

import (
	"context"

	"github.com/giantswarm/mcp-remote-bridge/pkg/oauth"
)

// TokenProvider supplies the current bearer token on demand. The
// streamable-HTTP client calls GetAccessToken on every outbound HTTP request
// (via the header func below) rather than baking a token into the client at
// construction time, so a token refreshed mid-session is picked up without
// recreating the remote client. The SSE client calls it once, in Initialize,
// and keeps that token for the life of the connection.
type TokenProvider interface {
	// GetAccessToken returns the current access token, or "" if none is
	// available yet (the initial, pre-auth connection attempt).
	GetAccessToken(ctx context.Context) string
}

// TokenProviderFunc adapts a plain function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) string

// GetAccessToken implements TokenProvider.
func (f TokenProviderFunc) GetAccessToken(ctx context.Context) string {
	return f(ctx)
}

// StaticTokenProvider returns a TokenProvider that always serves the same
// token; used in tests and for servers that accept a pre-supplied bearer
// token with no refresh cycle.
func StaticTokenProvider(token string) TokenProvider {
	return TokenProviderFunc(func(_ context.Context) string { return token })
}

// NoToken is a TokenProvider that never has a token, used for the first
// connection attempt against a server whose auth requirement is not yet
// known.
var NoToken TokenProvider = TokenProviderFunc(func(_ context.Context) string { return "" })

// headerFunc converts a TokenProvider into the map[string]string-returning
// function mcp-go's transport.WithHTTPHeaderFunc/transport.WithHeaders
// variants expect, so the Authorization header is computed fresh per
// request rather than fixed at client construction. extra carries the
// operator's static --header values, which are sent alongside Authorization
// rather than replaced by it.
func headerFunc(provider TokenProvider, extra map[string]string) func(context.Context) map[string]string {
	return func(ctx context.Context) map[string]string {
		token := provider.GetAccessToken(ctx)
		if token == "" && len(extra) == 0 {
			return nil
		}
		headers := make(map[string]string, len(extra)+1)
		for k, v := range extra {
			headers[k] = v
		}
		if token != "" {
			headers["Authorization"] = "Bearer " + token
		}
		return headers
	}
}

// AuthRequiredError signals that the remote server rejected the connection
// attempt with a 401, carrying whatever OAuth challenge parameters could be
// recovered from the response or the client library's error text.
type AuthRequiredError struct {
	URL       string
	Challenge *oauth.AuthChallenge
	Err       error
}

func (e *AuthRequiredError) Error() string {
	return "authentication required for " + e.URL
}

func (e *AuthRequiredError) Unwrap() error {
	return e.Err
}

// CheckForAuthRequiredError inspects an error returned from an mcp-go
// client call and, if it looks like a 401, returns an AuthRequiredError
// carrying whatever WWW-Authenticate parameters could be recovered from the
// error text. mcp-go surfaces 401s as plain wrapped errors rather than a
// typed HTTP status, so this is a best-effort string match rather than a
// type assertion.
func CheckForAuthRequiredError(err error, url string) *AuthRequiredError {
	if err == nil || !oauth.Is401Error(err) {
		return nil
	}

	return &AuthRequiredError{
		URL:       url,
		Challenge: oauth.ParseWWWAuthenticateFromError(err),
		Err:       err,
	}
}
