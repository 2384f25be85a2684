// Package oauth provides the OAuth 2.1 types and protocol client used by the
// bridge's authentication provider (internal/authprovider) and by the remote
// transports (internal/transport).
//
// # Core Components
//
//   - Token: OAuth token representation with expiry checking
//   - Metadata: OAuth/OIDC server metadata (RFC 8414)
//   - AuthChallenge: Parsed WWW-Authenticate header information
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - Client: OAuth client for metadata discovery and token operations
//
// # Usage
//
// Storage of tokens and client registrations, and the browser/callback
// handling, live in the callers; this package only speaks the protocol.
//
//	import "github.com/giantswarm/mcp-remote-bridge/pkg/oauth"
//
//	challenge, err := oauth.ParseWWWAuthenticate(header)
//	pkce, err := oauth.GeneratePKCE() // pkce.CodeVerifier, pkce.CodeChallenge
//
//	client := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	metadata, err := client.DiscoverMetadata(ctx, issuer)
package oauth
