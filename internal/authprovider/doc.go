// Package authprovider orchestrates OAuth 2.1 authentication for a single
// remote MCP server: it ties together pkg/oauth (the protocol client),
// internal/store (persisted client registration + tokens), internal/callback
// (the loopback redirect listener), and internal/coordinator (cross-process
// leader election so only one bridge process per server drives the browser
// flow at a time).
//
// # Flow
//
//  1. The bridge runtime connects and gets a 401. Probe classifies the
//     failure and discovers the authorization server via RFC 9728 protected
//     resource metadata (falling back to RFC 8414/OIDC discovery against the
//     server's own origin).
//  2. Provider.Authenticate either becomes the coordination leader -- opens
//     the system browser against an authorization URL built with PKCE, waits
//     on the callback listener for the redirect, and exchanges the code for
//     tokens -- or, as a follower, polls the leader's callback listener for
//     the redirect outcome and then waits for the leader's tokens to appear
//     in the config store.
//  3. Tokens and client registration are written to the config store keyed by
//     server hash, so a later process for the same server skips straight to
//     GetAccessToken.
//  4. GetAccessToken transparently refreshes an expiring token; when refresh
//     fails with invalid_grant or the server starts rejecting the registered
//     client, InvalidateCredentials decides how much state to discard before
//     the bridge runtime retries.
//
// This package intentionally does not reimplement wire-level OAuth mechanics
// (PKCE, WWW-Authenticate parsing, token exchange) -- those live in pkg/oauth
// and are reused here, not duplicated.
package authprovider
