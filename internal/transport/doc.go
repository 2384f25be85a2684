// Package transport contains the concrete mcp-go-backed remote clients
// (streamable HTTP and SSE) plus the shared helpers for detecting an
// auth-required response and injecting the current bearer token into every
// outbound request. internal/selector chooses between these; this package
// doesn't know about strategy, backoff, or lock-in.
package transport
