// Package logging provides the structured logging used throughout the bridge.
//
// Logging is CLI-only: log lines are written directly to the configured
// writer (normally stderr, so stdout stays reserved for MCP stdio framing)
// via slog.TextHandler. There is no TUI or channel-based mode.
//
// # Subsystems
//
// Calls are tagged with a subsystem string for filtering:
//
//   - Store: config store reads/writes
//   - Coordinator: cross-process auth coordination and locking
//   - AuthProvider: OAuth provider, token exchange and refresh
//   - Callback: loopback callback listener
//   - Selector: transport selection and retry
//   - Transport: remote client connection and session negotiation
//   - Bridge: upstream/downstream message forwarding
//   - CLI: argument parsing and startup
//
// # Audit events
//
// Security-sensitive operations (token issuance, refresh, deletion, lock
// acquire/release) are additionally logged via Audit, which never includes
// token or authorization code values, only truncated server hashes and
// outcome/target metadata.
package logging
