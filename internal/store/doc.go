// Package store implements the bridge's on-disk config store.
//
// Layout: <root>/<server-hash>/{client_info.json, tokens.json,
// code_verifier.txt, scopes.json, lock.json}. Every file is JSON except
// code_verifier.txt, which is plain text. Root defaults to
// "<home>/.mcp-auth/mcp-remote-<major>" and can be overridden with the
// MCP_REMOTE_CONFIG_DIR environment variable.
//
// Every write goes through a temp-file-then-rename sequence in the same
// directory as the target, so a reader never observes a partially written
// record even if the process is killed mid-write. This relies on os.Rename
// being atomic within a single filesystem; it is not atomic across
// filesystem boundaries, so MCP_REMOTE_CONFIG_DIR should not point at a
// network mount shared with a different filesystem than its parent.
//
// A record whose file exists but fails to unmarshal (e.g. written by an
// incompatible future version) is treated the same as a missing record:
// callers re-derive it rather than fail startup over a stale file.
package store
