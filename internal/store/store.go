// Package store implements the bridge's on-disk config store: one record
// file per (server hash, record kind) -- JSON for every record except the
// plain-text PKCE code verifier -- written atomically and readable only by
// its owner.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

// EnvConfigDir overrides the root of the config store when set.
const EnvConfigDir = "MCP_REMOTE_CONFIG_DIR"

const (
	clientInfoFile   = "client_info.json"
	tokensFile       = "tokens.json"
	codeVerifierFile = "code_verifier.txt"
	scopesFile       = "scopes.json"
	lockFile         = "lock.json"
)

// Store is the root of the config store for one mcp-remote-bridge major
// version. Each server's records live under Root()/<server-hash>/.
type Store struct {
	root string
}

// New resolves the config store root for the given major version and
// ensures it exists. Resolution order: MCP_REMOTE_CONFIG_DIR env var, else
// "<home>/.mcp-auth/mcp-remote-<major>".
func New(majorVersion int) (*Store, error) {
	root := os.Getenv(EnvConfigDir)
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config store root: %w", err)
		}
		root = filepath.Join(home, ".mcp-auth", fmt.Sprintf("mcp-remote-%d", majorVersion))
	}

	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("create config store root %s: %w", root, err)
	}

	return &Store{root: root}, nil
}

// Root returns the config store's root directory.
func (s *Store) Root() string {
	return s.root
}

// ServerDir returns the per-server directory for a server hash, creating it
// if necessary.
func (s *Store) ServerDir(serverHash string) (string, error) {
	dir := filepath.Join(s.root, serverHash)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create server dir %s: %w", dir, err)
	}
	return dir, nil
}

// writeJSON atomically writes v as JSON to <serverDir>/name with 0600
// permissions: marshal, write to a temp file in the same directory, then
// rename over the target. Rename is atomic on the same filesystem, so
// readers never observe a partially written file.
func (s *Store) writeJSON(serverHash, name string, v interface{}) error {
	dir, err := s.ServerDir(serverHash)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	return atomicWrite(filepath.Join(dir, name), data)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// readJSON reads and unmarshals <serverDir>/name into v. A missing file
// returns (false, nil). A file that exists but fails to unmarshal is also
// treated as absent, on the theory that a record from an incompatible
// schema version is no better than no record: the caller re-derives it
// rather than failing the whole bridge startup on a stale file.
func (s *Store) readJSON(serverHash, name string, v interface{}) (bool, error) {
	path := filepath.Join(s.root, serverHash, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		logging.Warn("Store", "discarding %s for %s: schema mismatch: %v", name, logging.TruncateSessionID(serverHash), err)
		return false, nil
	}
	return true, nil
}

func (s *Store) deleteFile(serverHash, name string) error {
	path := filepath.Join(s.root, serverHash, name)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// ReadClientInfo reads the dynamic-client-registration record for a server.
// ok is false if no record (or an unparsable one) exists.
func (s *Store) ReadClientInfo(serverHash string) (info ClientInfo, ok bool, err error) {
	ok, err = s.readJSON(serverHash, clientInfoFile, &info)
	return info, ok, err
}

// WriteClientInfo persists the dynamic-client-registration record.
func (s *Store) WriteClientInfo(serverHash string, info ClientInfo) error {
	return s.writeJSON(serverHash, clientInfoFile, info)
}

// DeleteClientInfo removes the client info record.
func (s *Store) DeleteClientInfo(serverHash string) error {
	return s.deleteFile(serverHash, clientInfoFile)
}

// ReadTokens reads the token record for a server.
func (s *Store) ReadTokens(serverHash string) (tokens Tokens, ok bool, err error) {
	ok, err = s.readJSON(serverHash, tokensFile, &tokens)
	return tokens, ok, err
}

// WriteTokens persists the token record and emits an audit event. Token
// values themselves are never logged.
func (s *Store) WriteTokens(serverHash string, tokens Tokens) error {
	if err := s.writeJSON(serverHash, tokensFile, tokens); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:     "token_issue",
			Outcome:    "failure",
			ServerHash: logging.TruncateSessionID(serverHash),
			Error:      err.Error(),
		})
		return err
	}
	logging.Audit(logging.AuditEvent{
		Action:     "token_issue",
		Outcome:    "success",
		ServerHash: logging.TruncateSessionID(serverHash),
	})
	return nil
}

// DeleteTokens removes the token record and emits an audit event.
func (s *Store) DeleteTokens(serverHash string) error {
	err := s.deleteFile(serverHash, tokensFile)
	logging.Audit(logging.AuditEvent{
		Action:     "token_delete",
		Outcome:    outcome(err),
		ServerHash: logging.TruncateSessionID(serverHash),
	})
	return err
}

// ReadCodeVerifier reads the PKCE verifier record for a server. Unlike the
// other records, code_verifier.txt is a plain text file (verifier, state,
// and the RFC 3339 creation time, one per line), not JSON.
func (s *Store) ReadCodeVerifier(serverHash string) (cv CodeVerifier, ok bool, err error) {
	path := filepath.Join(s.root, serverHash, codeVerifierFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CodeVerifier{}, false, nil
		}
		return CodeVerifier{}, false, fmt.Errorf("read %s: %w", codeVerifierFile, err)
	}

	lines := strings.SplitN(strings.TrimRight(string(data), "\n"), "\n", 3)
	if len(lines) < 2 {
		logging.Warn("Store", "discarding %s for %s: malformed record", codeVerifierFile, logging.TruncateSessionID(serverHash))
		return CodeVerifier{}, false, nil
	}
	cv.Verifier = lines[0]
	cv.State = lines[1]
	if len(lines) == 3 {
		if ts, err := time.Parse(time.RFC3339, lines[2]); err == nil {
			cv.CreatedAt = ts
		}
	}
	return cv, true, nil
}

// WriteCodeVerifier persists the PKCE verifier record as plain text.
func (s *Store) WriteCodeVerifier(serverHash string, cv CodeVerifier) error {
	dir, err := s.ServerDir(serverHash)
	if err != nil {
		return err
	}
	data := fmt.Sprintf("%s\n%s\n%s\n", cv.Verifier, cv.State, cv.CreatedAt.Format(time.RFC3339))
	return atomicWrite(filepath.Join(dir, codeVerifierFile), []byte(data))
}

// DeleteCodeVerifier removes the PKCE verifier record.
func (s *Store) DeleteCodeVerifier(serverHash string) error {
	return s.deleteFile(serverHash, codeVerifierFile)
}

// ReadScopes reads the resolved scope record for a server.
func (s *Store) ReadScopes(serverHash string) (sc Scopes, ok bool, err error) {
	ok, err = s.readJSON(serverHash, scopesFile, &sc)
	return sc, ok, err
}

// WriteScopes persists the resolved scope record.
func (s *Store) WriteScopes(serverHash string, sc Scopes) error {
	return s.writeJSON(serverHash, scopesFile, sc)
}

// DeleteScopes removes the scope record.
func (s *Store) DeleteScopes(serverHash string) error {
	return s.deleteFile(serverHash, scopesFile)
}

// ReadLock reads the cross-process coordination lock record for a server.
func (s *Store) ReadLock(serverHash string) (lock Lock, ok bool, err error) {
	ok, err = s.readJSON(serverHash, lockFile, &lock)
	return lock, ok, err
}

// WriteLock persists the coordination lock record and audits the
// acquisition.
func (s *Store) WriteLock(serverHash string, lock Lock) error {
	if err := s.writeJSON(serverHash, lockFile, lock); err != nil {
		return err
	}
	logging.Audit(logging.AuditEvent{
		Action:     "lock_acquire",
		Outcome:    "success",
		ServerHash: logging.TruncateSessionID(serverHash),
		Details:    fmt.Sprintf("pid=%d port=%d", lock.PID, lock.Port),
	})
	return nil
}

// DeleteLock releases the coordination lock record and audits the release.
func (s *Store) DeleteLock(serverHash string) error {
	err := s.deleteFile(serverHash, lockFile)
	logging.Audit(logging.AuditEvent{
		Action:     "lock_release",
		Outcome:    outcome(err),
		ServerHash: logging.TruncateSessionID(serverHash),
	})
	return err
}

// InvalidateTokens clears the tokens and scopes records, leaving client
// registration and any in-flight PKCE verifier intact. This is the "tokens"
// tier of the invalidation lattice.
func (s *Store) InvalidateTokens(serverHash string) error {
	if err := s.DeleteTokens(serverHash); err != nil {
		return err
	}
	return s.DeleteScopes(serverHash)
}

// InvalidateClient clears client registration along with tokens and scopes,
// leaving any in-flight PKCE verifier intact. This is the "client" tier.
func (s *Store) InvalidateClient(serverHash string) error {
	if err := s.InvalidateTokens(serverHash); err != nil {
		return err
	}
	return s.DeleteClientInfo(serverHash)
}

// InvalidateAll clears every record for a server, including the PKCE
// verifier and any held lock. This is the "all" tier.
func (s *Store) InvalidateAll(serverHash string) error {
	if err := s.InvalidateClient(serverHash); err != nil {
		return err
	}
	if err := s.DeleteCodeVerifier(serverHash); err != nil {
		return err
	}
	return s.DeleteLock(serverHash)
}

// Prune removes server directories whose persisted ServerURL no longer
// matches the corresponding entry in liveServerURLs (keyed by server hash),
// i.e. the hash's underlying URL has changed since the directory was
// written. A directory whose hash isn't mentioned in liveServerURLs at all
// is left alone: this process only knows the server(s) it was invoked
// against, not every server another process might have configured, so
// absence from liveServerURLs is not evidence a directory is stale.
// Directories with no readable ClientInfo record (no URL to check) are
// likewise left alone. It is best-effort: errors on individual entries are
// logged and skipped rather than aborting the whole pass.
func (s *Store) Prune(liveServerURLs map[string]string) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config store root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		hash := entry.Name()
		liveURL, known := liveServerURLs[hash]
		if !known {
			continue
		}

		info, ok, err := s.ReadClientInfo(hash)
		if err != nil {
			logging.Warn("Store", "prune: read client info for %s: %v", hash, err)
			continue
		}
		if !ok || info.ServerURL == "" || info.ServerURL == liveURL {
			continue
		}

		path := filepath.Join(s.root, hash)
		logging.Info("Store", "prune: removing %s, stored URL %q no longer matches live config %q", hash, info.ServerURL, liveURL)
		if err := os.RemoveAll(path); err != nil {
			logging.Warn("Store", "prune: remove %s: %v", path, err)
		}
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
