// Package serverid derives the stable per-server identifier used to key
// everything the bridge persists or coordinates: the config store
// directory, the lockfile name, and log/audit correlation.
package serverid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashLen is the number of hex characters kept from the SHA-256 digest.
// 32 hex chars (16 bytes) is short enough for a filesystem path component
// while leaving collision odds far below anything a single operator's
// server list could hit.
const hashLen = 32

// Hash returns a stable, filesystem-safe identifier for a remote server
// URL. The URL is normalized (surrounding whitespace and one trailing slash
// stripped, the whole URL including its path lowercased) before hashing so that "https://Example.com/mcp" and
// "https://example.com/mcp/" resolve to the same hash.
func Hash(serverURL string) string {
	normalized := normalize(serverURL)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:hashLen]
}

func normalize(serverURL string) string {
	s := strings.TrimSpace(serverURL)
	s = strings.TrimSuffix(s, "/")
	return strings.ToLower(s)
}
