package store

import "time"

// ClientInfo is the result of OAuth dynamic client registration (RFC 7591),
// or a statically supplied client identity.
type ClientInfo struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	RedirectURIs []string  `json:"redirect_uris,omitempty"`
	IssuerURL    string    `json:"issuer_url"`
	RegisteredAt time.Time `json:"registered_at"`

	// ServerURL is the remote server URL this directory's hash was derived
	// from, persisted so Prune can detect a hash whose underlying URL has
	// since changed (spec.md §3: "stale files pruned when the URL behind a
	// hash changes").
	ServerURL string `json:"server_url,omitempty"`
}

// Tokens is the persisted OAuth token set for one server.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// CodeVerifier is the PKCE code verifier generated at the start of an
// authorization attempt. The leading process writes it when the attempt
// starts and deletes it when the attempt ends; the code exchange itself runs
// in that same process, using the verifier it holds in memory.
type CodeVerifier struct {
	Verifier  string    `json:"verifier"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Scopes is the resolved OAuth scope string for a server, cached so a token
// refresh does not need to re-derive scope precedence.
type Scopes struct {
	Scope string `json:"scope"`
}

// Lock is the cross-process auth coordination record. Its presence and
// freshness determine whether a bridge process beginning an OAuth flow
// should lead (drive the browser flow itself) or follow (poll the leader's
// callback listener for the result).
type Lock struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	LockID    string    `json:"lock_id"`
	CreatedAt time.Time `json:"created_at"`
}
