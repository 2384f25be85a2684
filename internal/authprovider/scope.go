package authprovider

import "strings"

// defaultScope is requested when neither --oauth-scopes nor any
// scope-shaped client metadata field yields a value.
const defaultScope = "openid email profile"

// ClientMetadataScopes holds the scope-shaped fields that can appear in a
// server's static or dynamically registered client metadata, so
// ResolveScope doesn't need to know which one produced them.
type ClientMetadataScopes struct {
	Scope         string
	DefaultScope  string
	Scopes        []string
	DefaultScopes []string
}

// ResolveScope picks the OAuth scope string to request. An explicit
// --oauth-scopes flag always wins; otherwise the server's client metadata is
// consulted in priority order (scope > default_scope > scopes[] >
// default_scopes[], the latter two space-joined). If none of those are
// present it falls back to defaultScope.
func ResolveScope(cliScopes []string, md ClientMetadataScopes) string {
	if len(cliScopes) > 0 {
		return strings.Join(cliScopes, " ")
	}
	if md.Scope != "" {
		return md.Scope
	}
	if md.DefaultScope != "" {
		return md.DefaultScope
	}
	if len(md.Scopes) > 0 {
		return strings.Join(md.Scopes, " ")
	}
	if len(md.DefaultScopes) > 0 {
		return strings.Join(md.DefaultScopes, " ")
	}
	return defaultScope
}
