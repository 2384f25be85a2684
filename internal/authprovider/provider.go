package authprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/mcp-remote-bridge/internal/callback"
	"github.com/giantswarm/mcp-remote-bridge/internal/coordinator"
	"github.com/giantswarm/mcp-remote-bridge/internal/serverid"
	"github.com/giantswarm/mcp-remote-bridge/internal/store"
	"github.com/giantswarm/mcp-remote-bridge/internal/transport"
	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
	"github.com/giantswarm/mcp-remote-bridge/pkg/oauth"
)

// defaultCallbackPort is used when the caller doesn't request a specific
// loopback port. The callback listener scans upward from here on conflict,
// so this is a starting point, not a hard requirement.
const defaultCallbackPort = 3334

// followerWaitTimeout bounds how long a follower process waits for the
// leader to finish writing tokens after the redirect itself has landed.
const followerWaitTimeout = 30 * time.Second

// ErrAuthRequired signals that GetAccessToken found no usable token and the
// caller must run Authenticate before retrying the connection.
var ErrAuthRequired = fmt.Errorf("authentication required")

// RepairAction describes what InvalidateCredentials decided to clear, so the
// bridge runtime's single retry has something concrete to act on instead of
// guessing how much state to discard.
type RepairAction int

const (
	// RepairNone means nothing needed clearing.
	RepairNone RepairAction = iota
	// RepairRetryRegistration means client registration was cleared; retry
	// registration before authenticating again.
	RepairRetryRegistration
	// RepairReauthenticate means only tokens were cleared; run the full
	// authorization-code flow again.
	RepairReauthenticate
	// RepairReregister means client registration was cleared because the
	// stored scope no longer covers what's required; re-register with the
	// wider scope before authenticating.
	RepairReregister
)

func (a RepairAction) String() string {
	switch a {
	case RepairRetryRegistration:
		return "retry-registration"
	case RepairReauthenticate:
		return "reauthenticate"
	case RepairReregister:
		return "reregister"
	default:
		return "none"
	}
}

// Options configure a Provider.
type Options struct {
	// CallbackPort is the loopback port the callback listener starts at.
	// Zero means defaultCallbackPort.
	CallbackPort int
	// Scopes are explicit --oauth-scopes values; highest priority in the
	// scope resolution lattice.
	Scopes []string
	// ClientName/ClientURI are sent as client_name/client_uri during
	// dynamic client registration.
	ClientName string
	ClientURI  string
	// StaticClientMetadata is a raw JSON object (--static-oauth-client-metadata)
	// deep-merged over the default registration payload: any field it sets
	// overrides the default, anything it omits falls through unchanged.
	StaticClientMetadata string
	// StaticClientInfo is a raw JSON object (--static-oauth-client-info)
	// describing a pre-registered client (client_id, client_secret,
	// redirect_uris). When set, dynamic client registration is skipped
	// entirely for servers that don't support RFC 7591.
	StaticClientInfo string
	// Resource is the RFC 8707 resource indicator (--authorize-resource)
	// appended to the authorization request, identifying which protected
	// resource the requested token is for. The token exchange does not
	// carry it.
	Resource string
}

// Provider drives OAuth authentication for a single remote MCP server: probing
// whether it requires auth, registering a client, running the PKCE
// authorization-code flow (leading or following per internal/coordinator),
// and refreshing or invalidating tokens afterward.
type Provider struct {
	serverURL  string
	serverHash string
	store      *store.Store
	oauth      *oauth.Client
	opts       Options
}

// New builds a Provider for serverURL, using st as the backing config store.
func New(st *store.Store, serverURL string, opts Options) *Provider {
	return &Provider{
		serverURL:  serverURL,
		serverHash: serverid.Hash(serverURL),
		store:      st,
		oauth:      oauth.NewClient(),
		opts:       opts,
	}
}

// ServerHash returns the storage/coordination key for this provider's server.
func (p *Provider) ServerHash() string { return p.serverHash }

// Authenticate runs the full auth flow for the provider's server: probing
// whether auth is required, registering a client if needed, and then either
// leading (driving the browser and callback listener) or following (polling
// the leader's callback listener and waiting for its tokens) the PKCE
// authorization-code exchange. It is a
// no-op if Probe reports the server doesn't require auth.
func (p *Provider) Authenticate(ctx context.Context) error {
	req, err := p.Probe(ctx)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.serverURL, err)
	}
	if !req.Required {
		return nil
	}

	metadata, err := p.oauth.DiscoverMetadata(ctx, req.Issuer)
	if err != nil {
		return fmt.Errorf("discover authorization server metadata for %s: %w", req.Issuer, err)
	}

	scope := ResolveScope(p.opts.Scopes, ClientMetadataScopes{})
	clientInfo, err := p.ensureClient(ctx, req.Issuer, metadata, scope)
	if err != nil {
		return fmt.Errorf("register client for %s: %w", req.Issuer, err)
	}

	handle, err := coordinator.Coordinate(ctx, p.store, p.serverHash, p.callbackPort())
	if err != nil {
		return fmt.Errorf("coordinate auth for %s: %w", p.serverURL, err)
	}

	if handle.Role == coordinator.Follower {
		return p.followAuth(ctx, handle)
	}
	defer handle.Release()
	return p.lead(ctx, handle, metadata, clientInfo, scope)
}

// lead drives the browser-facing half of the authorization-code flow: it
// generates PKCE + state, starts the callback listener, opens the browser,
// waits for the redirect, and exchanges the code for tokens.
func (p *Provider) lead(ctx context.Context, handle *coordinator.Handle, metadata *oauth.Metadata, clientInfo store.ClientInfo, scope string) error {
	state, err := oauth.GenerateState()
	if err != nil {
		return fmt.Errorf("generate state: %w", err)
	}
	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return fmt.Errorf("generate PKCE challenge: %w", err)
	}

	if err := p.store.WriteCodeVerifier(p.serverHash, store.CodeVerifier{
		Verifier:  pkce.CodeVerifier,
		State:     state,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("persist code verifier: %w", err)
	}
	defer func() { _ = p.store.DeleteCodeVerifier(p.serverHash) }()

	listener := callback.New(state)
	redirectURI, err := listener.Start(ctx, p.callbackPort())
	if err != nil {
		return fmt.Errorf("start callback listener: %w", err)
	}
	defer listener.Stop()

	// The listener's port scan may have moved off p.callbackPort() on
	// conflict; followers poll the lock record's port, so it must reflect
	// where the listener actually bound, not just where it was asked to.
	if err := handle.RecordActualPort(listener.Port()); err != nil {
		return fmt.Errorf("record callback listener port: %w", err)
	}

	authURL, err := p.oauth.BuildAuthorizationURL(metadata.AuthorizationEndpoint, clientInfo.ClientID, redirectURI, state, scope, pkce)
	if err != nil {
		return fmt.Errorf("build authorization URL: %w", err)
	}
	if p.opts.Resource != "" {
		authURL, err = withResourceParam(authURL, p.opts.Resource)
		if err != nil {
			return fmt.Errorf("apply authorize-resource: %w", err)
		}
	}

	if err := OpenBrowser(authURL); err != nil {
		logging.Warn("AuthProvider", "could not open browser automatically: %v", err)
		fmt.Fprintf(os.Stderr, "Open this URL to authenticate with %s:\n%s\n", p.serverURL, authURL)
	}

	result, err := listener.WaitForCallback(ctx)
	if err != nil {
		return fmt.Errorf("wait for OAuth callback: %w", err)
	}
	if result.IsError() {
		return fmt.Errorf("authorization failed: %s: %s", result.Error, result.ErrorDescription)
	}

	token, err := p.oauth.ExchangeCode(ctx, metadata.TokenEndpoint, result.Code, redirectURI, clientInfo.ClientID, pkce.CodeVerifier)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	return p.saveToken(token, scope)
}

// followAuth polls the leader's callback listener for the redirect outcome,
// then waits for the leader to finish writing tokens to the shared config
// store. A follower never performs its own code exchange: the authorization
// code is single-use, and the leader is the one holding the PKCE verifier in
// memory for it.
func (p *Provider) followAuth(ctx context.Context, handle *coordinator.Handle) error {
	pollURL := fmt.Sprintf("http://127.0.0.1:%d/wait-for-auth?pollId=%s", handle.LeaderPort, uuid.NewString())
	client := &http.Client{Timeout: 30 * time.Second}
	deadline := time.Now().Add(callback.Timeout)

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return fmt.Errorf("build poll request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("poll leader callback listener: %w", err)
		}

		if resp.StatusCode == http.StatusAccepted {
			resp.Body.Close()
			continue
		}

		var result callback.Result
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("decode leader callback result: %w", decodeErr)
		}
		if result.IsError() {
			return fmt.Errorf("authorization failed: %s: %s", result.Error, result.ErrorDescription)
		}
		break
	}

	return p.waitForTokens(ctx)
}

// waitForTokens polls the config store for the leader to finish exchanging
// the code and writing tokens.
func (p *Provider) waitForTokens(ctx context.Context) error {
	deadline := time.Now().Add(followerWaitTimeout)
	for time.Now().Before(deadline) {
		if _, ok, err := p.store.ReadTokens(p.serverHash); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for leader to finish authenticating %s", p.serverURL)
}

// ensureClient returns the stored client registration for issuer,
// registering a new one via RFC 7591 dynamic client registration if none
// exists yet or the stored registration belongs to a different issuer.
func (p *Provider) ensureClient(ctx context.Context, issuer string, metadata *oauth.Metadata, scope string) (store.ClientInfo, error) {
	existing, ok, err := p.store.ReadClientInfo(p.serverHash)
	if err != nil {
		return store.ClientInfo{}, fmt.Errorf("read client info: %w", err)
	}
	if ok && existing.IssuerURL == issuer {
		return existing, nil
	}

	if p.opts.StaticClientInfo != "" {
		info, err := p.staticClientInfo(issuer)
		if err != nil {
			return store.ClientInfo{}, fmt.Errorf("parse static-oauth-client-info: %w", err)
		}
		info.ServerURL = p.serverURL
		if err := p.store.WriteClientInfo(p.serverHash, info); err != nil {
			return store.ClientInfo{}, fmt.Errorf("persist static client info: %w", err)
		}
		return info, nil
	}

	if metadata.RegistrationEndpoint == "" {
		return store.ClientInfo{}, fmt.Errorf("authorization server %s does not support dynamic client registration", issuer)
	}

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/oauth/callback", p.callbackPort())
	request := oauth.ClientMetadata{
		ClientName:              p.clientName(),
		ClientURI:               p.opts.ClientURI,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		Scope:                   scope,
	}
	if p.opts.StaticClientMetadata != "" {
		if err := p.applyStaticClientMetadata(&request); err != nil {
			return store.ClientInfo{}, fmt.Errorf("parse static-oauth-client-metadata: %w", err)
		}
	}

	registered, err := p.oauth.RegisterClient(ctx, metadata.RegistrationEndpoint, request)
	if err != nil {
		return store.ClientInfo{}, err
	}

	// The callback listener's actually-bound port always wins over whatever
	// redirect_uri the server recorded: port scanning may have moved to a
	// different port between registration and the listener starting, and
	// the server only needs the registered URI to validate the callback's
	// origin, not to dictate where we bind.
	if len(registered.RedirectURIs) > 0 && registered.RedirectURIs[0] != redirectURI {
		logging.Warn("AuthProvider", "registered redirect_uri %s differs from the callback listener's intended bind address %s", registered.RedirectURIs[0], redirectURI)
	}

	info := store.ClientInfo{
		ClientID:     registered.ClientID,
		ClientSecret: registered.ClientSecret,
		RedirectURIs: registered.RedirectURIs,
		IssuerURL:    issuer,
		RegisteredAt: time.Now(),
		ServerURL:    p.serverURL,
	}
	if err := p.store.WriteClientInfo(p.serverHash, info); err != nil {
		return store.ClientInfo{}, fmt.Errorf("persist client info: %w", err)
	}

	// The registration response's own scope-shaped fields take priority over
	// what we asked for: a server is free to grant less (or record its grant
	// under default_scope/scopes/default_scopes instead of echoing scope).
	// Persisted separately from client_info so it survives a later
	// re-registration that rewrites client_info alone.
	granted := ResolveScope(nil, ClientMetadataScopes{
		Scope:         registered.Scope,
		DefaultScope:  registered.DefaultScope,
		Scopes:        registered.Scopes,
		DefaultScopes: registered.DefaultScopes,
	})
	if err := p.store.WriteScopes(p.serverHash, store.Scopes{Scope: granted}); err != nil {
		return store.ClientInfo{}, fmt.Errorf("persist granted scope: %w", err)
	}

	return info, nil
}

// GetAccessToken returns a usable access token, refreshing it first if it's
// expired or close to it. Returns ErrAuthRequired if no token is stored yet,
// or if the stored token is expired with no refresh token to fall back on.
func (p *Provider) GetAccessToken(ctx context.Context) (string, error) {
	tokens, ok, err := p.store.ReadTokens(p.serverHash)
	if err != nil {
		return "", fmt.Errorf("read tokens: %w", err)
	}
	if !ok {
		return "", ErrAuthRequired
	}
	if !tokenExpired(tokens) {
		return tokens.AccessToken, nil
	}
	if tokens.RefreshToken == "" {
		return "", ErrAuthRequired
	}

	clientInfo, ok, err := p.store.ReadClientInfo(p.serverHash)
	if err != nil {
		return "", fmt.Errorf("read client info: %w", err)
	}
	if !ok {
		return "", ErrAuthRequired
	}

	metadata, err := p.oauth.DiscoverMetadata(ctx, clientInfo.IssuerURL)
	if err != nil {
		return "", fmt.Errorf("discover metadata for refresh: %w", err)
	}

	refreshed, err := p.oauth.RefreshToken(ctx, metadata.TokenEndpoint, tokens.RefreshToken, clientInfo.ClientID)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}

	scopes, _, _ := p.store.ReadScopes(p.serverHash)
	if err := p.saveToken(refreshed, scopes.Scope); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// saveToken persists a token response; pkg/oauth has already turned
// expires_in into the absolute ExpiresAt kept here. scope is written to the
// scopes record only if none exists, so a grant ensureClient persisted from
// the registration response is not overwritten.
func (p *Provider) saveToken(token *oauth.Token, scope string) error {
	if err := p.store.WriteTokens(p.serverHash, store.Tokens{
		AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, TokenType: token.TokenType,
		IDToken: token.IDToken, Expiry: token.ExpiresAt, IssuedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	if _, ok, err := p.store.ReadScopes(p.serverHash); err == nil && !ok && scope != "" {
		return p.store.WriteScopes(p.serverHash, store.Scopes{Scope: scope})
	}
	return nil
}

// InvalidateCredentials inspects a failure from the remote server and clears
// whichever tier of stored state it indicates is no longer trustworthy,
// returning the RepairAction the caller should take before retrying:
//
//   - invalid_client: the registered client itself was rejected (e.g. the
//     authorization server rotated its client registry). Client info,
//     tokens, and scopes are all cleared; retry registration.
//   - invalid_grant: a refresh attempt was rejected. Only tokens and scopes
//     are cleared; escalate to a full authorization-code flow.
//   - anything else: treated as an expired/revoked token, same as
//     invalid_grant.
func (p *Provider) InvalidateCredentials(err error) RepairAction {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid_client"):
		if e := p.store.InvalidateClient(p.serverHash); e != nil {
			logging.Warn("AuthProvider", "invalidate client for %s: %v", p.serverHash, e)
		}
		return RepairRetryRegistration
	default:
		if e := p.store.InvalidateTokens(p.serverHash); e != nil {
			logging.Warn("AuthProvider", "invalidate tokens for %s: %v", p.serverHash, e)
		}
		return RepairReauthenticate
	}
}

// RequireScope compares requiredScope against the stored scope and, if the
// stored grant is narrower, clears client registration so the next
// Authenticate call re-registers (and re-authenticates) with the wider
// scope rather than silently trying to use a token that doesn't cover it.
func (p *Provider) RequireScope(requiredScope string) RepairAction {
	required := strings.Fields(requiredScope)
	if len(required) == 0 {
		return RepairNone
	}

	stored, ok, err := p.store.ReadScopes(p.serverHash)
	if err != nil || !ok {
		return RepairNone
	}

	have := make(map[string]bool)
	for _, s := range strings.Fields(stored.Scope) {
		have[s] = true
	}

	for _, want := range required {
		if !have[want] {
			if e := p.store.InvalidateClient(p.serverHash); e != nil {
				logging.Warn("AuthProvider", "invalidate client for %s: %v", p.serverHash, e)
			}
			return RepairReregister
		}
	}
	return RepairNone
}

// TokenProvider adapts the Provider to transport.TokenProvider so the
// Transport Selector can inject the current access token into every
// outbound request without knowing anything about OAuth. A token-retrieval
// failure (including ErrAuthRequired) yields no header, not an error: the
// resulting 401 is what the selector/bridge runtime use to detect that auth
// is needed.
func (p *Provider) TokenProvider() transport.TokenProvider {
	return transport.TokenProviderFunc(func(ctx context.Context) string {
		token, err := p.GetAccessToken(ctx)
		if err != nil {
			return ""
		}
		return token
	})
}

func (p *Provider) callbackPort() int {
	if p.opts.CallbackPort != 0 {
		return p.opts.CallbackPort
	}
	return defaultCallbackPort
}

func (p *Provider) clientName() string {
	if p.opts.ClientName != "" {
		return p.opts.ClientName
	}
	return "mcp-remote-bridge"
}

// staticClientInfo parses --static-oauth-client-info's raw JSON into a
// store.ClientInfo for issuer, bypassing dynamic client registration
// entirely for authorization servers that don't support RFC 7591.
func (p *Provider) staticClientInfo(issuer string) (store.ClientInfo, error) {
	var raw struct {
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.Unmarshal([]byte(p.opts.StaticClientInfo), &raw); err != nil {
		return store.ClientInfo{}, err
	}
	if raw.ClientID == "" {
		return store.ClientInfo{}, fmt.Errorf("static client info missing client_id")
	}
	return store.ClientInfo{
		ClientID:     raw.ClientID,
		ClientSecret: raw.ClientSecret,
		RedirectURIs: raw.RedirectURIs,
		IssuerURL:    issuer,
		RegisteredAt: time.Now(),
	}, nil
}

// applyStaticClientMetadata deep-merges --static-oauth-client-metadata's raw
// JSON over the default registration request: any field the operator set
// overrides the default, anything absent (zero-valued after unmarshal into
// a copy) falls through unchanged.
func (p *Provider) applyStaticClientMetadata(request *oauth.ClientMetadata) error {
	overrides := *request
	if err := json.Unmarshal([]byte(p.opts.StaticClientMetadata), &overrides); err != nil {
		return err
	}
	*request = overrides
	return nil
}

// withResourceParam appends RFC 8707's resource indicator to an
// authorization URL already built by BuildAuthorizationURL.
func withResourceParam(authURL, resource string) (string, error) {
	u, err := neturl.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("resource", resource)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func tokenExpired(t store.Tokens) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(oauth.DefaultExpiryMargin).After(t.Expiry)
}
