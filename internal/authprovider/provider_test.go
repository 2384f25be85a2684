package authprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-remote-bridge/internal/store"
	"github.com/giantswarm/mcp-remote-bridge/pkg/oauth"
)

func TestGetAccessToken_ReturnsStoredTokenWhenFresh(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	require.NoError(t, st.WriteTokens(p.ServerHash(), store.Tokens{
		AccessToken: "fresh-token",
		Expiry:      time.Now().Add(time.Hour),
		IssuedAt:    time.Now(),
	}))

	token, err := p.GetAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token)
}

func TestGetAccessToken_ErrAuthRequiredWhenNoTokens(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	_, err := p.GetAccessToken(context.Background())
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestGetAccessToken_ErrAuthRequiredWhenExpiredNoRefreshToken(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	require.NoError(t, st.WriteTokens(p.ServerHash(), store.Tokens{
		AccessToken: "stale-token",
		Expiry:      time.Now().Add(-time.Hour),
		IssuedAt:    time.Now().Add(-2 * time.Hour),
	}))

	_, err := p.GetAccessToken(context.Background())
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestGetAccessToken_RefreshesExpiredToken(t *testing.T) {
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":         issuer,
			"token_endpoint": issuer + "/token",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.FormValue("grant_type"))
		require.Equal(t, "old-refresh", r.FormValue("refresh_token"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuer = srv.URL

	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	require.NoError(t, st.WriteClientInfo(p.ServerHash(), store.ClientInfo{
		ClientID:  "client-123",
		IssuerURL: srv.URL,
	}))
	require.NoError(t, st.WriteTokens(p.ServerHash(), store.Tokens{
		AccessToken:  "stale-token",
		RefreshToken: "old-refresh",
		Expiry:       time.Now().Add(-time.Hour),
		IssuedAt:     time.Now().Add(-2 * time.Hour),
	}))

	token, err := p.GetAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new-access", token)

	stored, ok, err := st.ReadTokens(p.ServerHash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new-refresh", stored.RefreshToken)
}

func TestInvalidateCredentials_InvalidClientClearsClientInfo(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	require.NoError(t, st.WriteClientInfo(p.ServerHash(), store.ClientInfo{ClientID: "c1"}))
	require.NoError(t, st.WriteTokens(p.ServerHash(), store.Tokens{AccessToken: "t1"}))

	action := p.InvalidateCredentials(errMsg("token request failed: invalid_client"))
	require.Equal(t, RepairRetryRegistration, action)

	_, ok, err := st.ReadClientInfo(p.ServerHash())
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = st.ReadTokens(p.ServerHash())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidateCredentials_InvalidGrantClearsTokensOnly(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	require.NoError(t, st.WriteClientInfo(p.ServerHash(), store.ClientInfo{ClientID: "c1"}))
	require.NoError(t, st.WriteTokens(p.ServerHash(), store.Tokens{AccessToken: "t1"}))

	action := p.InvalidateCredentials(errMsg("token request failed: invalid_grant"))
	require.Equal(t, RepairReauthenticate, action)

	_, ok, err := st.ReadClientInfo(p.ServerHash())
	require.NoError(t, err)
	require.True(t, ok, "client info should survive an invalid_grant invalidation")

	_, ok, err = st.ReadTokens(p.ServerHash())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRequireScope_NarrowerStoredScopeTriggersReregister(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	require.NoError(t, st.WriteClientInfo(p.ServerHash(), store.ClientInfo{ClientID: "c1"}))
	require.NoError(t, st.WriteScopes(p.ServerHash(), store.Scopes{Scope: "mcp.read"}))

	action := p.RequireScope("mcp.read mcp.write")
	require.Equal(t, RepairReregister, action)

	_, ok, err := st.ReadClientInfo(p.ServerHash())
	require.NoError(t, err)
	require.False(t, ok, "client info should be cleared so the next Authenticate re-registers")
}

func TestRequireScope_SufficientScopeNoop(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	require.NoError(t, st.WriteClientInfo(p.ServerHash(), store.ClientInfo{ClientID: "c1"}))
	require.NoError(t, st.WriteScopes(p.ServerHash(), store.Scopes{Scope: "mcp.read mcp.write"}))

	action := p.RequireScope("mcp.read")
	require.Equal(t, RepairNone, action)

	_, ok, err := st.ReadClientInfo(p.ServerHash())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTokenProvider_ReturnsEmptyStringOnAuthRequired(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})

	token := p.TokenProvider().GetAccessToken(context.Background())
	require.Empty(t, token)
}

func TestEnsureClient_StaticClientInfoSkipsRegistration(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{
		StaticClientInfo: `{"client_id":"preregistered-id","client_secret":"s3cr3t","redirect_uris":["http://127.0.0.1:3334/oauth/callback"]}`,
	})

	info, err := p.ensureClient(context.Background(), "https://auth.example.com", &oauthMetadataNoRegistration, "")
	require.NoError(t, err)
	require.Equal(t, "preregistered-id", info.ClientID)
	require.Equal(t, "s3cr3t", info.ClientSecret)

	stored, ok, err := st.ReadClientInfo(p.ServerHash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "preregistered-id", stored.ClientID)
}

func TestEnsureClient_StaticClientInfoMissingClientIDErrors(t *testing.T) {
	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{StaticClientInfo: `{}`})

	_, err := p.ensureClient(context.Background(), "https://auth.example.com", &oauthMetadataNoRegistration, "")
	require.Error(t, err)
}

func TestApplyStaticClientMetadata_OverridesOnlySetFields(t *testing.T) {
	p := New(newProviderTestStore(t), "https://mcp.example.com", Options{
		StaticClientMetadata: `{"client_name":"operator-supplied-name"}`,
	})

	request := oauth.ClientMetadata{
		ClientName:   "default-name",
		ClientURI:    "https://default.example.com",
		RedirectURIs: []string{"http://127.0.0.1:3334/oauth/callback"},
	}
	require.NoError(t, p.applyStaticClientMetadata(&request))

	require.Equal(t, "operator-supplied-name", request.ClientName)
	require.Equal(t, "https://default.example.com", request.ClientURI, "fields absent from the override JSON survive unchanged")
	require.Equal(t, []string{"http://127.0.0.1:3334/oauth/callback"}, request.RedirectURIs)
}

func TestWithResourceParam_AppendsResourceQueryParam(t *testing.T) {
	out, err := withResourceParam("https://auth.example.com/authorize?client_id=abc&state=xyz", "https://mcp.example.com")
	require.NoError(t, err)
	require.Contains(t, out, "resource=https%3A%2F%2Fmcp.example.com")
	require.Contains(t, out, "client_id=abc")
}

func TestEnsureClient_PersistsGrantedScopeFromRegistrationResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"client_id": "dynamic-client",
			"scopes":    []string{"mcp.read", "mcp.write"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})
	metadata := &oauth.Metadata{RegistrationEndpoint: srv.URL + "/register"}

	info, err := p.ensureClient(context.Background(), "https://auth.example.com", metadata, "")
	require.NoError(t, err)
	require.Equal(t, "dynamic-client", info.ClientID)
	require.Equal(t, "https://mcp.example.com", info.ServerURL)

	scopes, ok, err := st.ReadScopes(p.ServerHash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "mcp.read mcp.write", scopes.Scope)
}

func TestEnsureClient_DefaultsScopeWhenResponseHasNone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"client_id": "dynamic-client"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := newProviderTestStore(t)
	p := New(st, "https://mcp.example.com", Options{})
	metadata := &oauth.Metadata{RegistrationEndpoint: srv.URL + "/register"}

	_, err := p.ensureClient(context.Background(), "https://auth.example.com", metadata, "")
	require.NoError(t, err)

	scopes, ok, err := st.ReadScopes(p.ServerHash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "openid email profile", scopes.Scope)
}

var oauthMetadataNoRegistration = oauth.Metadata{}

type errMsg string

func (e errMsg) Error() string { return string(e) }
