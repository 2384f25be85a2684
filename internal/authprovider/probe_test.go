package authprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-remote-bridge/internal/store"
)

func TestProbe_NoAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newProviderTestStore(t)
	p := New(st, srv.URL, Options{})

	req, err := p.Probe(context.Background())
	require.NoError(t, err)
	require.False(t, req.Required)
}

func TestProbe_DetectsChallengeAndIssuer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="https://idp.example.com", scope="mcp.read"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := newProviderTestStore(t)
	p := New(st, srv.URL, Options{})

	req, err := p.Probe(context.Background())
	require.NoError(t, err)
	require.True(t, req.Required)
	require.Equal(t, "https://idp.example.com", req.Issuer)
	require.Equal(t, "mcp.read", req.Challenge.Scope)
}

func TestProbe_FallsBackToProtectedResourceMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/oauth-protected-resource" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"resource":"` + r.Host + `","authorization_servers":["https://idp.example.com"]}`))
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := newProviderTestStore(t)
	p := New(st, srv.URL, Options{})

	req, err := p.Probe(context.Background())
	require.NoError(t, err)
	require.True(t, req.Required)
	require.Equal(t, "https://idp.example.com", req.Issuer)
}

func newProviderTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(store.EnvConfigDir, dir)
	s, err := store.New(0)
	require.NoError(t, err)
	return s
}
