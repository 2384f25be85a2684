package authprovider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-remote-bridge/pkg/oauth"
)

// probeTimeout bounds each individual probe attempt. A server that requires
// auth answers with 401 quickly; a server that's simply unreachable should
// not hold up the others.
const probeTimeout = 3 * time.Second

// AuthRequirement describes what Probe discovered about a remote server's
// authentication needs.
type AuthRequirement struct {
	Required  bool
	Challenge *oauth.AuthChallenge
	Issuer    string
}

// Probe determines whether serverURL requires OAuth and, if so, where its
// authorization server lives. It sends three request shapes in turn to the
// server URL itself -- a POST accepting JSON (as a streamable-HTTP client
// would), a GET accepting text/event-stream (as an SSE client would), and a
// bare HEAD -- since a 401 on one transport doesn't
// guarantee the others even answer the same way, and some servers only
// enforce auth on the transport the client actually picks.
func (p *Provider) Probe(ctx context.Context) (*AuthRequirement, error) {
	client := &http.Client{Timeout: probeTimeout}

	attempts := []func(context.Context) (*http.Response, error){
		func(ctx context.Context) (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			return client.Do(req)
		},
		func(ctx context.Context) (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "text/event-stream")
			return client.Do(req)
		},
		func(ctx context.Context) (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.serverURL, nil)
			if err != nil {
				return nil, err
			}
			return client.Do(req)
		},
	}

	var lastErr error
	for _, attempt := range attempts {
		attemptCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		resp, err := attempt(attemptCtx)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			continue
		}

		challenge := oauth.ParseWWWAuthenticateFromResponse(resp)
		issuer, err := p.resolveIssuer(ctx, challenge)
		if err != nil {
			return nil, err
		}
		return &AuthRequirement{Required: true, Challenge: challenge, Issuer: issuer}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("probe %s: %w", p.serverURL, lastErr)
	}
	return &AuthRequirement{Required: false}, nil
}

// resolveIssuer finds the authorization server behind a 401. It prefers the
// WWW-Authenticate challenge's own issuer/realm; failing that it falls back
// to RFC 9728 protected resource metadata served by the MCP server itself;
// failing that it assumes the server's own origin is the authorization
// server.
func (p *Provider) resolveIssuer(ctx context.Context, challenge *oauth.AuthChallenge) (string, error) {
	if issuer := challenge.GetIssuer(); issuer != "" {
		return issuer, nil
	}

	base := oauth.NormalizeServerURL(p.serverURL)
	if meta, err := p.oauth.DiscoverProtectedResourceMetadata(ctx, base); err == nil && len(meta.AuthorizationServers) > 0 {
		return meta.AuthorizationServers[0], nil
	}

	return base, nil
}
