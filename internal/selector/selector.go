// Package selector implements the transport-and-auth state machine that
// decides which wire transport (streamable HTTP or SSE) to speak to a given
// remote MCP server, retries transient connection failures with backoff,
// and locks in whichever transport first proves healthy so a bridge session
// never flaps between the two.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/giantswarm/mcp-remote-bridge/internal/transport"
	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

// Strategy controls which transports are tried, and in what order.
type Strategy string

const (
	// HTTPOnly never falls back to SSE.
	HTTPOnly Strategy = "http-only"
	// SSEOnly never tries streamable HTTP.
	SSEOnly Strategy = "sse-only"
	// HTTPFirst tries streamable HTTP, falling back to SSE on failure. Default.
	HTTPFirst Strategy = "http-first"
	// SSEFirst tries SSE, falling back to streamable HTTP on failure.
	SSEFirst Strategy = "sse-first"
)

// ParseStrategy maps a --transport flag value to a Strategy, silently
// falling back to HTTPFirst for anything unrecognized rather than failing
// argument parsing over a transport preference.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case HTTPOnly, SSEOnly, HTTPFirst, SSEFirst:
		return Strategy(s)
	default:
		return HTTPFirst
	}
}

type kind int

const (
	kindHTTP kind = iota
	kindSSE
)

func (k kind) String() string {
	if k == kindHTTP {
		return "streamable-http"
	}
	return "sse"
}

// candidateOrder returns the transports to try, in order, for a strategy.
// A locked-in kind (once this selector has connected successfully before)
// is the only candidate regardless of strategy, since re-probing a transport
// known to work is wasted latency.
func (s Strategy) candidateOrder(lockedIn *kind) []kind {
	if lockedIn != nil {
		return []kind{*lockedIn}
	}
	switch s {
	case HTTPOnly:
		return []kind{kindHTTP}
	case SSEOnly:
		return []kind{kindSSE}
	case SSEFirst:
		return []kind{kindSSE, kindHTTP}
	default:
		return []kind{kindHTTP, kindSSE}
	}
}

// maxAttemptsPerCandidate bounds the backoff retry loop for one transport
// kind before falling through to the next candidate (or giving up, for the
// last candidate).
const maxAttemptsPerCandidate = 3

// AuthRequiredError is returned from Connect when at least one candidate
// transport reported that the server wants authentication, even if another
// candidate failed for a different reason. It is not retried internally:
// the bridge runtime is expected to run the OAuth flow and call Connect
// again with a TokenProvider that now has something to offer.
type AuthRequiredError struct {
	URL       string
	Underlying *transport.AuthRequiredError
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authentication required for %s", e.URL)
}

func (e *AuthRequiredError) Unwrap() error { return e.Underlying }

// Selector picks and holds the active remote transport for one server URL.
type Selector struct {
	URL      string
	Strategy Strategy
	Tokens   transport.TokenProvider
	// Headers are static operator-supplied headers (from --header) sent
	// alongside the Authorization header on every connection attempt.
	Headers map[string]string

	// newClientFunc builds the MCPClient for a given transport kind.
	// Overridable in tests; defaults to the real mcp-go-backed clients.
	newClientFunc func(kind) transport.MCPClient

	mu       sync.Mutex
	lockedIn *kind
}

// New builds a Selector for serverURL. A nil TokenProvider is treated as
// "no token available yet" (the pre-auth probe).
func New(serverURL string, strategy Strategy, tokens transport.TokenProvider) *Selector {
	if tokens == nil {
		tokens = transport.NoToken
	}
	s := &Selector{URL: serverURL, Strategy: strategy, Tokens: tokens}
	s.newClientFunc = s.defaultClient
	return s
}

// Connect returns a live, initialized MCPClient for the selector's server.
// It tries each candidate transport (per Strategy, or just the locked-in
// one if a prior call succeeded), retrying transient failures with
// exponential backoff up to maxAttemptsPerCandidate before moving to the
// next candidate. If any candidate reports the server wants
// authentication, it returns *AuthRequiredError once all candidates have
// been tried, without exhausting that candidate's backoff budget, since
// waiting out a timer will not make a 401 go away.
func (s *Selector) Connect(ctx context.Context) (transport.MCPClient, error) {
	s.mu.Lock()
	locked := s.lockedIn
	s.mu.Unlock()

	candidates := s.Strategy.candidateOrder(locked)

	var lastAuthErr *transport.AuthRequiredError
	var lastErr error

	for _, k := range candidates {
		client, err := s.connectWithBackoff(ctx, k)
		if err == nil {
			s.mu.Lock()
			if s.lockedIn == nil {
				kk := k
				s.lockedIn = &kk
				logging.Info("Selector", "locked in %s transport for %s", k, s.URL)
			}
			s.mu.Unlock()
			return client, nil
		}

		var authErr *transport.AuthRequiredError
		if errors.As(err, &authErr) {
			lastAuthErr = authErr
			continue
		}
		lastErr = err
	}

	if lastAuthErr != nil {
		return nil, &AuthRequiredError{URL: s.URL, Underlying: lastAuthErr}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("connect to %s: %w", s.URL, lastErr)
	}
	return nil, fmt.Errorf("connect to %s: no transport candidates", s.URL)
}

// connectWithBackoff tries one transport kind up to maxAttemptsPerCandidate
// times, backing off exponentially between attempts. An AuthRequiredError
// short-circuits the retry loop immediately since it is not a transient
// condition backoff can wait out.
func (s *Selector) connectWithBackoff(ctx context.Context, k kind) (transport.MCPClient, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxAttemptsPerCandidate; attempt++ {
		if attempt > 0 {
			wait := b.NextBackOff()
			logging.Debug("Selector", "retrying %s for %s in %s (attempt %d/%d)", k, s.URL, wait, attempt+1, maxAttemptsPerCandidate)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		client := s.newClient(k)
		if err := client.Initialize(ctx); err != nil {
			var authErr *transport.AuthRequiredError
			if errors.As(err, &authErr) {
				return nil, err
			}
			lastErr = err
			logging.Debug("Selector", "%s attempt %d/%d for %s failed: %v", k, attempt+1, maxAttemptsPerCandidate, s.URL, err)
			continue
		}
		return client, nil
	}
	return nil, lastErr
}

func (s *Selector) newClient(k kind) transport.MCPClient {
	return s.newClientFunc(k)
}

func (s *Selector) defaultClient(k kind) transport.MCPClient {
	if k == kindHTTP {
		c := transport.NewStreamableHTTPClient(s.URL, s.Tokens)
		c.SetHeaders(s.Headers)
		return c
	}
	c := transport.NewSSEClient(s.URL, s.Tokens)
	c.SetHeaders(s.Headers)
	return c
}

// Reset clears the locked-in transport, used after a connection that was
// healthy goes bad (e.g. the remote process restarted with a different
// transport configuration) and deserves a fresh probe instead of retrying
// the same kind forever.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedIn = nil
}
