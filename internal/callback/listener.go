// Package callback implements the loopback HTTP listener that receives the
// OAuth authorization code redirect and serves it to follower processes
// that are not holding the listener themselves.
package callback

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

// Timeout is the hard ceiling on how long a listener waits for the browser
// redirect before giving up.
const Timeout = 5 * time.Minute

// maxPortScan bounds how many ports above the requested one are tried
// before giving up with a bind error.
const maxPortScan = 20

//go:embed templates/callback_success.html
var successHTML string

//go:embed templates/callback_error.html
var errorHTML string

// Result is the outcome of the OAuth redirect: either an authorization code
// and state, or an OAuth error.
type Result struct {
	Code             string `json:"code,omitempty"`
	State            string `json:"state,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// IsError reports whether the result represents an OAuth error response.
func (r *Result) IsError() bool {
	return r.Error != ""
}

// Listener is a short-lived loopback HTTP server. It serves exactly one
// /oauth/callback redirect, and answers /wait-for-auth long-poll requests
// from follower processes in the meantime.
type Listener struct {
	expectedState string

	listener net.Listener
	server   *http.Server
	port     int

	once     sync.Once
	resultCh chan *Result

	mu     sync.RWMutex
	result *Result
}

// New creates a listener that will reject any callback whose state
// parameter does not match expectedState.
func New(expectedState string) *Listener {
	return &Listener{
		expectedState: expectedState,
		resultCh:      make(chan *Result, 1),
	}
}

// Start binds the listener starting at desiredPort, scanning upward on bind
// conflicts, and begins serving. It returns the redirect_uri to present to
// the authorization server.
func (l *Listener) Start(ctx context.Context, desiredPort int) (string, error) {
	var lastErr error
	for port := desiredPort; port < desiredPort+maxPortScan; port++ {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		l.listener = ln
		l.port = ln.Addr().(*net.TCPAddr).Port
		lastErr = nil
		break
	}
	if l.listener == nil {
		return "", fmt.Errorf("bind callback listener starting at port %d: %w", desiredPort, lastErr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", l.handleCallback)
	mux.HandleFunc("/wait-for-auth", l.handleWaitForAuth)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(l.listener); err != nil && err != http.ErrServerClosed {
			logging.Warn("Callback", "listener on port %d stopped: %v", l.port, err)
		}
	}()

	go func() {
		<-ctx.Done()
		l.Stop()
	}()

	logging.Info("Callback", "listening on port %d", l.port)
	return fmt.Sprintf("http://127.0.0.1:%d/oauth/callback", l.port), nil
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.port
}

// WaitForCallback blocks until the redirect arrives, ctx is cancelled, or
// Timeout elapses, whichever comes first.
func (l *Listener) WaitForCallback(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	select {
	case result := <-l.resultCh:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	l.once.Do(func() {
		handled = true
		l.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "callback already processed", http.StatusConflict)
	}
}

func (l *Listener) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &Result{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	if !result.IsError() && result.State != l.expectedState {
		result = &Result{Error: "state_mismatch", ErrorDescription: "state parameter did not match the expected value"}
		logging.Warn("Callback", "rejected callback with mismatched state")
	}

	var tmpl *template.Template
	var data interface{}
	if result.IsError() {
		tmpl = template.Must(template.New("error").Parse(errorHTML))
		data = map[string]string{"Error": result.Error, "Description": result.ErrorDescription}
	} else {
		tmpl = template.Must(template.New("success").Parse(successHTML))
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	l.mu.Lock()
	l.result = result
	l.mu.Unlock()

	select {
	case l.resultCh <- result:
	default:
	}

	go func() {
		time.Sleep(time.Second)
		l.Stop()
	}()
}

// handleWaitForAuth is polled by follower processes, which cannot share the
// leader's in-memory resultCh. pollId is accepted for log correlation only;
// it does not change the poll semantics. Each request blocks briefly for a
// result and returns 202 if none has arrived yet, so the follower's HTTP
// client re-polls.
func (l *Listener) handleWaitForAuth(w http.ResponseWriter, r *http.Request) {
	pollID := r.URL.Query().Get("pollId")

	deadline := time.Now().Add(25 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.RLock()
		result := l.result
		l.mu.RUnlock()
		if result != nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(result)
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}

	logging.Debug("Callback", "poll %s: no result yet", pollID)
	w.WriteHeader(http.StatusAccepted)
}

// Stop gracefully shuts down the listener. Safe to call multiple times.
func (l *Listener) Stop() {
	if l.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.server.Shutdown(ctx)
	}
	if l.listener != nil {
		_ = l.listener.Close()
	}
}
