package cli

import (
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-remote-bridge/internal/bridge"
)

// Exit codes, per spec: 0 normal shutdown, 1 fatal configuration error,
// 2 authorization failed permanently, 3 remote transport unreachable after
// retries.
const (
	ExitSuccess              = 0
	ExitConfigError          = 1
	ExitAuthFailed           = 2
	ExitTransportUnreachable = 3
)

// ConfigError indicates a problem found before any network I/O: a bad flag,
// a missing server URL, a disallowed bare http:// URL.
type ConfigError struct {
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// ExitCode maps an error returned from ParseArgs or bridge.Runtime.Run to
// the process exit code spec.md §6 defines for it, following the teacher's
// cmd/root.go errors.As dispatch pattern.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return ExitConfigError
	}

	var authFailed *bridge.AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitAuthFailed
	}

	var transportErr *bridge.TransportUnreachableError
	if errors.As(err, &transportErr) {
		return ExitTransportUnreachable
	}

	return ExitConfigError
}
