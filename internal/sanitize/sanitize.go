// Package sanitize validates and normalizes remote server URLs supplied on
// the command line before they are used as storage keys, HTTP targets, or
// logged.
package sanitize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hostPattern = regexp.MustCompile(`^[A-Za-z0-9.\-]+$`)

// ServerURL validates a remote server URL and returns its normalized form.
//
// Rejected:
//   - any scheme other than http or https
//   - embedded userinfo (user:pass@host), which net/url parses out of the
//     host entirely, so checking the host alone can't catch it
//   - a host containing characters outside [A-Za-z0-9.\-] (after stripping
//     a port suffix), which rules out most header/CRLF injection attempts
//
// net/url's own escaping only takes a raw space to "%20"; spec scenario 6
// requires that result to be re-encoded one further step, to "%2520", so
// the sanitized form never contains a literal "%20" an unsanitized caller
// could be tricked into treating as a path separator. Re-escaping "%20" a
// second time is also what makes ServerURL a fixed point: the escaped form
// of an already-"%2520" path is itself, so applying ServerURL twice yields
// the same string as applying it once.
func ServerURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: only http and https are allowed", u.Scheme)
	}

	if u.User != nil {
		return "", fmt.Errorf("server URL must not embed userinfo")
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("server URL has no host")
	}
	if !hostPattern.MatchString(u.Hostname()) {
		return "", fmt.Errorf("server URL host %q contains disallowed characters", u.Hostname())
	}

	normalized := u.String()
	normalized = strings.ReplaceAll(normalized, "%20", "%2520")
	return normalized, nil
}
