package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/giantswarm/mcp-remote-bridge/internal/selector"
)

// DefaultHost is used when --host is not given.
const DefaultHost = "localhost"

// Options is the parsed, validated result of a command line invocation.
// It is produced by ParseArgs, a pure function of its argument vector
// (Testable Property 5): the same argv always yields the same Options or
// the same error, independent of environment or process state.
type Options struct {
	ServerURL     string
	CallbackPort  int // 0 means the auth provider's default starting port
	Headers       map[string]string
	Transport     selector.Strategy
	Host          string
	AllowHTTP     bool
	IgnoredTools  []string
	Scopes        []string
	ResetAuthLock bool

	StaticClientMetadata string // raw JSON, parsed downstream by authprovider
	StaticClientInfo     string // raw JSON, parsed downstream by authprovider
	AuthorizeResource    string
}

// ParseArgs parses the bridge's positional+flag grammar:
//
//	<serverUrl> [callbackPort]
//	   [--header "Name: value"]...
//	   [--transport sse-only|http-only|sse-first|http-first]
//	   [--host <hostname>]
//	   [--allow-http]
//	   [--reset-auth-lock]
//	   [--ignore-tool <name>]...
//	   [--static-oauth-client-metadata <json>]
//	   [--static-oauth-client-info <json>]
//	   [--oauth-scopes <space-separated>]
//	   [--authorize-resource <uri>]
//
// Unknown --transport values fall back to http-first silently rather than
// failing the parse; a header with no colon is discarded rather than
// erroring. Unrecognized flags are ignored, and a second positional that is
// not a number is ignored rather than taken as the callback port. A missing
// server URL, an invalid or non-http(s) URL, a disallowed bare http:// URL,
// or a flag missing its value is a *ConfigError.
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{
		Headers:   map[string]string{},
		Transport: selector.HTTPFirst,
		Host:      DefaultHost,
	}

	var positionals []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			positionals = append(positionals, arg)
			continue
		}

		flag := arg
		takeValue := func() (string, error) {
			if i+1 >= len(args) {
				return "", &ConfigError{Reason: fmt.Sprintf("flag %s requires a value", flag)}
			}
			i++
			return args[i], nil
		}

		switch flag {
		case "--header":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			if name, value, ok := splitHeader(v); ok {
				opts.Headers[name] = value
			}
		case "--transport":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.Transport = selector.ParseStrategy(v)
		case "--host":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.Host = v
		case "--allow-http":
			opts.AllowHTTP = true
		case "--reset-auth-lock":
			opts.ResetAuthLock = true
		case "--ignore-tool":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.IgnoredTools = append(opts.IgnoredTools, v)
		case "--static-oauth-client-metadata":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.StaticClientMetadata = v
		case "--static-oauth-client-info":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.StaticClientInfo = v
		case "--oauth-scopes":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.Scopes = strings.Fields(v)
		case "--authorize-resource":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.AuthorizeResource = v
		default:
			// Unrecognized flags are ignored rather than failing the parse;
			// cobra's DisableFlagParsing mode hands us the raw argv as-is,
			// and a forward-compatible flag from a newer client shouldn't
			// break an older bridge.
		}
	}

	if len(positionals) == 0 {
		return nil, &ConfigError{Reason: "server URL is required"}
	}
	opts.ServerURL = positionals[0]

	if len(positionals) > 1 {
		if port, err := strconv.Atoi(positionals[1]); err == nil {
			opts.CallbackPort = port
		}
	}

	if err := validateServerURL(opts.ServerURL, opts.AllowHTTP); err != nil {
		return nil, err
	}

	return opts, nil
}

// splitHeader keeps the literal substring after the first colon, including
// any leading whitespace, exactly as typed. A header with no colon is
// rejected (ok=false) rather than erroring the whole parse.
func splitHeader(raw string) (name, value string, ok bool) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return "", "", false
	}
	return raw[:idx], raw[idx+1:], true
}

func validateServerURL(raw string, allowHTTP bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigError{Reason: "invalid server URL", Cause: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Reason: fmt.Sprintf("unsupported URL scheme %q", u.Scheme)}
	}
	if u.Scheme == "http" && !allowHTTP && !isLoopbackHost(u.Hostname()) {
		return &ConfigError{Reason: "http:// requires --allow-http unless the host is loopback"}
	}
	return nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
