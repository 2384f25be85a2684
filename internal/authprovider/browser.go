package authprovider

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/giantswarm/mcp-remote-bridge/internal/sanitize"
)

// browserLauncher starts the OS-specific open command. Overridable in
// tests so OpenBrowser's validation logic can be exercised without
// actually spawning a browser.
var browserLauncher = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// OpenBrowser opens the specified URL (an authorization URL built by
// pkg/oauth) in the default web browser. It supports Linux, macOS, and
// Windows.
//
// Security: urlStr is run through internal/sanitize before it ever reaches
// exec.Command, so a malformed or hostile authorization endpoint can't smuggle
// shell metacharacters or a non-http(s) scheme (e.g. file://, javascript:)
// into the OS "open" command.
//
// Returns an error if:
//   - The URL fails sanitize.ServerURL validation
//   - The browser could not be opened
//   - The platform is not supported
func OpenBrowser(urlStr string) error {
	normalized, err := sanitize.ServerURL(urlStr)
	if err != nil {
		return fmt.Errorf("refusing to open unsanitized URL: %w", err)
	}
	urlStr = normalized

	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", urlStr)
	case "darwin":
		cmd = exec.Command("open", urlStr)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", urlStr)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// Start the command but don't wait for it to complete
	// The browser will open in the background
	if err := browserLauncher(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
