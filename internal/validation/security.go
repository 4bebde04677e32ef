// Package validation checks values that arrive from configuration files and
// from the browser before they reach the engine.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode"
)

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}

// ValidateHost rejects listen hosts carrying shell metacharacters.
func ValidateHost(host string) error {
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}
	if strings.ContainsAny(host, " \t\r\n") {
		return fmt.Errorf("host contains whitespace")
	}
	return nil
}

// ValidatePath validates a directory setting such as the lessons root.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	restrictedPaths := []string{"/etc/", "/proc/", "/sys/", "/dev/", "/boot/"}
	cleanPathLower := strings.ToLower(cleanPath) + "/"
	for _, restricted := range restrictedPaths {
		if strings.HasPrefix(cleanPathLower, restricted) {
			return fmt.Errorf("access to restricted path denied: %s", path)
		}
	}

	for _, char := range []string{";", "&", "|", "$", "`", "<", ">"} {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// ValidateOrigin validates a websocket Origin header against the allowed
// origins. Entries match either the full origin or its host.
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// ValidateURL validates a configured origin URL.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	if strings.ContainsAny(rawURL, " \"'<>`\n\r") {
		return fmt.Errorf("URL contains invalid characters")
	}
	return nil
}

// MaxEditorIDLength bounds identifiers received from the browser.
const MaxEditorIDLength = 128

// ValidateEditorID checks an editor identifier received from the browser.
func ValidateEditorID(id string) error {
	if id == "" {
		return fmt.Errorf("editor id is required")
	}
	if len(id) > MaxEditorIDLength {
		return fmt.Errorf("editor id longer than %d bytes", MaxEditorIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("editor id contains invalid character %q", r)
		}
	}
	return nil
}
