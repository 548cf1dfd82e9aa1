package security

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	remoteURLPattern = regexp.MustCompile(`^(?:https?|ssh)://(?:[a-zA-Z0-9_.-]+@)?[a-zA-Z0-9.-]+(?::[0-9]+)?/[a-zA-Z0-9_.~-]+(?:/[a-zA-Z0-9_.~-]+)+$`)
	scpRepoPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+@[a-zA-Z0-9.-]+:[a-zA-Z0-9_.-]+(?:/[a-zA-Z0-9_.-]+)+$`)
	unitPattern      = regexp.MustCompile(`^[a-zA-Z0-9:_.@-]+$`)
)

// ValidateCloneURL ensures a repository URL is safe to hand to git clone.
// Accepted remotes are https://, http:// and ssh:// URLs, scp-style SSH
// remotes (git@host:owner/repo.git) and absolute paths to local repositories.
func ValidateCloneURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("clone URL cannot be empty")
	}
	if strings.HasPrefix(rawURL, "-") {
		return fmt.Errorf("clone URL cannot start with '-'")
	}
	if strings.Contains(rawURL, "..") {
		return fmt.Errorf("clone URL contains traversal elements")
	}

	if scpRepoPattern.MatchString(rawURL) {
		return nil
	}
	if filepath.IsAbs(rawURL) {
		if strings.ContainsFunc(rawURL, isControl) {
			return fmt.Errorf("local repository path contains control characters")
		}
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "https", "http":
		if u.User != nil {
			return fmt.Errorf("credentials must not be embedded in the clone URL")
		}
	case "ssh":
		if _, hasPassword := u.User.Password(); hasPassword {
			return fmt.Errorf("credentials must not be embedded in the clone URL")
		}
	default:
		return fmt.Errorf("unsupported clone URL scheme %q (use https, http, ssh, scp-style or an absolute path)", u.Scheme)
	}
	if !remoteURLPattern.MatchString(rawURL) {
		return fmt.Errorf("URL contains invalid characters or format")
	}

	return nil
}

// ValidateBranchName rejects names git would refuse as a branch
// (git check-ref-format --branch) and names that could be read as an option.
// Anything else, including non-ASCII names, is passed to git verbatim.
func ValidateBranchName(branch string) error {
	switch {
	case branch == "":
		return fmt.Errorf("branch name cannot be empty")
	case strings.HasPrefix(branch, "-"):
		return fmt.Errorf("branch name cannot start with '-'")
	case branch == "@":
		return fmt.Errorf("branch name cannot be '@'")
	case strings.Contains(branch, ".."):
		return fmt.Errorf("branch name cannot contain '..'")
	case strings.Contains(branch, "@{"):
		return fmt.Errorf("branch name cannot contain '@{'")
	case strings.ContainsFunc(branch, isControl):
		return fmt.Errorf("branch name cannot contain control characters")
	case strings.ContainsAny(branch, " ~^:?*[\\"):
		return fmt.Errorf("branch name cannot contain space or any of ~^:?*[\\")
	case strings.HasSuffix(branch, "."):
		return fmt.Errorf("branch name cannot end with '.'")
	}

	for _, part := range strings.Split(branch, "/") {
		if part == "" {
			return fmt.Errorf("branch name cannot have empty path components")
		}
		if strings.HasPrefix(part, ".") {
			return fmt.Errorf("branch name component cannot start with '.'")
		}
		if strings.HasSuffix(part, ".lock") {
			return fmt.Errorf("branch name component cannot end with '.lock'")
		}
	}
	return nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// ValidateUnitName ensures a systemd unit name is safe to pass to systemctl.
func ValidateUnitName(name string) error {
	if name == "" {
		return fmt.Errorf("unit name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("unit name cannot start with '-' or '.'")
	}
	if !unitPattern.MatchString(name) {
		return fmt.Errorf("unit name contains invalid characters (only a-z, A-Z, 0-9, :, _, ., @, - allowed)")
	}
	return nil
}

// SanitizePath ensures a path is absolute and doesn't contain traversal attempts.
func SanitizePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}

	// Check for .. before cleaning (filepath.Clean removes them)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path contains traversal elements: %s", path)
	}

	return filepath.Clean(path), nil
}
