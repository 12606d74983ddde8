// Package privacy scrubs user-identifying details from messages before they
// leave the host as telemetry.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var (
	// URL pattern for finding URLs in text
	urlPattern = regexp.MustCompile(`\b(?:https?|file)://\S+`)

	// home directories in absolute paths, e.g. /home/alice/clips/a.wav
	homePattern = regexp.MustCompile(`(/home|/Users)/[^/\s]+`)
)

// ScrubMessage anonymizes URLs and replaces user home directories in message
func ScrubMessage(message string) string {
	message = urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	if home, err := os.UserHomeDir(); err == nil && len(home) > 1 {
		message = strings.ReplaceAll(message, home, "~")
	}
	return homePattern.ReplaceAllString(message, "~")
}

// AnonymizeURL reduces a URL to a stable hash of its scheme, host category
// and port. Credentials, host names and paths are dropped.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{parsed.Scheme, categorizeHost(parsed.Hostname())}
	if port := parsed.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		parts = append(parts, fmt.Sprintf("segments-%d", strings.Count(strings.Trim(parsed.Path, "/"), "/")+1))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

// categorizeHost keeps the kind of host and drops its identity
func categorizeHost(host string) string {
	if host == "" {
		return "no-host"
	}
	if host == "localhost" {
		return "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return "localhost"
		case ip.IsPrivate(), ip.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	if i := strings.LastIndexByte(host, '.'); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}
