package analysis

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeKey reduces a URL to its cache key form: lowercased scheme and
// host, default ports removed, query and fragment stripped, trailing slash
// stripped. Two spellings of the same page normalize to the same key.
func NormalizeKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// ValidateTarget checks that a submitted target is a well-formed absolute
// http(s) URL and returns its canonical spelling. A bare host like
// "example.com" is accepted and promoted to https.
func ValidateTarget(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Field: field, Reason: "empty url"}
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("unparseable url: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &ValidationError{Field: field, Reason: "missing host"}
	}
	if !strings.Contains(u.Host, ".") && !strings.Contains(u.Host, "localhost") {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("implausible host %q", u.Host)}
	}
	return u.String(), nil
}
