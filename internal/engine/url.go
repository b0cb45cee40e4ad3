package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mwhitford/politefetch/internal/origin"
)

// normalizeURL standardizes a URL so equivalent spellings share one fetch
// key. It lowercases the scheme and host, removes default ports, drops
// fragments, and sorts query parameters.
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// fetchIdentity resolves the fetch key and origin key for a raw URL.
func fetchIdentity(rawURL string) (key string, originKey string, err error) {
	key, err = normalizeURL(rawURL)
	if err != nil {
		return "", "", &InvalidTargetError{URL: rawURL, Err: err}
	}
	originKey, err = origin.Key(key)
	if err != nil {
		return "", "", &InvalidTargetError{URL: rawURL, Err: err}
	}
	return key, originKey, nil
}
