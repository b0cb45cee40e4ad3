// Package origin enforces per-origin politeness limits: a FIFO admission
// queue capping simultaneous in-flight tasks per scheme+host+port, plus an
// optional request-rate pacer.
package origin

import (
	"fmt"
	"net/url"
	"strings"
)

// Key derives the scheme+host+port identity used to group politeness limits.
// Default ports are made explicit so "https://x.test" and "https://x.test:443"
// share one queue.
func Key(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if scheme == "" || host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	if port == "" {
		return scheme + "://" + host, nil
	}
	return scheme + "://" + host + ":" + port, nil
}
