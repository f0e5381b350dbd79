package doh

import (
	"fmt"
	"net/url"
	"strings"
)

// defaultPath is appended when a resolver URL omits the query path, matching
// the well-known path used by public DoH servers.
const defaultPath = "/dns-query"

// ExpandURL normalizes a resolver URL shorthand into a fully qualified
// https URL. Accepted forms:
//
//	dns.google                → https://dns.google/dns-query
//	dns.google/custom         → https://dns.google/custom
//	https://dns.google        → https://dns.google/dns-query
//	https://dns.google/dns-query (already canonical)
//
// Any scheme other than https, or input with no usable host, is an error.
func ExpandURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty resolver URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse resolver URL %q: %w", raw, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("resolver URL %q: scheme must be https, got %q", raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("resolver URL %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}

	return u.String(), nil
}
