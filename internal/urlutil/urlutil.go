package urlutil

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var errNotHTTP = errors.New("not an absolute http(s) url")

// Query parameters that only track where a click came from.
var trackingParams = map[string]struct{}{
	"gclid":  {},
	"fbclid": {},
	"ref":    {},
	"source": {},
	"from":   {},
	"tk":     {},
	"advn":   {},
	"adid":   {},
}

// Normalize returns a canonical form of an absolute http(s) URL: lowercase
// host without "www.", cleaned path, no fragment, tracking parameters
// dropped and the rest sorted.
func Normalize(raw string) (string, error) {
	u, err := parseHTTP(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.Host = normalizeHost(u.Host)
	u.Path = normalizePath(u.Path)
	u.RawPath = ""
	u.RawQuery = normalizeQuery(u.RawQuery)
	return u.String(), nil
}

// IsHTTP reports whether raw is an absolute http or https URL.
func IsHTTP(raw string) bool {
	_, err := parseHTTP(raw)
	return err == nil
}

// Resolve resolves ref against base, as a browser would for an href.
func Resolve(base, ref string) (string, error) {
	b, err := parseHTTP(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// QueryParam returns the first value of key in raw's query, or "".
func QueryParam(raw, key string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

func parseHTTP(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, errNotHTTP
	}
	return u, nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	clean := path.Clean(p)
	if clean == "." {
		return "/"
	}
	return clean
}

func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for key := range values {
		lk := strings.ToLower(key)
		if _, ok := trackingParams[lk]; ok || strings.HasPrefix(lk, "utm_") {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	normalized := url.Values{}
	for _, k := range keys {
		normalized[k] = values[k]
	}
	return normalized.Encode()
}
