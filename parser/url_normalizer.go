package parser

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParamPrefixes lists the case-insensitive query-parameter name
// prefixes stripped by UrlNormalizer (spec.md §4.2).
var trackingParamPrefixes = []string{
	"utm_",
	"fbclid",
	"gclid",
	"msclkid",
	"ref_",
	"ref",
	"source",
}

// UrlNormalizer derives a canonical URL used as the dedupe key for tracked
// items (spec.md §4.2): strip the fragment, drop tracking query params,
// sort the remaining params by name, and strip a single trailing slash.
type UrlNormalizer struct{}

func NewUrlNormalizer() *UrlNormalizer {
	return &UrlNormalizer{}
}

// Normalize returns the canonical form of rawURL, or an error if rawURL does
// not parse.
func (n *UrlNormalizer) Normalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Fragment = ""
	u.RawQuery = normalizeQuery(u.Query())

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// Host returns the lowercased host of rawURL, stored as TrackedItem.SiteHost.
func (n *UrlNormalizer) Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Hostname()), nil
}

func normalizeQuery(values url.Values) string {
	for key := range values {
		if isTrackingParam(key) {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}

	names := make([]string, 0, len(values))
	for key := range values {
		names = append(names, key)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, key := range names {
		for j, v := range values[key] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range trackingParamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
