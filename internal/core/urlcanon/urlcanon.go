// Package urlcanon normalizes URLs and derives deterministic index names
// from source URLs (spec §3, §4.1).
package urlcanon

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// trackingParamNames are stripped from any query string, alongside any key
// with a "utm_" prefix.
var trackingParamNames = map[string]bool{
	"icid":   true,
	"gclid":  true,
	"fbclid": true,
	"ref":    true,
	"source": true,
}

var assetExtRe = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|svg|pdf|zip|tar|gz|tgz|mp4|mp3|wav|webm|ico)$`)

// IsAssetURL reports whether u's path ends in a known non-HTML asset extension.
func IsAssetURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return assetExtRe.MatchString(parsed.Path)
}

// Canonicalize normalizes an absolute URL per spec §4.1: drop the fragment,
// strip utm_*/tracking query params, collapse /index.html to /, and remove a
// trailing slash. Canonicalize is idempotent: Canonicalize(Canonicalize(u)) ==
// Canonicalize(u).
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || trackingParamNames[key] {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	if strings.HasSuffix(u.Path, "/index.html") {
		u.Path = strings.TrimSuffix(u.Path, "index.html")
	}
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DeriveIndexName computes the deterministic per-source index name (spec §3):
// the lowercased host with a leading "www." stripped, non-alphanumerics
// collapsed to "-", trimmed; if the path's final segment has a file
// extension, its sanitized stem is appended.
func DeriveIndexName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	name := slugify(host)

	base := path.Base(u.Path)
	if ext := path.Ext(base); ext != "" && base != ext {
		stem := strings.TrimSuffix(base, ext)
		if s := slugify(stem); s != "" {
			name = name + "-" + s
		}
	}
	return name, nil
}

// SameHost reports whether a and b share a host, ignoring a leading "www.".
func SameHost(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	ha := strings.TrimPrefix(strings.ToLower(ua.Hostname()), "www.")
	hb := strings.TrimPrefix(strings.ToLower(ub.Hostname()), "www.")
	return ha != "" && ha == hb
}
