// Package source classifies saved URLs and reduces them to a canonical form
// used for per-user deduplication.
package source

import (
	"errors"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
)

var ErrInvalidURL = errors.New("invalid url")

// Classify maps a URL to the platform it belongs to. Unparseable input is web.
func Classify(rawURL string) types.ItemSource {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return types.SourceWeb
	}
	return classifyHost(normalizeHost(u.Hostname()))
}

func classifyHost(host string) types.ItemSource {
	switch {
	case hostIs(host, "x.com", "twitter.com", "mobile.twitter.com"):
		return types.SourceTwitter
	case host == "pin.it" || hasLabel(host, "pinterest"):
		return types.SourcePinterest
	case hostIs(host, "youtube.com", "youtu.be", "m.youtube.com", "music.youtube.com"):
		return types.SourceYouTube
	case hostIs(host, "tiktok.com", "vm.tiktok.com"):
		return types.SourceTikTok
	case hostIs(host, "instagram.com", "instagr.am"):
		return types.SourceInstagram
	case hostIs(host, "reddit.com", "old.reddit.com", "redd.it"):
		return types.SourceReddit
	}
	return types.SourceWeb
}

// hostIs reports whether host is one of names or a subdomain of one.
func hostIs(host string, names ...string) bool {
	for _, n := range names {
		if host == n || strings.HasSuffix(host, "."+n) {
			return true
		}
	}
	return false
}

// hasLabel matches pinterest.com, pinterest.co.uk, br.pinterest.com, ...
func hasLabel(host, label string) bool {
	for _, part := range strings.Split(host, ".") {
		if part == label {
			return true
		}
	}
	return false
}

func normalizeHost(h string) string {
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	return strings.TrimPrefix(h, "www.")
}

var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"igshid":  true,
	"igsh":    true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"ref_src": true,
	"ref_url": true,
	"si":      true,
	"feature": true,
}

// twitterOnly are share-sheet params that only mean tracking on x.com.
var twitterOnly = map[string]bool{"s": true, "t": true}

// Canonicalize returns the dedup key form of rawURL.
func Canonicalize(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidURL
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return "", ErrInvalidURL
	}
	src := classifyHost(host)
	switch host {
	case "twitter.com", "mobile.twitter.com":
		host = "x.com"
	case "m.youtube.com":
		host = "youtube.com"
	case "old.reddit.com":
		host = "reddit.com"
	}
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] || (src == types.SourceTwitter && twitterOnly[lk]) {
			q.Del(k)
		}
	}

	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "/" {
		path = ""
	}

	out := scheme + "://" + host + path
	if enc := encodeSorted(q); enc != "" {
		out += "?" + enc
	}
	return out, nil
}

func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"'\x60]+`)

// newsletter plumbing rather than content
var skipURLHints = []string{
	"unsubscribe",
	"list-manage.com",
	"/track/click",
	"/wf/click",
	"email.mg.",
	"sendgrid.net",
	"mailchi.mp",
	"manage-preferences",
	"/optout",
}

// ExtractURLs finds distinct http(s) URLs in text, in order of appearance.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		m = trimTrailing(m)
		if m == "" || isPlumbing(m) {
			continue
		}
		key, err := Canonicalize(m)
		if err != nil {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

func trimTrailing(s string) string {
	for s != "" {
		switch s[len(s)-1] {
		case '.', ',', ';', ':', '!', '?', '\'', '"', ']', '>':
			s = s[:len(s)-1]
		case ')':
			// keep balanced parens, e.g. wikipedia links
			if strings.Count(s, "(") >= strings.Count(s, ")") {
				return s
			}
			s = s[:len(s)-1]
		default:
			return s
		}
	}
	return s
}

func isPlumbing(u string) bool {
	lu := strings.ToLower(u)
	for _, hint := range skipURLHints {
		if strings.Contains(lu, hint) {
			return true
		}
	}
	return false
}
