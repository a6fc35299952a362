// Package extractor pulls link-preview metadata and readable text out of HTML.
package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const DefaultMaxText = 20000

type Metadata struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
	Author       string `json:"author,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	Type         string `json:"type,omitempty"`
	Text         string `json:"text,omitempty"`
}

// Empty reports whether nothing useful was found.
func (m Metadata) Empty() bool {
	return m.Title == "" && m.Description == "" && m.ImageURL == "" && m.Text == ""
}

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t\p{Zs}]{2,}`)
)

// Extract parses body as HTML. Relative image and canonical URLs are resolved
// against baseURL. maxText <= 0 uses DefaultMaxText.
func Extract(baseURL string, body []byte, maxText int) (Metadata, error) {
	if maxText <= 0 {
		maxText = DefaultMaxText
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Metadata{}, err
	}

	metas := map[string]string{}
	var titleTag, canonical string
	var walkHead func(n *html.Node)
	walkHead = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				key := strings.ToLower(firstNonEmpty(getAttr(n, "property"), getAttr(n, "name"), getAttr(n, "itemprop")))
				val := clean(getAttr(n, "content"))
				if key != "" && val != "" {
					if _, exists := metas[key]; !exists {
						metas[key] = val
					}
				}
			case atom.Title:
				if titleTag == "" {
					titleTag = clean(textOf(n))
				}
			case atom.Link:
				if canonical == "" && strings.EqualFold(getAttr(n, "rel"), "canonical") {
					canonical = getAttr(n, "href")
				}
			case atom.Body:
				// meta tags in body are rare and usually junk
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkHead(c)
		}
	}
	walkHead(doc)

	md := Metadata{
		Title:        firstNonEmpty(metas["og:title"], metas["twitter:title"], titleTag),
		Description:  firstNonEmpty(metas["og:description"], metas["twitter:description"], metas["description"]),
		ImageURL:     resolve(baseURL, firstNonEmpty(metas["og:image"], metas["og:image:url"], metas["twitter:image"], metas["twitter:image:src"])),
		SiteName:     firstNonEmpty(metas["og:site_name"], metas["application-name"]),
		Author:       firstNonEmpty(metas["author"], metas["article:author"], metas["twitter:creator"]),
		CanonicalURL: resolve(baseURL, firstNonEmpty(canonical, metas["og:url"])),
		Type:         metas["og:type"],
	}

	var sb strings.Builder
	if bodyNode := findBody(doc); bodyNode != nil {
		extractText(bodyNode, &sb, 0)
	}
	md.Text = truncate(cleanText(sb.String()), maxText)
	return md, nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 200 {
		return
	}
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			sb.WriteString(t)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Iframe, atom.Svg, atom.Nav,
			atom.Footer, atom.Header, atom.Form, atom.Button, atom.Aside, atom.Template:
			return
		case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Li, atom.Article, atom.Section, atom.Blockquote, atom.Pre, atom.Tr:
			sb.WriteString("\n\n")
		case atom.Br:
			sb.WriteString("\n")
		}
		if strings.EqualFold(getAttr(n, "aria-hidden"), "true") {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(r).String()
}

// clean collapses runs of whitespace inside a single-line value.
func clean(s string) string {
	s = strings.ToValidUTF8(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func cleanText(s string) string {
	s = strings.ToValidUTF8(s, " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = multiSpacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
