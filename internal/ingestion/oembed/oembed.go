// Package oembed resolves social posts to their provider's oEmbed metadata.
package oembed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/httpx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

// ErrUnsupported means the source has no public oEmbed endpoint.
var ErrUnsupported = errors.New("oembed: unsupported source")

type Embed struct {
	Type         string `json:"type,omitempty"`
	Title        string `json:"title,omitempty"`
	AuthorName   string `json:"author_name,omitempty"`
	AuthorURL    string `json:"author_url,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	HTML         string `json:"html,omitempty"`
	// Text is the post body recovered from HTML when the provider puts it there.
	Text string `json:"text,omitempty"`
}

type Client interface {
	Lookup(ctx context.Context, source types.ItemSource, rawURL string) (*Embed, error)
}

type provider struct {
	endpoint string
	params   url.Values
}

// DefaultEndpoints are the public, tokenless providers.
var DefaultEndpoints = map[types.ItemSource]string{
	types.SourceTwitter:   "https://publish.twitter.com/oembed",
	types.SourceYouTube:   "https://www.youtube.com/oembed",
	types.SourcePinterest: "https://www.pinterest.com/oembed.json",
	types.SourceTikTok:    "https://www.tiktok.com/oembed",
	types.SourceReddit:    "https://www.reddit.com/oembed",
}

var extraParams = map[types.ItemSource]url.Values{
	types.SourceTwitter: {"omit_script": {"1"}, "dnt": {"true"}},
	types.SourceYouTube: {"format": {"json"}},
}

type Config struct {
	Timeout time.Duration
	// Endpoints overrides DefaultEndpoints per source.
	Endpoints map[types.ItemSource]string
	UserAgent string
	// AllowPrivate permits loopback and private endpoints.
	AllowPrivate bool
}

type client struct {
	log        *logger.Logger
	httpClient *http.Client
	providers  map[types.ItemSource]provider
	userAgent  string
}

func New(log *logger.Logger, cfg Config) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	providers := make(map[types.ItemSource]provider, len(DefaultEndpoints))
	for src, ep := range DefaultEndpoints {
		providers[src] = provider{endpoint: ep, params: extraParams[src]}
	}
	for src, ep := range cfg.Endpoints {
		p := providers[src]
		p.endpoint = ep
		p.params = extraParams[src]
		providers[src] = p
	}
	return &client{
		log:        log.With("service", "OEmbedClient"),
		httpClient: &http.Client{Timeout: timeout, Transport: httpx.NewTransport(cfg.AllowPrivate)},
		providers:  providers,
		userAgent:  cfg.UserAgent,
	}
}

func (c *client) Lookup(ctx context.Context, source types.ItemSource, rawURL string) (*Embed, error) {
	p, ok := c.providers[source]
	if !ok || p.endpoint == "" {
		return nil, ErrUnsupported
	}
	q := url.Values{}
	for k, vs := range p.params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("url", rawURL)
	endpoint := p.endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oembed %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &httpx.StatusError{URL: p.endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var e Embed
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&e); err != nil {
		return nil, fmt.Errorf("oembed %s decode: %w", source, err)
	}
	e.Title = strings.TrimSpace(e.Title)
	if e.HTML != "" {
		e.Text = BlockquoteText(e.HTML)
	}
	if e.Title == "" && e.Text != "" {
		e.Title = titleFromText(e.Text)
	}
	return &e, nil
}

// BlockquoteText returns the paragraph text of an embed blockquote, the way
// Twitter/X and TikTok ship the post body.
func BlockquoteText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div})
	if err != nil {
		return ""
	}
	var parts []string
	var walk func(n *html.Node, inQuote bool)
	walk = func(n *html.Node, inQuote bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Blockquote:
				inQuote = true
			case atom.P:
				if inQuote {
					if t := strings.Join(strings.Fields(textOf(n)), " "); t != "" {
						parts = append(parts, t)
					}
					return
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch, inQuote)
		}
	}
	for _, n := range nodes {
		walk(n, false)
	}
	return strings.Join(parts, "\n")
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && ch.DataAtom == atom.Br {
			sb.WriteString(" ")
			continue
		}
		sb.WriteString(textOf(ch))
	}
	return sb.String()
}

func titleFromText(s string) string {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	r := []rune(s)
	if len(r) > 120 {
		return strings.TrimSpace(string(r[:117])) + "..."
	}
	return s
}
