package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/httpx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

const (
	DefaultMaxBytes  = 2 << 20
	DefaultUserAgent = "Mozilla/5.0 (compatible; SecondBrainBot/1.0; +https://secondbrain.app/bot)"
)

type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Truncated   bool
}

// IsHTML reports whether the page body should go through the HTML extractor.
func (p *Page) IsHTML() bool {
	if p == nil {
		return false
	}
	mt, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return strings.Contains(strings.ToLower(p.ContentType), "html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

type Config struct {
	Timeout    time.Duration
	MaxBytes   int64
	UserAgent  string
	MaxRetries int
	// AllowPrivate permits loopback and private destinations. Off in production.
	AllowPrivate bool
}

type fetcher struct {
	log        *logger.Logger
	httpClient *http.Client
	maxBytes   int64
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
}

func New(log *logger.Logger, cfg Config) Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &fetcher{
		log: log.With("service", "PageFetcher"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: httpx.NewTransport(cfg.AllowPrivate),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				return nil
			},
		},
		maxBytes:   maxBytes,
		userAgent:  ua,
		maxRetries: retries,
		baseDelay:  500 * time.Millisecond,
	}
}

func (f *fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	ctx = ctxutil.Default(ctx)
	backoff := f.baseDelay
	for attempt := 0; ; attempt++ {
		page, resp, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		if attempt >= f.maxRetries || !httpx.IsRetryableError(err) {
			return nil, err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		f.log.Debug("page fetch retrying", "url", rawURL, "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

func (f *fetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp, &httpx.StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, resp, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   truncated,
	}, resp, nil
}
