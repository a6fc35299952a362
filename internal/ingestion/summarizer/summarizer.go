// Package summarizer turns extracted item content into a short summary, a
// category from a fixed list and a handful of tags.
package summarizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/secondbrain-backend/internal/clients/openai"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/normalization"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

const (
	MaxTags             = 5
	MaxSummarySentences = 3
	maxSummaryRunes     = 600
	defaultMaxPrompt    = 8000
)

var Categories = []string{
	"article",
	"video",
	"image",
	"social_post",
	"recipe",
	"product",
	"tutorial",
	"news",
	"reference",
	"other",
}

type Input struct {
	URL         string
	Source      types.ItemSource
	Title       string
	Description string
	Author      string
	SiteName    string
	Content     string
}

type Result struct {
	Summary  string   `json:"summary"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type Summarizer interface {
	Summarize(ctx context.Context, in Input) (Result, error)
}

type aiSummarizer struct {
	log       *logger.Logger
	ai        openai.Client
	maxPrompt int
}

func New(log *logger.Logger, ai openai.Client, maxPromptChars int) Summarizer {
	if maxPromptChars <= 0 {
		maxPromptChars = defaultMaxPrompt
	}
	return &aiSummarizer{log: log.With("service", "Summarizer"), ai: ai, maxPrompt: maxPromptChars}
}

const systemPrompt = `You file saved links into a personal knowledge library.
Given a saved item, return:
- summary: at most 3 plain sentences describing what the item is about. No marketing tone, no "This article".
- category: exactly one of the allowed categories.
- tags: up to 5 short lowercase topical tags (1-3 words each). No platform names, no generic words like "link" or "post".`

func schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"summary", "category", "tags"},
		"properties": map[string]any{
			"summary":  map[string]any{"type": "string"},
			"category": map[string]any{"type": "string", "enum": Categories},
			"tags": map[string]any{
				"type":     "array",
				"maxItems": MaxTags,
				"items":    map[string]any{"type": "string"},
			},
		},
	}
}

func (s *aiSummarizer) Summarize(ctx context.Context, in Input) (Result, error) {
	if s.ai == nil {
		return Result{}, fmt.Errorf("summarizer: no AI client configured")
	}
	obj, err := s.ai.GenerateJSON(ctx, systemPrompt, s.prompt(in), "item_summary", schema())
	if err != nil {
		return Result{}, err
	}
	r := Result{}
	r.Summary, _ = obj["summary"].(string)
	r.Category, _ = obj["category"].(string)
	if raw, ok := obj["tags"].([]any); ok {
		for _, t := range raw {
			if ts, ok := t.(string); ok {
				r.Tags = append(r.Tags, ts)
			}
		}
	}
	r = Normalize(r)
	if r.Summary == "" {
		return Result{}, fmt.Errorf("summarizer: empty summary")
	}
	return r, nil
}

func (s *aiSummarizer) prompt(in Input) string {
	var b strings.Builder
	field := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	field("URL", in.URL)
	field("Source", string(in.Source))
	field("Site", in.SiteName)
	field("Author", in.Author)
	field("Title", in.Title)
	field("Description", in.Description)
	if c := strings.TrimSpace(in.Content); c != "" {
		b.WriteString("\nContent:\n")
		b.WriteString(truncateRunes(c, s.maxPrompt))
	}
	return b.String()
}

// Normalize coerces category into Categories, slugifies and dedupes tags,
// and bounds the summary.
func Normalize(r Result) Result {
	r.Summary = truncateRunes(leadingSentences(r.Summary, MaxSummarySentences), maxSummaryRunes)
	r.Category = normalizeCategory(r.Category)
	seen := map[string]bool{}
	tags := make([]string, 0, MaxTags)
	for _, t := range r.Tags {
		slug := normalization.Slug(t)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		tags = append(tags, slug)
		if len(tags) == MaxTags {
			break
		}
	}
	r.Tags = tags
	return r
}

func normalizeCategory(c string) string {
	c = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
	switch c {
	case "post", "tweet", "social":
		return "social_post"
	case "photo", "picture":
		return "image"
	case "howto", "how_to", "guide":
		return "tutorial"
	}
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return "other"
}

var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// Fallback builds a deterministic result without the model.
func Fallback(in Input) Result {
	text := firstNonEmpty(in.Description, in.Content, in.Title)
	return Normalize(Result{
		Summary:  firstSentences(text, 2),
		Category: guessCategory(in),
	})
}

func guessCategory(in Input) string {
	switch in.Source {
	case types.SourceYouTube, types.SourceTikTok:
		return "video"
	case types.SourcePinterest, types.SourceInstagram:
		return "image"
	case types.SourceTwitter, types.SourceReddit:
		return "social_post"
	}
	hay := strings.ToLower(in.Title + " " + in.URL + " " + in.Description)
	switch {
	case containsAny(hay, "recipe", "ingredients", "preheat"):
		return "recipe"
	case containsAny(hay, "tutorial", "how to", "how-to", "step by step", "guide"):
		return "tutorial"
	case containsAny(hay, "/docs/", "documentation", "reference", "wikipedia.org"):
		return "reference"
	case containsAny(hay, "/product", "/dp/", "add to cart", "buy now", "shop"):
		return "product"
	case containsAny(hay, "breaking", "/news/", "reuters", "apnews"):
		return "news"
	}
	if in.Source == types.SourceWeb && strings.TrimSpace(in.Content) != "" {
		return "article"
	}
	return "other"
}

func firstSentences(s string, n int) string {
	return truncateRunes(leadingSentences(s, n), 280)
}

// leadingSentences collapses whitespace and keeps at most n sentences.
func leadingSentences(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	idx := sentenceEnd.FindAllStringIndex(s, n)
	if len(idx) < n {
		return s
	}
	return strings.TrimSpace(s[:idx[n-1][0]+1])
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max-1])) + "…"
}
