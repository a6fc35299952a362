// Package pipeline turns a saved item into a ready one: metadata lookup,
// summary, category and tags, then XP and badge side effects.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/cache"
	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/gamification"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/extractor"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/fetcher"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/oembed"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/source"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/summarizer"
	"github.com/yungbote/secondbrain-backend/internal/normalization"
	"github.com/yungbote/secondbrain-backend/internal/observability"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

const (
	defaultMetaTTL = 24 * time.Hour
	maxContentText = 20000
)

type Result struct {
	Item     *types.Item             `json:"item"`
	Warnings []string                `json:"warnings"`
	XP       *services.AwardResult   `json:"xp,omitempty"`
	Badges   []gamification.BadgeDef `json:"badges,omitempty"`
}

type Config struct {
	// MetaTTL bounds how long extracted page metadata is reused across users.
	MetaTTL time.Duration
	// MaxText caps extracted page text kept on the item.
	MaxText int
}

type Deps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Items      repos.ItemRepo
	Tags       repos.TagRepo
	Fetcher    fetcher.Fetcher
	OEmbed     oembed.Client
	Summarizer summarizer.Summarizer
	Cache      cache.Cache
	Game       services.GamificationService
	Notify     services.ItemNotifier
	Metrics    *observability.Metrics
}

type Pipeline struct {
	db     *gorm.DB
	log    *logger.Logger
	items  repos.ItemRepo
	tags   repos.TagRepo
	fetch  fetcher.Fetcher
	embeds oembed.Client
	ai     summarizer.Summarizer
	cache  cache.Cache
	game   services.GamificationService
	notify services.ItemNotifier
	stats  *observability.Metrics
	cfg    Config
	now    func() time.Time
}

func New(d Deps, cfg Config) *Pipeline {
	if cfg.MetaTTL <= 0 {
		cfg.MetaTTL = defaultMetaTTL
	}
	if cfg.MaxText <= 0 {
		cfg.MaxText = maxContentText
	}
	c := d.Cache
	if c == nil {
		c = cache.Nop{}
	}
	notify := d.Notify
	if notify == nil {
		notify = services.NewItemNotifier(nil)
	}
	return &Pipeline{
		db:     d.DB,
		log:    d.Log.With("component", "IngestionPipeline"),
		items:  d.Items,
		tags:   d.Tags,
		fetch:  d.Fetcher,
		embeds: d.OEmbed,
		ai:     d.Summarizer,
		cache:  c,
		game:   d.Game,
		notify: notify,
		stats:  d.Metrics,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// lookup is what the concurrent metadata branches produce.
type lookup struct {
	canonical string
	finalURL  string
	page      *extractor.Metadata
	embed     *oembed.Embed
	warnings  []string
}

// ProcessItem runs the whole sequence for one item. Lookup and summary
// failures degrade to warnings; only persistence failures are returned, after
// the item is marked failed.
func (p *Pipeline) ProcessItem(ctx context.Context, itemID uuid.UUID) (*Result, error) {
	dbc := dbctx.Context{Ctx: ctx}
	item, err := p.items.GetByID(dbc, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %s: %w", itemID, apperr.ErrNotFound)
	}
	if err := p.items.UpdateFields(dbc, item.ID, map[string]any{"status": types.ItemStatusProcessing}); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	var lk lookup
	if strings.TrimSpace(item.URL) != "" {
		lk = p.lookup(ctx, item)
	}
	fields := merge(item, lk, p.cfg.MaxText)

	in := summarizer.Input{
		URL:         item.URL,
		Source:      item.Source,
		Title:       fields.title,
		Description: fields.description,
		Author:      fields.author,
		SiteName:    fields.siteName,
		Content:     fields.content,
	}
	warnings := lk.warnings
	sum, err := p.summarize(ctx, in)
	if err != nil {
		p.log.Warn("summarize failed; using fallback", "item_id", item.ID, "error", err)
		warnings = append(warnings, "summarize: "+err.Error())
		sum = summarizer.Fallback(in)
	}

	if err := p.persist(ctx, item, lk, fields, sum, warnings); err != nil {
		p.markFailed(ctx, item, err)
		return nil, err
	}

	res := &Result{Warnings: warnings}
	res.XP, res.Badges, res.Warnings = p.sideEffects(ctx, item, res.Warnings)
	if len(res.Warnings) > len(warnings) {
		if err := p.items.UpdateFields(dbc, item.ID, map[string]any{"warnings": encodeWarnings(res.Warnings)}); err != nil {
			p.log.Warn("record side-effect warnings failed", "item_id", item.ID, "error", err)
		}
	}

	saved, err := p.items.GetByID(dbc, item.ID)
	if err != nil || saved == nil {
		saved = item
	}
	res.Item = saved
	p.notify.ItemProcessed(item.UserID, saved, res.Warnings)
	p.stats.ObserveItem(string(saved.Source), types.ItemStatusReady, res.Warnings)
	p.log.Info("item processed",
		"item_id", item.ID,
		"source", item.Source,
		"category", sum.Category,
		"tags", len(sum.Tags),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func (p *Pipeline) lookup(ctx context.Context, item *types.Item) lookup {
	var out lookup
	src := source.Classify(item.URL)
	if item.Source == "" || item.Source == types.SourceWeb {
		item.Source = src
	}
	canonical, err := source.Canonicalize(item.URL)
	if err != nil {
		out.warnings = append(out.warnings, "canonicalize: "+err.Error())
		canonical = item.URL
	}
	out.canonical = canonical

	var (
		embed    *oembed.Embed
		page     *extractor.Metadata
		finalURL string
		embedErr error
		pageErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	if p.embeds != nil {
		g.Go(func() error {
			embed, embedErr = p.embeds.Lookup(gctx, item.Source, canonical)
			return nil
		})
	}
	if p.fetch != nil {
		g.Go(func() error {
			page, finalURL, pageErr = p.pageMetadata(gctx, canonical)
			return nil
		})
	}
	_ = g.Wait()

	if embedErr != nil && !errors.Is(embedErr, oembed.ErrUnsupported) {
		out.warnings = append(out.warnings, "oembed: "+embedErr.Error())
	}
	if pageErr != nil {
		out.warnings = append(out.warnings, "fetch: "+pageErr.Error())
	}
	out.embed = embed
	out.page = page
	out.finalURL = finalURL
	return out
}

type cachedPage struct {
	FinalURL string             `json:"final_url"`
	Meta     extractor.Metadata `json:"meta"`
}

// pageMetadata is cache-first on the canonical URL.
func (p *Pipeline) pageMetadata(ctx context.Context, canonical string) (*extractor.Metadata, string, error) {
	key := "meta:" + canonical
	var hit cachedPage
	if ok, err := p.cache.GetJSON(ctx, key, &hit); err != nil {
		p.log.Warn("metadata cache read failed", "key", key, "error", err)
	} else if ok {
		return &hit.Meta, hit.FinalURL, nil
	}

	page, err := p.fetch.Fetch(ctx, canonical)
	if err != nil {
		return nil, "", err
	}
	var meta extractor.Metadata
	switch {
	case page.IsHTML():
		meta, err = extractor.Extract(page.FinalURL, page.Body, p.cfg.MaxText)
		if err != nil {
			return nil, page.FinalURL, fmt.Errorf("extract: %w", err)
		}
	case strings.HasPrefix(strings.ToLower(page.ContentType), "image/"):
		meta.ImageURL = page.FinalURL
		meta.Type = "image"
	}
	if err := p.cache.SetJSON(ctx, key, cachedPage{FinalURL: page.FinalURL, Meta: meta}, p.cfg.MetaTTL); err != nil {
		p.log.Warn("metadata cache write failed", "key", key, "error", err)
	}
	return &meta, page.FinalURL, nil
}

func (p *Pipeline) summarize(ctx context.Context, in summarizer.Input) (summarizer.Result, error) {
	if p.ai == nil {
		return summarizer.Result{}, errors.New("no summarizer configured")
	}
	return p.ai.Summarize(ctx, in)
}

type mergedFields struct {
	title       string
	description string
	author      string
	siteName    string
	imageURL    string
	embedHTML   string
	content     string
}

// merge prefers oEmbed for social sources and page metadata otherwise.
// A locked title is kept; other stored values only fill gaps.
func merge(item *types.Item, lk lookup, maxText int) mergedFields {
	page := extractor.Metadata{}
	if lk.page != nil {
		page = *lk.page
	}
	emb := oembed.Embed{}
	if lk.embed != nil {
		emb = *lk.embed
	}

	var f mergedFields
	if item.Source.Social() {
		f.title = first(emb.Title, page.Title)
		f.description = first(emb.Text, page.Description)
		f.author = first(emb.AuthorName, page.Author)
		f.siteName = first(emb.ProviderName, page.SiteName)
		f.imageURL = first(emb.ThumbnailURL, page.ImageURL)
	} else {
		f.title = first(page.Title, emb.Title)
		f.description = first(page.Description, emb.Text)
		f.author = first(page.Author, emb.AuthorName)
		f.siteName = first(page.SiteName, emb.ProviderName)
		f.imageURL = first(page.ImageURL, emb.ThumbnailURL)
	}
	f.embedHTML = emb.HTML

	content := page.Text
	if emb.Text != "" && !strings.Contains(content, emb.Text) {
		content = strings.TrimSpace(emb.Text + "\n\n" + content)
	}
	if content == "" {
		content = item.ContentText
	}
	f.content = truncateRunes(content, maxText)

	if item.TitleLocked {
		f.title = item.Title
	} else {
		f.title = first(f.title, item.Title, fallbackTitle(first(lk.canonical, item.URL)))
	}
	f.description = first(f.description, item.Description)
	f.author = first(f.author, item.Author)
	f.siteName = first(f.siteName, item.SiteName)
	f.imageURL = first(f.imageURL, item.ImageURL)
	return f
}

// fallbackTitle is host + path.
func fallbackTitle(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	return host + path
}

func (p *Pipeline) persist(ctx context.Context, item *types.Item, lk lookup, f mergedFields, sum summarizer.Result, warnings []string) error {
	now := p.now()
	meta := map[string]any{}
	if lk.page != nil {
		pm := *lk.page
		pm.Text = ""
		meta["page"] = pm
	}
	if lk.embed != nil {
		meta["oembed"] = lk.embed
	}
	if lk.finalURL != "" {
		meta["final_url"] = lk.finalURL
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	updates := map[string]any{
		"source":           item.Source,
		"status":           types.ItemStatusReady,
		"title":            f.title,
		"description":      f.description,
		"author":           f.author,
		"site_name":        f.siteName,
		"image_url":        f.imageURL,
		"embed_html":       f.embedHTML,
		"content_text":     f.content,
		"summary":          sum.Summary,
		"category":         sum.Category,
		"processed_at":     now,
		"processing_error": "",
		"warnings":         encodeWarnings(warnings),
		"metadata":         datatypes.JSON(metaJSON),
	}
	if lk.canonical != "" {
		updates["canonical_url"] = lk.canonical
	}

	return dbctx.Context{Ctx: ctx}.Pick(p.db).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.items.UpdateFields(txc, item.ID, updates); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		ids := make([]uuid.UUID, 0, len(sum.Tags))
		for _, raw := range sum.Tags {
			slug := normalization.Slug(raw)
			if slug == "" {
				continue
			}
			tag, err := p.tags.FindOrCreate(txc, item.UserID, normalization.TagName(raw), slug)
			if err != nil {
				return fmt.Errorf("find or create tag %q: %w", slug, err)
			}
			if tag != nil {
				ids = append(ids, tag.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := p.tags.Attach(txc, item.ID, ids); err != nil {
			return fmt.Errorf("attach tags: %w", err)
		}
		return nil
	})
}

func (p *Pipeline) markFailed(ctx context.Context, item *types.Item, cause error) {
	p.log.Error("item processing failed", "item_id", item.ID, "error", cause)
	err := p.items.UpdateFields(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, item.ID, map[string]any{
		"status":           types.ItemStatusFailed,
		"processing_error": cause.Error(),
	})
	if err != nil {
		p.log.Error("mark item failed", "item_id", item.ID, "error", err)
	}
	p.notify.ItemFailed(item.UserID, item.ID, cause.Error())
	p.stats.ObserveItem(string(item.Source), types.ItemStatusFailed, nil)
}

// sideEffects never fails the item. Problems become warnings.
func (p *Pipeline) sideEffects(ctx context.Context, item *types.Item, warnings []string) (*services.AwardResult, []gamification.BadgeDef, []string) {
	if p.game == nil {
		return nil, nil, warnings
	}
	dbc := dbctx.Context{Ctx: ctx}
	itemID := item.ID
	xp, err := p.game.Award(dbc, item.UserID, gamification.ReasonItemSaved, item.ID.String(), &itemID)
	if err != nil {
		p.log.Warn("award xp failed", "item_id", item.ID, "error", err)
		warnings = append(warnings, "xp: "+err.Error())
	}
	if _, err := p.game.Touch(dbc, item.UserID); err != nil {
		p.log.Warn("touch activity failed", "item_id", item.ID, "error", err)
		warnings = append(warnings, "streak: "+err.Error())
	}
	badges, err := p.game.CheckBadges(dbc, item.UserID)
	if err != nil {
		p.log.Warn("badge check failed", "item_id", item.ID, "error", err)
		warnings = append(warnings, "badges: "+err.Error())
	}
	return xp, badges, warnings
}

func encodeWarnings(w []string) datatypes.JSON {
	if w == nil {
		w = []string{}
	}
	b, _ := json.Marshal(w)
	return datatypes.JSON(b)
}

func first(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
