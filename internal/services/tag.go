package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/normalization"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type ReconcileResult struct {
	Drift     []repos.TagDrift `json:"drift"`
	Corrected int64            `json:"corrected"`
	DryRun    bool             `json:"dry_run"`
}

type TagService interface {
	List(dbc dbctx.Context) ([]*types.Tag, error)
	Rename(dbc dbctx.Context, id uuid.UUID, name string) (*types.Tag, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	// Reconcile recomputes usage counts from live item_tag rows.
	// userID == uuid.Nil covers every user.
	Reconcile(dbc dbctx.Context, userID uuid.UUID, dryRun bool) (*ReconcileResult, error)
}

type tagService struct {
	db   *gorm.DB
	log  *logger.Logger
	tags repos.TagRepo
}

func NewTagService(db *gorm.DB, baseLog *logger.Logger, tags repos.TagRepo) TagService {
	return &tagService{db: db, log: baseLog.With("service", "TagService"), tags: tags}
}

func (s *tagService) List(dbc dbctx.Context) ([]*types.Tag, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	return s.tags.ListByUser(dbc, userID)
}

func (s *tagService) ownTag(dbc dbctx.Context, userID, id uuid.UUID) (*types.Tag, error) {
	tag, err := s.tags.GetForUser(dbc, userID, id)
	if err != nil {
		return nil, fmt.Errorf("load tag: %w", err)
	}
	if tag == nil {
		return nil, apperr.ErrNotFound
	}
	return tag, nil
}

func (s *tagService) Rename(dbc dbctx.Context, id uuid.UUID, name string) (*types.Tag, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	tag, err := s.ownTag(dbc, userID, id)
	if err != nil {
		return nil, err
	}
	name = normalization.TagName(name)
	slug := normalization.Slug(name)
	if slug == "" {
		return nil, fmt.Errorf("tag name is empty: %w", apperr.ErrInvalidArgument)
	}
	if slug != tag.Slug {
		clash, err := s.tags.GetBySlug(dbc, userID, slug)
		if err != nil {
			return nil, fmt.Errorf("slug lookup: %w", err)
		}
		if clash != nil {
			return nil, fmt.Errorf("tag %q exists: %w", slug, apperr.ErrConflict)
		}
	}
	if err := s.tags.Rename(dbc, tag.ID, name, slug); err != nil {
		if repos.IsUniqueViolation(err) {
			return nil, fmt.Errorf("tag %q exists: %w", slug, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("rename tag: %w", err)
	}
	return s.ownTag(dbc, userID, tag.ID)
}

func (s *tagService) Delete(dbc dbctx.Context, id uuid.UUID) error {
	userID, err := requestUser(dbc)
	if err != nil {
		return err
	}
	tag, err := s.ownTag(dbc, userID, id)
	if err != nil {
		return err
	}
	err = dbc.Pick(s.db).Transaction(func(tx *gorm.DB) error {
		return s.tags.Delete(dbctx.Context{Ctx: dbc.Ctx, Tx: tx}, tag.ID)
	})
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	s.log.Info("tag deleted", "tag_id", tag.ID, "slug", tag.Slug, "user_id", userID)
	return nil
}

func (s *tagService) Reconcile(dbc dbctx.Context, userID uuid.UUID, dryRun bool) (*ReconcileResult, error) {
	drift, err := s.tags.ListDrift(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("list drift: %w", err)
	}
	out := &ReconcileResult{Drift: drift, DryRun: dryRun}
	for _, d := range drift {
		s.log.Info("tag usage drift", "tag_id", d.TagID, "user_id", d.UserID, "slug", d.Slug, "stored", d.Stored, "actual", d.Actual)
	}
	if dryRun || len(drift) == 0 {
		return out, nil
	}
	n, err := s.tags.ReconcileUsageCounts(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	out.Corrected = n
	scope := "all"
	if userID != uuid.Nil {
		scope = userID.String()
	}
	s.log.Info("tag usage reconciled", "scope", scope, "corrected", n)
	return out, nil
}

