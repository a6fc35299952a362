package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	// EnqueueItemProcess is a no-op returning false when a runnable job for
	// the item already exists.
	EnqueueItemProcess(dbc dbctx.Context, ownerUserID, itemID uuid.UUID, trigger string) (*types.JobRun, bool, error)
	GetByIDForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	ListForRequestUser(dbc dbctx.Context, limit int) ([]*types.JobRun, error)
	// CancelForRequestUser stops a queued or running job. A running handler
	// finishes its current step, but its final status write is discarded.
	CancelForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, notify JobNotifier) JobService {
	if notify == nil {
		notify = NewJobNotifier(nil)
	}
	return &jobService{
		db:     db,
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id: %w", apperr.ErrInvalidArgument)
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type: %w", apperr.ErrInvalidArgument)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("Job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	s.notify.JobCreated(ownerUserID, job)
	return job, nil
}

func (s *jobService) EnqueueItemProcess(dbc dbctx.Context, ownerUserID, itemID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	if itemID == uuid.Nil {
		return nil, false, fmt.Errorf("missing item_id: %w", apperr.ErrInvalidArgument)
	}
	has, err := s.repo.HasRunnableForEntity(dbc, ownerUserID, types.EntityTypeItem, itemID, types.JobTypeItemProcess)
	if err != nil {
		return nil, false, err
	}
	if has {
		return nil, false, nil
	}
	entityID := itemID
	job, err := s.Enqueue(dbc, ownerUserID, types.JobTypeItemProcess, types.EntityTypeItem, &entityID, map[string]any{
		"item_id": itemID.String(),
		"trigger": trigger,
	})
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *jobService) GetByIDForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	userID := ctxutil.UserID(dbc.Ctx)
	if userID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	job, err := s.repo.GetForOwner(dbc, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, apperr.ErrNotFound
	}
	return job, nil
}

func (s *jobService) ListForRequestUser(dbc dbctx.Context, limit int) ([]*types.JobRun, error) {
	userID := ctxutil.UserID(dbc.Ctx)
	if userID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	return s.repo.ListForOwner(dbc, userID, limit)
}

func (s *jobService) CancelForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByIDForRequestUser(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusQueued && job.Status != types.JobStatusRunning {
		return nil, fmt.Errorf("job is %s: %w", job.Status, apperr.ErrConflict)
	}
	now := time.Now().UTC()
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{
		types.JobStatusSucceeded,
		types.JobStatusFailed,
		types.JobStatusCanceled,
	}, map[string]any{
		"status":     types.JobStatusCanceled,
		"stage":      "canceled",
		"message":    "Canceled",
		"locked_at":  nil,
		"updated_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("job finished before cancel: %w", apperr.ErrConflict)
	}
	job, err = s.repo.GetByID(dbc, job.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("Job canceled", "job_id", job.ID, "job_type", job.JobType)
	s.notify.JobFailed(job.OwnerUserID, job, "canceled", "canceled by user")
	return job, nil
}
