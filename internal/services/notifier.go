package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/realtime"
)

// SSEEmitter is satisfied by *realtime.Emitter.
type SSEEmitter interface {
	Emit(ctx context.Context, userID uuid.UUID, event realtime.SSEEvent, data any)
}

// =========================
// Job notifier
// =========================

type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.JobRun)
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.JobRun)
}

type jobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) JobNotifier {
	return &jobNotifier{emit: emit}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.JobRun) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventJobCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventJobProgress, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventJobFailed, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.JobRun) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventJobDone, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"job":      job,
	})
}

// =========================
// Item notifier
// =========================

type ItemNotifier interface {
	ItemCreated(userID uuid.UUID, item *types.Item)
	ItemProcessed(userID uuid.UUID, item *types.Item, warnings []string)
	ItemFailed(userID uuid.UUID, itemID uuid.UUID, errorMessage string)
	ItemUpdated(userID uuid.UUID, item *types.Item)
	ItemDeleted(userID uuid.UUID, itemID uuid.UUID)
}

type itemNotifier struct {
	emit SSEEmitter
}

func NewItemNotifier(emit SSEEmitter) ItemNotifier {
	return &itemNotifier{emit: emit}
}

func (n *itemNotifier) ItemCreated(userID uuid.UUID, item *types.Item) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventItemCreated, map[string]any{"item": item})
}

func (n *itemNotifier) ItemProcessed(userID uuid.UUID, item *types.Item, warnings []string) {
	if n == nil || n.emit == nil {
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventItemProcessed, map[string]any{
		"item":     item,
		"warnings": warnings,
	})
}

func (n *itemNotifier) ItemFailed(userID uuid.UUID, itemID uuid.UUID, errorMessage string) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventItemFailed, map[string]any{
		"item_id": itemID,
		"error":   errorMessage,
	})
}

func (n *itemNotifier) ItemUpdated(userID uuid.UUID, item *types.Item) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventItemUpdated, map[string]any{"item": item})
}

func (n *itemNotifier) ItemDeleted(userID uuid.UUID, itemID uuid.UUID) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventItemDeleted, map[string]any{"item_id": itemID})
}

// =========================
// Progress notifier
// =========================

// ProgressNotifier reports XP, level and badge changes.
type ProgressNotifier interface {
	XPAwarded(userID uuid.UUID, reason string, amount, total int)
	LevelUp(userID uuid.UUID, level int)
	BadgeAwarded(userID uuid.UUID, badgeKey, name string)
}

type progressNotifier struct {
	emit SSEEmitter
}

func NewProgressNotifier(emit SSEEmitter) ProgressNotifier {
	return &progressNotifier{emit: emit}
}

func (n *progressNotifier) XPAwarded(userID uuid.UUID, reason string, amount, total int) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventXPAwarded, map[string]any{
		"reason": reason,
		"amount": amount,
		"xp":     total,
	})
}

func (n *progressNotifier) LevelUp(userID uuid.UUID, level int) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventLevelUp, map[string]any{"level": level})
}

func (n *progressNotifier) BadgeAwarded(userID uuid.UUID, badgeKey, name string) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), userID, realtime.SSEEventBadgeAwarded, map[string]any{
		"badge_key": badgeKey,
		"name":      name,
	})
}

// =========================
// helpers
// =========================

func safeJobID(job *types.JobRun) uuid.UUID {
	if job == nil {
		return uuid.Nil
	}
	return job.ID
}

func safeJobType(job *types.JobRun) string {
	if job == nil {
		return ""
	}
	return job.JobType
}
