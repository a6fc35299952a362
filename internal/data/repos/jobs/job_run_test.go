package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
)

func newJob(owner uuid.UUID, jobType, status string, created time.Time) *types.JobRun {
	entityID := uuid.New()
	return &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     jobType,
		EntityType:  "item",
		EntityID:    &entityID,
		Status:      status,
		Stage:       status,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.Ctx()
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	owner := uuid.New()

	queued := newJob(owner, "item_process", types.JobStatusQueued, now.Add(-3*time.Hour))
	failed := newJob(owner, "item_process", types.JobStatusFailed, now.Add(-2*time.Hour))
	failed.LastErrorAt = testutil.PtrTime(now.Add(-2 * time.Hour))
	staleRunning := newJob(owner, "item_process", types.JobStatusRunning, now.Add(-1*time.Hour))
	staleRunning.HeartbeatAt = testutil.PtrTime(now.Add(-10 * time.Hour))
	exhausted := newJob(owner, "item_process", types.JobStatusFailed, now.Add(-4*time.Hour))
	exhausted.Attempts = 3

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, staleRunning, exhausted})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("Create: expected 4, got %d", len(created))
	}

	got, err := repo.GetForOwner(dbc, owner, queued.ID)
	if err != nil || got == nil || got.ID != queued.ID {
		t.Fatalf("GetForOwner: err=%v got=%v", err, got)
	}
	if other, err := repo.GetForOwner(dbc, uuid.New(), queued.ID); err != nil || other != nil {
		t.Fatalf("GetForOwner(other owner): err=%v got=%v", err, other)
	}

	latest, err := repo.GetLatestByEntity(dbc, owner, "item", *staleRunning.EntityID, "item_process")
	if err != nil {
		t.Fatalf("GetLatestByEntity: %v", err)
	}
	if latest == nil || latest.ID != staleRunning.ID {
		t.Fatalf("GetLatestByEntity: expected %v got %v", staleRunning.ID, latest)
	}

	// Runnable set is walked in created_at order; the exhausted job is skipped.
	for i, want := range []uuid.UUID{queued.ID, failed.ID, staleRunning.ID} {
		claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if claim == nil || claim.ID != want {
			t.Fatalf("ClaimNextRunnable #%d: expected %v got %v", i+1, want, claim)
		}
		if claim.Status != types.JobStatusRunning {
			t.Fatalf("ClaimNextRunnable #%d: status=%q", i+1, claim.Status)
		}
	}
	if claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour); err != nil || claim != nil {
		t.Fatalf("ClaimNextRunnable: expected nothing, got %v err=%v", claim, err)
	}

	reloaded, err := repo.GetByID(dbc, queued.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Attempts != 1 || reloaded.Status != types.JobStatusRunning {
		t.Fatalf("claimed job: attempts=%d status=%q", reloaded.Attempts, reloaded.Status)
	}

	if err := repo.Heartbeat(dbc, queued.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{types.JobStatusCanceled}, map[string]any{
		"status": types.JobStatusSucceeded,
		"stage":  "done",
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{types.JobStatusSucceeded}, map[string]any{"stage": "again"})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsUnlessStatus(blocked): ok=%v err=%v", ok, err)
	}

	has, err := repo.HasRunnableForEntity(dbc, owner, "item", *failed.EntityID, "item_process")
	if err != nil || !has {
		t.Fatalf("HasRunnableForEntity: has=%v err=%v", has, err)
	}
	has, err = repo.HasRunnableForEntity(dbc, owner, "item", *queued.EntityID, "item_process")
	if err != nil || has {
		t.Fatalf("HasRunnableForEntity(succeeded): has=%v err=%v", has, err)
	}

	list, err := repo.ListForOwner(dbc, owner, 2)
	if err != nil {
		t.Fatalf("ListForOwner: %v", err)
	}
	if len(list) != 2 || list[0].ID != staleRunning.ID {
		t.Fatalf("ListForOwner: unexpected %v", list)
	}
}
