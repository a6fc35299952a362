package item_process

import (
	"errors"
	"fmt"

	jobrt "github.com/yungbote/secondbrain-backend/internal/jobs/runtime"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	itemID, ok := jc.PayloadUUID("item_id")
	if !ok && jc.Job.EntityID != nil {
		itemID, ok = *jc.Job.EntityID, true
	}
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing item_id: %w", apperr.ErrInvalidArgument))
		return nil
	}

	jc.Progress("process", 10, "Fetching and summarizing")
	res, err := p.proc.ProcessItem(jc.Ctx, itemID)
	if errors.Is(err, apperr.ErrNotFound) {
		// Deleted before the worker got to it. Retrying cannot help.
		p.log.Info("Item gone; skipping", "item_id", itemID)
		jc.Succeed("skipped", map[string]any{"item_id": itemID, "skipped": "item not found"})
		return nil
	}
	if err != nil {
		jc.Fail("process", err)
		return nil
	}

	out := map[string]any{
		"item_id":  itemID,
		"warnings": res.Warnings,
	}
	if res.XP != nil {
		out["xp_awarded"] = res.XP.Awarded
		out["xp"] = res.XP.XP
	}
	badges := make([]string, 0, len(res.Badges))
	for _, b := range res.Badges {
		badges = append(badges, b.Key)
	}
	out["badges"] = badges
	jc.Succeed("done", out)
	return nil
}
