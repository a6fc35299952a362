// Command reconcile_tags recomputes tag usage counts from live item_tag rows.
//
//	reconcile_tags -user <uuid> -dry-run
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/yungbote/secondbrain-backend/internal/app"
	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

func main() {
	userFlag := flag.String("user", "", "only reconcile this user id (default: every user)")
	dryRun := flag.Bool("dry-run", false, "report drift without writing")
	flag.Parse()

	userID := uuid.Nil
	if *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			exitf("invalid -user: %v", err)
		}
		userID = id
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		exitf("config: %v", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		exitf("logger: %v", err)
	}
	defer log.Sync()

	dbService, err := app.OpenDB(log, cfg)
	if err != nil {
		exitf("%v", err)
	}
	defer func() { _ = dbService.Close() }()

	db := dbService.DB()
	tags := services.NewTagService(db, log, repos.NewTagRepo(db, log))
	res, err := tags.Reconcile(dbctx.Context{Ctx: context.Background()}, userID, *dryRun)
	if err != nil {
		exitf("reconcile: %v", err)
	}
	for _, d := range res.Drift {
		fmt.Printf("%s\t%s\tstored=%d\tactual=%d\n", d.TagID, d.Slug, d.Stored, d.Actual)
	}
	if res.DryRun {
		fmt.Printf("%d tags drifted (dry run, nothing written)\n", len(res.Drift))
		return
	}
	fmt.Printf("%d tags drifted, %d corrected\n", len(res.Drift), res.Corrected)
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
