package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/cache"
	"github.com/yungbote/secondbrain-backend/internal/clients/openai"
	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	httpx "github.com/yungbote/secondbrain-backend/internal/http"
	httpH "github.com/yungbote/secondbrain-backend/internal/http/handlers"
	httpMW "github.com/yungbote/secondbrain-backend/internal/http/middleware"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/fetcher"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/oembed"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/pipeline"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/summarizer"
	"github.com/yungbote/secondbrain-backend/internal/jobs/pipeline/item_process"
	jobruntime "github.com/yungbote/secondbrain-backend/internal/jobs/runtime"
	"github.com/yungbote/secondbrain-backend/internal/jobs/worker"
	"github.com/yungbote/secondbrain-backend/internal/observability"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
	"github.com/yungbote/secondbrain-backend/internal/realtime"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

type Repos struct {
	User      repos.UserRepo
	Item      repos.ItemRepo
	Tag       repos.TagRepo
	XPEvent   repos.XPEventRepo
	UserBadge repos.UserBadgeRepo
	JobRun    repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:      repos.NewUserRepo(db, log),
		Item:      repos.NewItemRepo(db, log),
		Tag:       repos.NewTagRepo(db, log),
		XPEvent:   repos.NewXPEventRepo(db, log),
		UserBadge: repos.NewUserBadgeRepo(db, log),
		JobRun:    repos.NewJobRunRepo(db, log),
	}
}

type Services struct {
	Auth         services.AuthService
	ClerkSync    services.ClerkSyncService
	Game         services.GamificationService
	Job          services.JobService
	Item         services.ItemService
	Tag          services.TagService
	User         services.UserService
	EmailIngest  services.EmailIngestService
	JobNotify    services.JobNotifier
	ItemNotify   services.ItemNotifier
	Cache        cache.Cache
	OpenAI       openai.Client
	pipelineDeps pipeline.Deps
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	r Repos,
	emitter *realtime.Emitter,
	metaCache cache.Cache,
	metrics *observability.Metrics,
) (Services, error) {
	log.Info("Wiring services...")

	jobNotify := services.NewJobNotifier(emitter)
	itemNotify := services.NewItemNotifier(emitter)
	progress := services.NewProgressNotifier(emitter)

	game := services.NewGamificationService(db, log, nil, r.User, r.Item, r.Tag, r.XPEvent, r.UserBadge, progress)
	jobs := services.NewJobService(db, log, r.JobRun, jobNotify)
	items := services.NewItemService(db, log, r.Item, r.Tag, jobs, game, itemNotify)

	auth, err := services.NewAuthService(log, r.User, services.AuthConfig{
		PublicKeyPEM:      cfg.ClerkPublicKey,
		AuthorizedParties: cfg.ClerkAuthorizedParties,
		Leeway:            cfg.JWTLeeway,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init auth: %w", err)
	}

	var clerkSync services.ClerkSyncService
	if cfg.ClerkWebhookSecret != "" {
		clerkSync, err = services.NewClerkSyncService(log, r.User, cfg.ClerkWebhookSecret, cfg.ClerkWebhookTolerance)
		if err != nil {
			return Services{}, fmt.Errorf("init clerk sync: %w", err)
		}
	} else {
		log.Warn("CLERK_WEBHOOK_SECRET not set; user sync webhook disabled")
	}

	var ai openai.Client
	if cfg.OpenAIAPIKey != "" {
		ai, err = openai.NewClient(log, openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			Timeout:    cfg.OpenAITimeout,
			MaxRetries: cfg.OpenAIMaxRetries,
		})
		if err != nil {
			return Services{}, fmt.Errorf("init openai: %w", err)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; items are saved without summaries")
	}

	s := Services{
		Auth:        auth,
		ClerkSync:   clerkSync,
		Game:        game,
		Job:         jobs,
		Item:        items,
		Tag:         services.NewTagService(db, log, r.Tag),
		User:        services.NewUserService(db, log, r.User, r.Item, r.Tag, r.XPEvent, r.UserBadge, game.Rules()),
		EmailIngest: services.NewEmailIngestService(log, r.User, items, game),
		JobNotify:   jobNotify,
		ItemNotify:  itemNotify,
		Cache:       metaCache,
		OpenAI:      ai,
	}
	s.pipelineDeps = pipeline.Deps{
		DB:    db,
		Log:   log,
		Items: r.Item,
		Tags:  r.Tag,
		Fetcher: fetcher.New(log, fetcher.Config{
			Timeout:      cfg.FetchTimeout,
			MaxBytes:     cfg.FetchMaxBytes,
			UserAgent:    cfg.FetchUserAgent,
			MaxRetries:   cfg.FetchRetries,
			AllowPrivate: cfg.FetchAllowPrivate,
		}),
		OEmbed:  oembed.New(log, oembed.Config{UserAgent: cfg.FetchUserAgent, AllowPrivate: cfg.FetchAllowPrivate}),
		Cache:   metaCache,
		Game:    game,
		Notify:  itemNotify,
		Metrics: metrics,
	}
	if ai != nil {
		s.pipelineDeps.Summarizer = summarizer.New(log, ai, 0)
	}
	return s, nil
}

func wireWorker(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, s Services, metrics *observability.Metrics) (*worker.Worker, error) {
	log.Info("Wiring job worker...")
	proc := pipeline.New(s.pipelineDeps, pipeline.Config{MetaTTL: cfg.MetaCacheTTL})

	registry := jobruntime.NewRegistry()
	if err := registry.Register(item_process.New(log, proc)); err != nil {
		return nil, fmt.Errorf("register item_process: %w", err)
	}
	return worker.NewWorker(db, log, r.JobRun, registry, s.JobNotify, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPoll,
		MaxAttempts:  cfg.JobMaxAttempts,
		RetryDelay:   cfg.JobRetryDelay,
		StaleRunning: cfg.JobStaleRunning,
		Metrics:      metrics,
	}), nil
}

func wireRouterConfig(db *gorm.DB, log *logger.Logger, cfg Config, s Services, hub *realtime.SSEHub, metrics *observability.Metrics) httpx.RouterConfig {
	log.Info("Wiring HTTP router...")
	rc := httpx.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		TracingEnabled: cfg.OtelEnabled,
		CORSOrigins:    cfg.CORSOrigins,
		Metrics:        metrics,

		AuthMiddleware: httpMW.NewAuthMiddleware(log, s.Auth),
		RateLimiter: httpMW.NewRateLimiter(httpMW.RateLimitConfig{
			PerSecond: cfg.RateLimitPerSecond,
			Burst:     cfg.RateLimitBurst,
		}, metrics),

		HealthHandler:       httpH.NewHealthHandler(db),
		UserHandler:         httpH.NewUserHandler(s.User, cfg.InboundEmailDomain),
		ItemHandler:         httpH.NewItemHandler(s.Item),
		TagHandler:          httpH.NewTagHandler(s.Tag),
		JobHandler:          httpH.NewJobHandler(s.Job),
		RealtimeHandler:     httpH.NewRealtimeHandler(log, hub),
		EmailWebhookHandler: httpH.NewEmailWebhookHandler(log, s.EmailIngest, cfg.InboundEmailSecret),
	}
	if s.ClerkSync != nil {
		rc.ClerkWebhookHandler = httpH.NewClerkWebhookHandler(log, s.ClerkSync)
	}
	return rc
}
