package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/cache"
	"github.com/yungbote/secondbrain-backend/internal/data/db"
	httpx "github.com/yungbote/secondbrain-backend/internal/http"
	"github.com/yungbote/secondbrain-backend/internal/jobs/worker"
	"github.com/yungbote/secondbrain-backend/internal/observability"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
	"github.com/yungbote/secondbrain-backend/internal/realtime"
	"github.com/yungbote/secondbrain-backend/internal/realtime/bus"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    Repos
	Services Services
	Server   *httpx.Server
	Hub      *realtime.SSEHub
	Metrics  *observability.Metrics
	Worker   *worker.Worker

	redis        goredis.UniversalClient
	bus          bus.Bus
	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// OpenDB connects and migrates the configured database.
func OpenDB(log *logger.Logger, cfg Config) (*db.Service, error) {
	svc, err := db.NewService(log, db.Config{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		SlowQuery:    cfg.DBSlowQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return svc, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg, otelShutdown: func(context.Context) error { return nil }}

	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     cfg.OtelHeaders,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if cfg.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
	}

	dbService, err := OpenDB(log, cfg)
	if err != nil {
		return nil, err
	}
	a.dbService = dbService
	a.DB = dbService.DB()

	var metaCache cache.Cache = cache.NewMemory(10_000)
	if cfg.RedisAddr != "" {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		if metaCache, err = cache.NewRedis(log, a.redis, cfg.CachePrefix); err != nil {
			a.Close()
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		if a.bus, err = bus.NewRedisBus(log, a.redis, cfg.RedisChannel); err != nil {
			a.Close()
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
	}

	a.Hub = realtime.NewSSEHub(log)
	var pub realtime.Publisher
	if a.bus != nil {
		pub = a.bus
	}
	emitter := realtime.NewEmitter(log, a.Hub, pub)

	a.Repos = wireRepos(a.DB, log)
	a.Services, err = wireServices(a.DB, log, cfg, a.Repos, emitter, metaCache, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.WorkerEnabled {
		a.Worker, err = wireWorker(a.DB, log, cfg, a.Repos, a.Services, a.Metrics)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Server = httpx.NewServer(wireRouterConfig(a.DB, log, cfg, a.Services, a.Hub, a.Metrics))
	return a, nil
}

// Start launches the background loops: the bus forwarder, the queue depth
// collector and, when enabled, the job worker.
func (a *App) Start(ctx context.Context) error {
	if a.cancel != nil {
		return errors.New("app already started")
	}
	ctx, a.cancel = context.WithCancel(ctx)
	if a.bus != nil {
		if err := a.bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
			return fmt.Errorf("start sse forwarder: %w", err)
		}
	}
	if a.Metrics != nil {
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB, a.Cfg.QueueMetricsTTL)
	}
	if a.Worker != nil {
		a.Worker.Start(ctx)
	}
	return nil
}

// Run serves HTTP until ctx is canceled, then drains within the timeout.
func (a *App) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr)
		return a.Server.Run(a.Cfg.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Log.Info("HTTP server shutting down")
		return a.Server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Worker != nil {
		a.Worker.Wait()
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.otelShutdown(ctx); err != nil {
		a.Log.Warn("otel shutdown", "error", err)
	}
	a.Log.Sync()
}
