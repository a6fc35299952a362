package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/secondbrain-backend/internal/http/handlers"
	httpMW "github.com/yungbote/secondbrain-backend/internal/http/middleware"
	"github.com/yungbote/secondbrain-backend/internal/observability"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	// TracingEnabled installs otelgin spans around every request.
	TracingEnabled bool
	CORSOrigins    []string
	Metrics        *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware
	RateLimiter    *httpMW.RateLimiter

	HealthHandler       *httpH.HealthHandler
	UserHandler         *httpH.UserHandler
	ItemHandler         *httpH.ItemHandler
	TagHandler          *httpH.TagHandler
	JobHandler          *httpH.JobHandler
	RealtimeHandler     *httpH.RealtimeHandler
	ClerkWebhookHandler *httpH.ClerkWebhookHandler
	EmailWebhookHandler *httpH.EmailWebhookHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "secondbrain-api"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")

	// Webhooks (signed, no session)
	if cfg.ClerkWebhookHandler != nil {
		api.POST("/webhooks/clerk", cfg.ClerkWebhookHandler.Receive)
	}
	if cfg.EmailWebhookHandler != nil {
		api.POST("/webhooks/email", cfg.EmailWebhookHandler.Receive)
	}

	protected := api.Group("")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	if cfg.RateLimiter != nil {
		protected.Use(cfg.RateLimiter.Handler())
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
	}

	// Me
	if cfg.UserHandler != nil {
		protected.GET("/me", cfg.UserHandler.GetMe)
		protected.PATCH("/me", cfg.UserHandler.UpdateMe)
		protected.GET("/me/badges", cfg.UserHandler.Badges)
		protected.GET("/me/xp", cfg.UserHandler.RecentXP)
		protected.POST("/me/inbox-token", cfg.UserHandler.RotateInboxToken)
	}

	// Items
	if cfg.ItemHandler != nil {
		protected.POST("/items", cfg.ItemHandler.CreateItem)
		protected.GET("/items", cfg.ItemHandler.ListItems)
		protected.GET("/items/:id", cfg.ItemHandler.GetItem)
		protected.PATCH("/items/:id", cfg.ItemHandler.UpdateItem)
		protected.DELETE("/items/:id", cfg.ItemHandler.DeleteItem)
		protected.POST("/items/:id/reprocess", cfg.ItemHandler.ReprocessItem)
		protected.POST("/items/:id/review", cfg.ItemHandler.ReviewItem)
		protected.GET("/review/queue", cfg.ItemHandler.ReviewQueue)
	}

	// Tags
	if cfg.TagHandler != nil {
		protected.GET("/tags", cfg.TagHandler.ListTags)
		protected.PATCH("/tags/:id", cfg.TagHandler.RenameTag)
		protected.DELETE("/tags/:id", cfg.TagHandler.DeleteTag)
	}

	// Jobs
	if cfg.JobHandler != nil {
		protected.GET("/jobs", cfg.JobHandler.ListJobs)
		protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
		protected.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
	}

	return r
}
