package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/observability"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
)

type RateLimitConfig struct {
	PerSecond float64
	Burst     int
	// IdleTTL evicts limiters for users not seen within this window.
	IdleTTL time.Duration
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out a token bucket per authenticated user, falling back
// to the client IP. It must run after RequireAuth.
type RateLimiter struct {
	cfg     RateLimitConfig
	metrics *observability.Metrics

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(cfg RateLimitConfig, metrics *observability.Metrics) *RateLimiter {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 30
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		metrics: metrics,
		entries: map[string]*limiterEntry{},
		now:     time.Now,
	}
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if uid := ctxutil.UserID(c.Request.Context()); uid != uuid.Nil {
			key = "user:" + uid.String()
		}
		lim := rl.limiter(key)
		if !lim.Allow() {
			rl.metrics.IncRateLimited(c.FullPath())
			retry := int(math.Ceil(1 / rl.cfg.PerSecond))
			c.Header("Retry-After", strconv.Itoa(retry))
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited)
			return
		}
		c.Next()
	}
}

const errRateLimited = mwError("too many requests")

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > rl.cfg.IdleTTL {
		for k, e := range rl.entries {
			if now.Sub(e.seen) > rl.cfg.IdleTTL {
				delete(rl.entries, k)
			}
		}
		rl.lastSweep = now
	}

	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(rl.cfg.PerSecond), rl.cfg.Burst)}
		rl.entries[key] = e
	}
	e.seen = now
	return e.lim
}
