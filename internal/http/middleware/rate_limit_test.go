package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/secondbrain-backend/internal/observability"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
)

func TestRateLimiterPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.NewMetrics()
	rl := NewRateLimiter(RateLimitConfig{PerSecond: 0.001, Burst: 2}, m)

	alice, bob := uuid.New(), uuid.New()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		uid, _ := uuid.Parse(c.GetHeader("X-Test-User"))
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: uid})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/api/items", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(u uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.Header.Set("X-Test-User", u.String())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do(alice); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	rec := do(alice)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if rec := do(bob); rec.Code != http.StatusOK {
		t.Fatalf("other user limited: status = %d", rec.Code)
	}
}

func TestExtractToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") }, "abc"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "__session", Value: "ck"}) }, "ck"},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=q" }, "q"},
		{"none", func(r *http.Request) {}, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/sse/stream", nil)
		tc.setup(req)
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = req
		if got := extractToken(c); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
