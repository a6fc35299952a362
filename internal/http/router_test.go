package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	httpH "github.com/yungbote/secondbrain-backend/internal/http/handlers"
	httpMW "github.com/yungbote/secondbrain-backend/internal/http/middleware"
	"github.com/yungbote/secondbrain-backend/internal/observability"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

// tokenAuth accepts "tok-<email>" for any seeded user.
type tokenAuth struct {
	users map[string]*types.User
}

func (a *tokenAuth) Authenticate(ctx context.Context, token string) (context.Context, *types.User, error) {
	u, ok := a.users[token]
	if !ok {
		return ctx, nil, apperr.ErrUnauthorized
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: u.ID, ClerkUserID: u.ClerkUserID}), u, nil
}

type testAPI struct {
	engine *gin.Engine
	users  repos.UserRepo
	alice  *types.User
	bob    *types.User
}

const (
	webhookSecret = "inbound-secret"
	// base64 of "0123456789abcdef0123456789abcdef"
	clerkSecret = "whsec_MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
)

func newTestAPI(t *testing.T) *testAPI { return buildTestAPI(t, "") }

// buildTestAPI mounts the Clerk webhook only when signingSecret is set.
func buildTestAPI(t *testing.T, signingSecret string) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	userRepo := repos.NewUserRepo(db, log)
	itemRepo := repos.NewItemRepo(db, log)
	tagRepo := repos.NewTagRepo(db, log)
	xpRepo := repos.NewXPEventRepo(db, log)
	badgeRepo := repos.NewUserBadgeRepo(db, log)
	jobRepo := repos.NewJobRunRepo(db, log)

	game := services.NewGamificationService(db, log, nil, userRepo, itemRepo, tagRepo, xpRepo, badgeRepo, nil)
	jobs := services.NewJobService(db, log, jobRepo, nil)
	items := services.NewItemService(db, log, itemRepo, tagRepo, jobs, game, nil)
	tags := services.NewTagService(db, log, tagRepo)
	users := services.NewUserService(db, log, userRepo, itemRepo, tagRepo, xpRepo, badgeRepo, nil)
	ingest := services.NewEmailIngestService(log, userRepo, items, game)

	alice := testutil.SeedUser(t, db, "alice@example.com")
	bob := testutil.SeedUser(t, db, "bob@example.com")
	auth := &tokenAuth{users: map[string]*types.User{"tok-alice": alice, "tok-bob": bob}}

	var clerkHandler *httpH.ClerkWebhookHandler
	if signingSecret != "" {
		sync, err := services.NewClerkSyncService(log, userRepo, signingSecret, 0)
		if err != nil {
			t.Fatalf("NewClerkSyncService: %v", err)
		}
		clerkHandler = httpH.NewClerkWebhookHandler(log, sync)
	}

	engine := NewRouter(RouterConfig{
		Log:                 log,
		Metrics:             observability.NewMetrics(),
		AuthMiddleware:      httpMW.NewAuthMiddleware(log, auth),
		RateLimiter:         httpMW.NewRateLimiter(httpMW.RateLimitConfig{PerSecond: 100, Burst: 100}, nil),
		HealthHandler:       httpH.NewHealthHandler(db),
		UserHandler:         httpH.NewUserHandler(users, "in.example.com"),
		ItemHandler:         httpH.NewItemHandler(items),
		TagHandler:          httpH.NewTagHandler(tags),
		JobHandler:          httpH.NewJobHandler(jobs),
		EmailWebhookHandler: httpH.NewEmailWebhookHandler(log, ingest, webhookSecret),
		ClerkWebhookHandler: clerkHandler,
	})
	return &testAPI{engine: engine, users: userRepo, alice: alice, bob: bob}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &env)
	return env.Error.Code
}

func TestHealthcheck(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/healthcheck", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck = %d %q", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/api/me", "/api/items", "/api/tags", "/api/review/queue"} {
		rec := api.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if code := errorCode(t, rec); code != "unauthorized" {
			t.Fatalf("%s: code = %q", path, code)
		}
	}
	if rec := api.do(t, http.MethodGet, "/api/me", "tok-nobody", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: status = %d", rec.Code)
	}
}

func TestItemLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/items", "tok-alice", map[string]any{
		"url":  "https://example.com/post",
		"tags": []string{"Go", "go", "Reading"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created struct {
		Item     types.Item    `json:"item"`
		Job      *types.JobRun `json:"job"`
		Existing bool          `json:"existing"`
	}
	decode(t, rec, &created)
	if created.Item.Status != types.ItemStatusPending || created.Job == nil || created.Existing {
		t.Fatalf("create result = %+v", created)
	}
	itemPath := "/api/items/" + created.Item.ID.String()

	rec = api.do(t, http.MethodPost, "/api/items", "tok-alice", map[string]any{"url": "https://example.com/post"})
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate: status = %d", rec.Code)
	}
	var dup struct {
		Item     types.Item `json:"item"`
		Existing bool       `json:"existing"`
	}
	decode(t, rec, &dup)
	if !dup.Existing || dup.Item.ID != created.Item.ID {
		t.Fatalf("duplicate result = %+v", dup)
	}

	if rec := api.do(t, http.MethodGet, itemPath, "tok-bob", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("other user get: status = %d", rec.Code)
	}

	rec = api.do(t, http.MethodPatch, itemPath, "tok-alice", map[string]any{"is_favorite": true, "note": "later"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/items?favorite=true", "tok-alice", nil)
	var page struct {
		Items []types.Item `json:"items"`
		Total int64        `json:"total"`
	}
	decode(t, rec, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("list favorites = %+v", page)
	}

	rec = api.do(t, http.MethodGet, "/api/tags", "tok-alice", nil)
	var tags struct {
		Tags []types.Tag `json:"tags"`
	}
	decode(t, rec, &tags)
	if len(tags.Tags) != 2 {
		t.Fatalf("tags = %+v", tags.Tags)
	}

	// Still pending, so review is refused.
	if rec := api.do(t, http.MethodPost, itemPath+"/review", "tok-alice", nil); rec.Code != http.StatusConflict {
		t.Fatalf("review pending: status = %d", rec.Code)
	}

	if rec := api.do(t, http.MethodDelete, itemPath, "tok-alice", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, itemPath, "tok-alice", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status = %d", rec.Code)
	}
}

func TestItemValidation(t *testing.T) {
	api := newTestAPI(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad url", http.MethodPost, "/api/items", map[string]any{"url": "not a url"}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/items/nope", nil, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/api/items?sort=sideways", nil, http.StatusBadRequest},
		{"bad bool", http.MethodGet, "/api/items?archived=maybe", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/items?limit=-3", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := api.do(t, tc.method, tc.path, "tok-alice", tc.body); rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d (%s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestMeAndInboxAddress(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/me", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d", rec.Code)
	}
	var me struct {
		InboxAddress string `json:"inbox_address"`
	}
	decode(t, rec, &me)
	want := "save+" + api.alice.InboxToken + "@in.example.com"
	if me.InboxAddress != want {
		t.Fatalf("inbox address = %q, want %q", me.InboxAddress, want)
	}

	if rec := api.do(t, http.MethodPatch, "/api/me", "tok-alice", map[string]any{"timezone": "Mars/Olympus"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timezone: status = %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/api/me/badges", "tok-alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("badges: status = %d", rec.Code)
	}
}

func TestEmailWebhook(t *testing.T) {
	api := newTestAPI(t)
	msg := services.InboundEmail{
		MessageID: "<m1@mail.example.com>",
		From:      "Someone <someone@elsewhere.com>",
		To:        []string{"save+" + api.alice.InboxToken + "@in.example.com"},
		Subject:   "links",
		Text:      "read https://example.com/a and https://example.com/b",
	}

	if rec := api.do(t, http.MethodPost, "/api/webhooks/email?token=wrong", "", msg); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}

	rec := api.do(t, http.MethodPost, "/api/webhooks/email?token="+webhookSecret, "", msg)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res services.EmailIngestResult
	decode(t, rec, &res)
	if res.Created != 2 || res.UserID != api.alice.ID {
		t.Fatalf("ingest result = %+v", res)
	}
}

func TestEmailWebhookForm(t *testing.T) {
	api := newTestAPI(t)
	form := "from=alice%40example.com&to=inbox%40in.example.com&subject=hi&text=" +
		"see+https%3A%2F%2Fexample.com%2Fform&headers=" +
		"Message-Id%3A+%3Cf1%40mail%3E%0D%0ASubject%3A+hi"
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/email?token="+webhookSecret, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("form ingest: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res services.EmailIngestResult
	decode(t, rec, &res)
	// Unknown recipient token falls back to the sender address.
	if res.UserID != api.alice.ID || res.Created != 1 {
		t.Fatalf("form ingest result = %+v", res)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/healthcheck", "", nil)
	rec := api.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `secondbrain_api_requests_total{method="GET",route="/healthcheck",status="200"} 1`) {
		t.Fatalf("metrics body missing healthcheck series:\n%s", rec.Body.String())
	}
}

func (a *testAPI) clerkEvent(t *testing.T, body []byte, mutate func(http.Header)) *httptest.ResponseRecorder {
	t.Helper()
	hook, err := svix.NewWebhook(clerkSecret)
	if err != nil {
		t.Fatalf("svix webhook: %v", err)
	}
	now := time.Now()
	sig, err := hook.Sign("msg_1", now, body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/clerk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", sig)
	if mutate != nil {
		mutate(req.Header)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func TestClerkWebhook(t *testing.T) {
	api := buildTestAPI(t, clerkSecret)
	body := []byte(`{"type":"user.created","data":{"id":"user_hook","first_name":"Grace",
		"primary_email_address_id":"e1","email_addresses":[{"id":"e1","email_address":"grace@example.com"}]}}`)

	rec := api.clerkEvent(t, body, func(h http.Header) { h.Set("svix-signature", "v1,Zm9yZ2Vk") })
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "bad_signature" {
		t.Fatalf("forged = %d %s", rec.Code, rec.Body.String())
	}
	rec = api.clerkEvent(t, body, func(h http.Header) { h.Del("svix-id") })
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing id = %d %s", rec.Code, rec.Body.String())
	}
	if u, err := api.users.GetByClerkID(testutil.Ctx(), "user_hook"); err != nil || u != nil {
		t.Fatalf("user created by rejected event: %v %v", u, err)
	}

	rec = api.clerkEvent(t, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed = %d %s", rec.Code, rec.Body.String())
	}
	var res services.ClerkSyncResult
	decode(t, rec, &res)
	if !res.Handled || res.Type != "user.created" {
		t.Fatalf("result = %+v", res)
	}
	u, err := api.users.GetByClerkID(testutil.Ctx(), "user_hook")
	if err != nil || u == nil || u.Email != "grace@example.com" {
		t.Fatalf("synced user = %+v, %v", u, err)
	}
}

func TestClerkWebhookAbsentWithoutSecret(t *testing.T) {
	api := newTestAPI(t)
	rec := api.clerkEvent(t, []byte(`{"type":"user.created"}`), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
