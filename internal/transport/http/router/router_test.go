package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gin-gorm-forum/internal/core/auth"
	"gin-gorm-forum/internal/core/config"
	"gin-gorm-forum/internal/core/database"
	"gin-gorm-forum/internal/repo"
	"gin-gorm-forum/internal/service"
	"gin-gorm-forum/internal/session"
	"gin-gorm-forum/pkg/credential"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type harness struct {
	t     *testing.T
	api   *gin.Engine
	admin *gin.Engine
	svc   *service.ForumService
}

func testOptions() Options {
	return Options{
		Limits: config.Limits{
			RPS: 1000, Burst: 1000, LoginRPS: 1000, LoginBurst: 1000,
			MaxConcurrent: 50, MaxBodyBytes: 4 << 10, TimeoutSec: 5,
		},
		CookieName: "forum_session",
		SessionTTL: time.Hour,
	}
}

func newHarness(t *testing.T, o Options) *harness {
	t.Helper()
	db, err := database.NewGorm(database.Opts{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	l := zaptest.NewLogger(t)
	svc := service.NewForumService(service.Deps{
		Users:       repo.NewUserRepo(db),
		Posts:       repo.NewPostRepo(db),
		Sessions:    session.NewManager(repo.NewSessionRepo(db), auth.NewSigner([]byte("k"), "forum"), o.SessionTTL),
		Credentials: credential.New(credential.Params{Time: 1, MemoryKiB: 64, Threads: 1}),
		Log:         l,
	})
	return &harness{t: t, api: NewAPIEngine(l, svc, o), admin: NewAdminEngine(l, svc, o), svc: svc}
}

func (h *harness) do(e *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	require.Equal(h.t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func (h *harness) register(name, email, pw string) string {
	h.t.Helper()
	_, env := h.do(h.api, http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": name, "email": email, "password": pw})
	require.Equal(h.t, 0, env.Code, env.Msg)
	var out struct{ Token string }
	require.NoError(h.t, json.Unmarshal(env.Data, &out))
	return out.Token
}

func TestAPI_Flow(t *testing.T) {
	h := newHarness(t, testOptions())

	w, env := h.do(h.api, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": "Alice", "email": "alice@x.com", "password": "pw1",
	})
	require.Equal(t, 0, env.Code, env.Msg)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "forum_session=")
	assert.NotContains(t, string(env.Data), "passwordHash")
	assert.NotContains(t, string(env.Data), "argon2")
	var reg struct {
		Token string
		User  struct{ ID uint }
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	tok := reg.Token

	_, env = h.do(h.api, http.MethodPost, "/api/v1/posts", tok, gin.H{"content": "hello"})
	require.Equal(t, 0, env.Code, env.Msg)
	var post struct {
		ID       uint
		Likes    int64
		AuthorID uint `json:"authorId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &post))
	assert.Equal(t, uint(1), post.ID)
	assert.Equal(t, int64(0), post.Likes)
	assert.Equal(t, reg.User.ID, post.AuthorID)

	_, env = h.do(h.api, http.MethodPost, "/api/v1/posts/1/like", tok, nil)
	require.Equal(t, 0, env.Code, env.Msg)
	require.NoError(t, json.Unmarshal(env.Data, &post))
	assert.Equal(t, int64(1), post.Likes)

	_, env = h.do(h.api, http.MethodGet, "/api/v1/posts", tok, nil)
	require.Equal(t, 0, env.Code)
	var list struct{ List []struct{ Content string } }
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.List, 1)
	assert.Equal(t, "hello", list.List[0].Content)

	w, env = h.do(h.api, http.MethodPost, "/api/v1/auth/logout", tok, nil)
	require.Equal(t, 0, env.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")

	_, env = h.do(h.api, http.MethodPost, "/api/v1/posts/1/like", tok, nil)
	assert.Equal(t, 401, env.Code)
}

func TestAPI_CookieSession(t *testing.T) {
	h := newHarness(t, testOptions())
	tok := h.register("Alice", "alice@x.com", "pw")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: "forum_session", Value: tok})
	w := httptest.NewRecorder()
	h.api.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, 0, env.Code, env.Msg)
	assert.Contains(t, string(env.Data), "alice@x.com")
}

func TestAPI_ErrorCodes(t *testing.T) {
	h := newHarness(t, testOptions())
	tok := h.register("Alice", "alice@x.com", "pw")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		code   int
	}{
		{"duplicate email", http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": "A", "email": "ALICE@x.com", "password": "pw"}, 409},
		{"register validation", http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": "", "email": "bad", "password": "pw"}, 400},
		{"malformed json", http.MethodPost, "/api/v1/auth/login", "", "{", 400},
		{"wrong password", http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@x.com", "password": "nope"}, 401},
		{"unknown email", http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "bob@x.com", "password": "nope"}, 401},
		{"me without token", http.MethodGet, "/api/v1/me", "", nil, 401},
		{"me with junk token", http.MethodGet, "/api/v1/me", "junk", nil, 401},
		{"empty post", http.MethodPost, "/api/v1/posts", tok, gin.H{"content": ""}, 400},
		{"long post", http.MethodPost, "/api/v1/posts", tok, gin.H{"content": strings.Repeat("x", 1001)}, 400},
		{"like missing post", http.MethodPost, "/api/v1/posts/42/like", tok, nil, 404},
		{"like bad id", http.MethodPost, "/api/v1/posts/abc/like", tok, nil, 400},
		{"empty profile patch", http.MethodPut, "/api/v1/me", tok, gin.H{}, 400},
		{"body too large", http.MethodPost, "/api/v1/posts", tok, gin.H{"content": strings.Repeat("x", 8<<10)}, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, env := h.do(h.api, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.code, env.Code, env.Msg)
		})
	}
}

func TestAPI_LoginMessagesMatch(t *testing.T) {
	h := newHarness(t, testOptions())
	h.register("Alice", "alice@x.com", "pw")

	_, wrong := h.do(h.api, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@x.com", "password": "nope"})
	_, missing := h.do(h.api, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "bob@x.com", "password": "nope"})
	assert.Equal(t, wrong, missing)
}

func TestAPI_UpdateProfile(t *testing.T) {
	h := newHarness(t, testOptions())
	tok := h.register("Alice", "alice@x.com", "pw")

	_, env := h.do(h.api, http.MethodPut, "/api/v1/me", tok, gin.H{"bio": "hi there"})
	require.Equal(t, 0, env.Code, env.Msg)
	var u struct{ Name, Bio string }
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "hi there", u.Bio)
}

func TestAPI_LoginRateLimitedPerIP(t *testing.T) {
	o := testOptions()
	o.Limits.LoginRPS = 0.001
	o.Limits.LoginBurst = 2
	h := newHarness(t, o)

	body := gin.H{"email": "x@x.com", "password": "pw"}
	for i := 0; i < 2; i++ {
		_, env := h.do(h.api, http.MethodPost, "/api/v1/auth/login", "", body)
		assert.Equal(t, 401, env.Code)
	}
	_, env := h.do(h.api, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, 429, env.Code)

	_, env = h.do(h.api, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, 401, env.Code, "other routes are not affected")
}

func loginFrom(t *testing.T, e *gin.Engine, xff string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		bytes.NewReader([]byte(`{"email":"x@x.com","password":"pw"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", xff)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Code
}

func TestAPI_LoginLimitIgnoresForwardedFor(t *testing.T) {
	o := testOptions()
	o.Limits.LoginRPS = 0.001
	o.Limits.LoginBurst = 2
	h := newHarness(t, o)

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		codes = append(codes, loginFrom(t, h.api, fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Equal(t, []int{401, 401, 429, 429, 429, 429}, codes)
}

func TestAPI_LoginLimitTrustedProxy(t *testing.T) {
	o := testOptions()
	o.Limits.LoginRPS = 0.001
	o.Limits.LoginBurst = 1
	// httptest 的 RemoteAddr 是 192.0.2.1
	o.Proxies = []string{"192.0.2.0/24"}
	h := newHarness(t, o)

	assert.Equal(t, 401, loginFrom(t, h.api, "10.0.0.1"))
	assert.Equal(t, 401, loginFrom(t, h.api, "10.0.0.2"))
	assert.Equal(t, 429, loginFrom(t, h.api, "10.0.0.1"))
}

func TestAdmin_ListAndDelete(t *testing.T) {
	h := newHarness(t, testOptions())
	adminTok := h.register("Root", "root@x.com", "pw")
	userTok := h.register("Bob", "bob@x.com", "pw")
	_, env := h.do(h.api, http.MethodPost, "/api/v1/posts", userTok, gin.H{"content": "bob was here"})
	require.Equal(t, 0, env.Code)

	_, env = h.do(h.admin, http.MethodGet, "/admin/v1/users", adminTok, nil)
	assert.Equal(t, 403, env.Code)

	_, err := h.svc.GrantAdmin(context.Background(), "root@x.com")
	require.NoError(t, err)

	_, env = h.do(h.admin, http.MethodGet, "/admin/v1/users?limit=10", adminTok, nil)
	require.Equal(t, 0, env.Code, env.Msg)
	var list struct {
		Total int64
		Items []struct {
			ID    uint
			Email string
		}
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Items, 2)
	bobID := list.Items[1].ID

	_, env = h.do(h.admin, http.MethodDelete, "/admin/v1/users/abc", adminTok, nil)
	assert.Equal(t, 400, env.Code)

	path := "/admin/v1/users/" + jsonNumber(bobID)
	_, env = h.do(h.admin, http.MethodDelete, path, adminTok, nil)
	require.Equal(t, 0, env.Code, env.Msg)

	_, env = h.do(h.api, http.MethodGet, "/api/v1/me", userTok, nil)
	assert.Equal(t, 401, env.Code, "deleted user's sessions are gone")

	_, env = h.do(h.admin, http.MethodDelete, path, adminTok, nil)
	assert.Equal(t, 404, env.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, testOptions())

	w := httptest.NewRecorder()
	h.api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	h.api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func jsonNumber(n uint) string {
	b, _ := json.Marshal(n)
	return string(b)
}
