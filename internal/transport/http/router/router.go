package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gin-gorm-forum/internal/core/config"
	"gin-gorm-forum/internal/core/server"
	"gin-gorm-forum/internal/domain"
	"gin-gorm-forum/internal/service"
	mdw "gin-gorm-forum/internal/transport/http/middleware"
)

// Forum HTTP 层依赖的业务接口
type Forum interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, string, error)
	Login(ctx context.Context, in service.LoginInput) (*domain.User, string, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
	UpdateProfile(ctx context.Context, token string, in service.ProfileInput) (*domain.User, error)
	CreatePost(ctx context.Context, token, content string) (*domain.Post, error)
	LikePost(ctx context.Context, token string, postID uint) (*domain.Post, error)
	ListPosts(ctx context.Context, token string, offset, limit int) ([]domain.Post, error)
	ListUsers(ctx context.Context, token string, offset, limit int) ([]domain.User, int64, error)
	DeleteUser(ctx context.Context, token string, userID uint) error
}

type Options struct {
	Limits       config.Limits
	CORSOrigins  []string
	Proxies      []string
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
}

// FromConfig 从全局配置挑出路由需要的部分
func FromConfig(c *config.Config) Options {
	return Options{
		Limits:       c.Limits,
		CORSOrigins:  c.App.CORSOrigins,
		Proxies:      c.App.TrustedProxies,
		CookieName:   c.Session.CookieName,
		CookieSecure: c.Session.CookieSecure,
		SessionTTL:   c.Session.TTL(),
	}
}

func newEngine(l *zap.Logger, o Options) *gin.Engine {
	r := server.NewRouter(l, o.CORSOrigins, o.Proxies)

	// 中间件
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(o.Limits.RPS), o.Limits.Burst),
		mdw.ConcurrencyLimit(o.Limits.MaxConcurrent),
		mdw.MaxBodyBytes(o.Limits.MaxBodyBytes),
		mdw.Timeout(time.Duration(o.Limits.TimeoutSec)*time.Second),
		mdw.Metrics(),
		mdw.AccessLog(l),
		mdw.SessionToken(o.CookieName),
	)

	// 健康检查 / 指标
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", mdw.MetricsHandler())
	return r
}

func setSessionCookie(c *gin.Context, o Options, token string) {
	if o.CookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(o.CookieName, token, int(o.SessionTTL.Seconds()), "/", "", o.CookieSecure, true)
}

func clearSessionCookie(c *gin.Context, o Options) {
	if o.CookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(o.CookieName, "", -1, "/", "", o.CookieSecure, true)
}

type pageQ struct {
	Offset int `form:"offset,default=0"`
	Limit  int `form:"limit,default=0"`
}
