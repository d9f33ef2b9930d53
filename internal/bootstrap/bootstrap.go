// Package bootstrap 按配置装配存储、会话和论坛服务（api/admin 共用）
package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gin-gorm-forum/internal/core/auth"
	"gin-gorm-forum/internal/core/cache"
	"gin-gorm-forum/internal/core/config"
	"gin-gorm-forum/internal/core/database"
	"gin-gorm-forum/internal/domain"
	"gin-gorm-forum/internal/repo"
	"gin-gorm-forum/internal/service"
	"gin-gorm-forum/internal/session"
	"gin-gorm-forum/pkg/credential"
)

var (
	ErrRedisRequired = errors.New("bootstrap: session.store=redis needs redis.enabled")
	ErrSessionTTL    = errors.New("bootstrap: session.ttlMin must be positive")
)

type App struct {
	DB    *gorm.DB
	Redis *redis.Client
	Forum *service.ForumService

	sessionsDB *repo.SessionRepo // nil when sessions live in Redis
	log        *zap.Logger
}

// New 打开所有依赖；cleanup 关闭已打开的连接
func New(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, func(), error) {
	if cfg.Session.TTL() <= 0 {
		return nil, nil, ErrSessionTTL
	}
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Log:                l,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	closers := []func(){func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("automigrate: %w", err)
		}
		l.Info("automigrate done")
	}

	a := &App{DB: db, log: l}
	if cfg.Redis.Enabled {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		a.Redis = rdb
		l.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var users domain.UserRepository = repo.NewUserRepo(db)
	if a.Redis != nil && cfg.Cache.UserTTLSec > 0 {
		users = repo.NewCachedUserRepo(repo.NewUserRepo(db), cache.New(a.Redis), time.Duration(cfg.Cache.UserTTLSec)*time.Second)
	}

	var store domain.SessionStore
	switch cfg.Session.Store {
	case "redis":
		if a.Redis == nil {
			cleanup()
			return nil, nil, ErrRedisRequired
		}
		store = repo.NewRedisSessionStore(a.Redis)
	default:
		a.sessionsDB = repo.NewSessionRepo(db)
		store = a.sessionsDB
	}

	secret, err := sessionSecret(cfg.Session.Secret, l)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sessions := session.NewManager(store, auth.NewSigner(secret, cfg.Session.Issuer), cfg.Session.TTL())

	a.Forum = service.NewForumService(service.Deps{
		Users:       users,
		Posts:       repo.NewPostRepo(db),
		Sessions:    sessions,
		Credentials: credential.New(credential.Params(cfg.Password)),
		Log:         l,
	})
	return a, cleanup, nil
}

func sessionSecret(configured string, l *zap.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	l.Warn("session.secret not set; using a random one, sessions will not survive a restart")
	return b, nil
}

// RunJanitor 定期清理过期会话（Redis 自带过期，直接返回）
func (a *App) RunJanitor(ctx context.Context, every time.Duration) {
	if a.sessionsDB == nil || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := a.sessionsDB.PurgeExpired(ctx, now)
			if err != nil {
				a.log.Warn("purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				a.log.Info("purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}
