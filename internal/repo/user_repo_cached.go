package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gin-gorm-forum/internal/core/cache"
	"gin-gorm-forum/internal/domain"
)

var errNoUser = errors.New("user absent")

// CachedUserRepo FindByID 走 Redis；key 带代号，写操作升代号，
// 与更新竞争的回源只会写进没人再读的旧 key。
// FindByID 返回的用户不带 PasswordHash（校验密码走不缓存的 FindByEmail）
type CachedUserRepo struct {
	*UserRepo
	c   *cache.Cache
	ttl time.Duration
}

func NewCachedUserRepo(inner *UserRepo, c *cache.Cache, ttl time.Duration) *CachedUserRepo {
	return &CachedUserRepo{UserRepo: inner, c: c, ttl: ttl}
}

func userKey(id uint) string { return fmt.Sprintf("user:%d", id) }

func (r *CachedUserRepo) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	key, ok := r.c.Versioned(ctx, userKey(id))
	if !ok {
		u, err := r.UserRepo.FindByID(ctx, id)
		if u != nil {
			u.PasswordHash = ""
		}
		return u, err
	}
	u, err := cache.GetOrLoadJSON(r.c, ctx, key, r.ttl, func(ctx context.Context) (*domain.User, error) {
		u, err := r.UserRepo.FindByID(ctx, id)
		if err == nil && u == nil {
			// 不缓存"不存在"，避免新注册的用户被挡住
			return nil, errNoUser
		}
		return u, err
	})
	if errors.Is(err, errNoUser) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

func (r *CachedUserRepo) Update(ctx context.Context, id uint, patch domain.ProfilePatch) (*domain.User, error) {
	u, err := r.UserRepo.Update(ctx, id, patch)
	r.c.Bump(ctx, userKey(id))
	return u, err
}

func (r *CachedUserRepo) SetRole(ctx context.Context, id uint, role string) error {
	err := r.UserRepo.SetRole(ctx, id, role)
	r.c.Bump(ctx, userKey(id))
	return err
}

func (r *CachedUserRepo) Delete(ctx context.Context, id uint) error {
	err := r.UserRepo.Delete(ctx, id)
	r.c.Bump(ctx, userKey(id))
	return err
}
