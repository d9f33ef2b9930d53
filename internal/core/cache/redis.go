package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache 基于 Redis 的读穿缓存；Redis 故障时降级为直接回源
type Cache struct {
	RDB *redis.Client
	sf  singleflight.Group
}

func New(rdb *redis.Client) *Cache { return &Cache{RDB: rdb} }

// NewClient 创建客户端并 Ping 一次
func NewClient(ctx context.Context, addr, pass string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if b, err := c.RDB.Get(ctx, key).Bytes(); err == nil {
		return b, nil
	}
	// 合并并发回源
	v, err, _ := c.sf.Do(key, func() (any, error) {
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		_ = c.RDB.Set(ctx, key, b, ttl).Err()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	_ = c.RDB.Del(ctx, keys...).Err()
	for _, k := range keys {
		c.sf.Forget(k)
	}
}

func genKey(base string) string { return "gen:" + base }

// Versioned 返回带当前代号的 key；代号不存在时用纳秒时间播种，被驱逐后也不会复用旧代号。
// ok 为 false 表示 Redis 不可用，调用方绕过缓存
func (c *Cache) Versioned(ctx context.Context, base string) (string, bool) {
	gk := genKey(base)
	var get *redis.StringCmd
	_, err := c.RDB.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, gk, time.Now().UnixNano(), 0)
		get = p.Get(ctx, gk)
		return nil
	})
	if err != nil {
		return "", false
	}
	n, err := get.Int64()
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s@%d", base, n), true
}

// Bump 让 base 当前代号下的缓存全部失效；晚到的回源只会写进旧代号
func (c *Cache) Bump(ctx context.Context, base string) {
	gk := genKey(base)
	_, _ = c.RDB.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, gk, time.Now().UnixNano(), 0)
		p.Incr(ctx, gk)
		return nil
	})
}
