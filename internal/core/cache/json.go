package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetOrLoadJSON JSON 版 GetOrLoad；缓存的 "null" 读作 (nil, nil)。
// 解不出 T 的旧条目（结构体变更后）删除并重新回源一次
func GetOrLoadJSON[T any](c *Cache, ctx context.Context, key string, ttl time.Duration,
	load func(ctx context.Context) (*T, error)) (*T, error) {
	fill := func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}

	for attempt := 0; ; attempt++ {
		raw, err := c.GetOrLoad(ctx, key, ttl, fill)
		if err != nil {
			return nil, err
		}
		out, err := decode[T](raw)
		if err == nil || attempt > 0 {
			return out, err
		}
		c.Invalidate(ctx, key)
	}
}

func decode[T any](raw []byte) (*T, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
