package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gin-gorm-forum/internal/domain"
)

// RedisSessionStore session:<id> 存会话（TTL 即过期时间），user_sessions:<uid> 做按用户吊销的索引
type RedisSessionStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, now: time.Now}
}

var errSessionExpired = errors.New("session already expired")

func sessionKey(id string) string      { return "session:" + id }
func userSessionsKey(uid uint) string { return fmt.Sprintf("user_sessions:%d", uid) }

func (s *RedisSessionStore) Save(ctx context.Context, sess *domain.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return domain.Storage(fmt.Errorf("save %s: %w", sess.ID, errSessionExpired))
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, sessionKey(sess.ID), b, ttl)
		p.SAdd(ctx, userSessionsKey(sess.UserID), sess.ID)
		p.Expire(ctx, userSessionsKey(sess.UserID), ttl)
		return nil
	})
	return domain.Storage(err)
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	b, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage(err)
	}
	var sess domain.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, domain.Storage(err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, sessionKey(id))
		p.SRem(ctx, userSessionsKey(sess.UserID), id)
		return nil
	})
	return domain.Storage(err)
}

func (s *RedisSessionStore) DeleteByUser(ctx context.Context, userID uint) error {
	ids, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return domain.Storage(err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))
	return domain.Storage(s.rdb.Del(ctx, keys...).Err())
}
