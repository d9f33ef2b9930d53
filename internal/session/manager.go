// Package session 会话记录存于 SessionStore，发给客户端的 token 是它的签名引用
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gin-gorm-forum/internal/core/auth"
	"gin-gorm-forum/internal/domain"
)

type Manager struct {
	store  domain.SessionStore
	signer *auth.Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store domain.SessionStore, signer *auth.Signer, ttl time.Duration) *Manager {
	return &Manager{store: store, signer: signer, ttl: ttl, now: time.Now}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) Create(ctx context.Context, userID uint) (string, error) {
	now := m.now()
	s := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return "", err
	}
	return m.signer.Issue(s.ID, userID, s.ExpiresAt)
}

// Resolve 非有效会话一律 ErrUnauthenticated；存储故障原样返回
func (m *Manager) Resolve(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, domain.ErrUnauthenticated
	}
	c, err := m.signer.Parse(token)
	if err != nil {
		return 0, domain.ErrUnauthenticated
	}
	s, err := m.store.Get(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	if s == nil || s.UserID != c.UID {
		return 0, domain.ErrUnauthenticated
	}
	if s.Expired(m.now()) {
		_ = m.store.Delete(ctx, s.ID)
		return 0, domain.ErrUnauthenticated
	}
	return s.UserID, nil
}

// Revoke 未知或格式错误的 token 直接忽略
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	c, err := m.signer.Parse(token)
	if errors.Is(err, auth.ErrInvalidToken) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.store.Delete(ctx, c.ID)
}

func (m *Manager) RevokeAll(ctx context.Context, userID uint) error {
	return m.store.DeleteByUser(ctx, userID)
}
