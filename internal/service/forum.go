// Package service 论坛业务规则；需要身份的操作都传 token，由这里解析
package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"gin-gorm-forum/internal/domain"
)

type Sessions interface {
	Create(ctx context.Context, userID uint) (string, error)
	Resolve(ctx context.Context, token string) (uint, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID uint) error
}

type Credentials interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

type Deps struct {
	Users       domain.UserRepository
	Posts       domain.PostRepository
	Sessions    Sessions
	Credentials Credentials
	Log         *zap.Logger
}

type ForumService struct {
	users    domain.UserRepository
	posts    domain.PostRepository
	sessions Sessions
	creds    Credentials
	log      *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewForumService(d Deps) *ForumService {
	l := d.Log
	if l == nil {
		l = zap.NewNop()
	}
	return &ForumService{
		users:    d.Users,
		posts:    d.Posts,
		sessions: d.Sessions,
		creds:    d.Credentials,
		log:      l.Named("forum"),
	}
}

// Register 注册并登录；唯一性最终由 repo 保证
func (s *ForumService) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = domain.NormalizeEmail(in.Email)
	if err := check(in); err != nil {
		return nil, "", err
	}
	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", domain.ErrDuplicateEmail
	}
	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}
	u, err := s.users.Create(ctx, in.Name, in.Email, hash)
	if err != nil {
		return nil, "", err
	}
	registrations.Inc()
	s.log.Info("user registered", zap.Uint("uid", u.ID))

	tok, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, tok, nil
}

// Login 邮箱不存在与密码错误同样返回 ErrInvalidCredentials，两条路径都做一次哈希校验
func (s *ForumService) Login(ctx context.Context, in LoginInput) (*domain.User, string, error) {
	if err := check(in); err != nil {
		return nil, "", err
	}
	u, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, "", err
	}
	if u == nil {
		_, _ = s.creds.Verify(in.Password, s.dummy())
		logins.WithLabelValues("fail").Inc()
		return nil, "", domain.ErrInvalidCredentials
	}
	ok, err := s.creds.Verify(in.Password, u.PasswordHash)
	if err != nil {
		s.log.Error("stored password hash unusable", zap.Uint("uid", u.ID), zap.Error(err))
		return nil, "", err
	}
	if !ok {
		logins.WithLabelValues("fail").Inc()
		s.log.Info("login failed", zap.Uint("uid", u.ID))
		return nil, "", domain.ErrInvalidCredentials
	}
	logins.WithLabelValues("ok").Inc()

	if s.creds.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, in.Password)
	}
	tok, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, tok, nil
}

func (s *ForumService) rehash(ctx context.Context, u *domain.User, plaintext string) {
	hash, err := s.creds.Hash(plaintext)
	if err == nil {
		err = s.users.SetPasswordHash(ctx, u.ID, hash)
	}
	if err != nil {
		s.log.Warn("password rehash skipped", zap.Uint("uid", u.ID), zap.Error(err))
		return
	}
	u.PasswordHash = hash
	s.log.Info("password rehashed", zap.Uint("uid", u.ID))
}

func (s *ForumService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.creds.Hash("not-a-real-password")
	})
	return s.dummyHash
}

// Logout 未知 token 不报错，只上报存储故障
func (s *ForumService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// CurrentUser 用户已删除的会话视为未登录
func (s *ForumService) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	uid, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUnauthenticated
	}
	return u, nil
}

func (s *ForumService) CreatePost(ctx context.Context, token, content string) (*domain.Post, error) {
	u, err := s.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePostContent(content); err != nil {
		return nil, err
	}
	p, err := s.posts.Create(ctx, u.ID, content)
	if errors.Is(err, domain.ErrNotFound) {
		// 解析后、插入前作者被删
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	postsCreated.Inc()
	return p, nil
}

// LikePost 作者本人也可点赞，可重复
func (s *ForumService) LikePost(ctx context.Context, token string, postID uint) (*domain.Post, error) {
	if _, err := s.CurrentUser(ctx, token); err != nil {
		return nil, err
	}
	p, err := s.posts.IncrementLikes(ctx, postID)
	if err != nil {
		return nil, err
	}
	likes.Inc()
	return p, nil
}

func (s *ForumService) UpdateProfile(ctx context.Context, token string, in ProfileInput) (*domain.User, error) {
	u, err := s.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if err := check(in); err != nil {
		return nil, err
	}
	patch := domain.ProfilePatch{Name: in.Name, Bio: in.Bio}
	if patch.Empty() {
		return nil, domain.NewValidationError("profile", "nothing to update")
	}
	updated, err := s.users.Update(ctx, u.ID, patch)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	return updated, err
}

// ListPosts limit <= 0 返回全部
func (s *ForumService) ListPosts(ctx context.Context, token string, offset, limit int) ([]domain.Post, error) {
	if _, err := s.CurrentUser(ctx, token); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return s.posts.ListAll(ctx)
	}
	if offset < 0 {
		offset = 0
	}
	return s.posts.List(ctx, offset, limit)
}

func (s *ForumService) requireAdmin(ctx context.Context, token string) (*domain.User, error) {
	u, err := s.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return u, nil
}

func (s *ForumService) ListUsers(ctx context.Context, token string, offset, limit int) ([]domain.User, int64, error) {
	if _, err := s.requireAdmin(ctx, token); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, offset, limit)
}

// DeleteUser 删除用户及其帖子，并吊销全部会话
func (s *ForumService) DeleteUser(ctx context.Context, token string, userID uint) error {
	admin, err := s.requireAdmin(ctx, token)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return err
	}
	s.log.Warn("user deleted", zap.Uint("uid", userID), zap.Uint("by", admin.ID))
	return nil
}

// GrantAdmin 运维操作，不需要会话
func (s *ForumService) GrantAdmin(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.NotFound("user", domain.NormalizeEmail(email))
	}
	if err := s.users.SetRole(ctx, u.ID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	u.Role = domain.RoleAdmin
	s.log.Warn("admin granted", zap.Uint("uid", u.ID))
	return u, nil
}
