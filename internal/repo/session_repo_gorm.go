package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"gin-gorm-forum/internal/domain"
)

type SessionRepo struct{ db *gorm.DB }

func NewSessionRepo(db *gorm.DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) Save(ctx context.Context, s *domain.Session) error {
	return domain.Storage(r.db.WithContext(ctx).Create(s).Error)
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage(err)
	}
	return &s, nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	return domain.Storage(r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Session{}).Error)
}

func (r *SessionRepo) DeleteByUser(ctx context.Context, userID uint) error {
	return domain.Storage(r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Session{}).Error)
}

// PurgeExpired 删除过期会话，返回删除条数
func (r *SessionRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Session{})
	return res.RowsAffected, domain.Storage(res.Error)
}
