package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"gin-gorm-forum/internal/domain"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage(err)
	}
	return &u, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, "email = ?", domain.NormalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage(err)
	}
	return &u, nil
}

// Create 依赖 email 唯一索引：并发注册只有一条成功，其余 ErrDuplicateEmail
func (r *UserRepo) Create(ctx context.Context, name, email, passwordHash string) (*domain.User, error) {
	u := &domain.User{
		Name:         name,
		Email:        domain.NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
	}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDupKey(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, domain.Storage(err)
	}
	return u, nil
}

func (r *UserRepo) Update(ctx context.Context, id uint, patch domain.ProfilePatch) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFound("user", id)
			}
			return domain.Storage(err)
		}
		updates := map[string]any{}
		if patch.Name != nil {
			updates["name"] = *patch.Name
		}
		if patch.Bio != nil {
			updates["bio"] = *patch.Bio
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&u).Updates(updates).Error; err != nil {
			return domain.Storage(err)
		}
		return domain.Storage(tx.First(&u, "id = ?", id).Error)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) SetPasswordHash(ctx context.Context, id uint, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return domain.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("user", id)
	}
	return nil
}

func (r *UserRepo) SetRole(ctx context.Context, id uint, role string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return domain.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("user", id)
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	users := []domain.User{}
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, domain.Storage(err)
	}
	if err := r.db.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, domain.Storage(err)
	}
	return users, total, nil
}

// Delete 连同帖子一起删除
func (r *UserRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("author_id = ?", id).Delete(&domain.Post{}).Error; err != nil {
			return domain.Storage(err)
		}
		res := tx.Delete(&domain.User{}, id)
		if res.Error != nil {
			return domain.Storage(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.NotFound("user", id)
		}
		return nil
	})
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 驱动未开启 TranslateError 时按错误文本兜底
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation") ||
		strings.Contains(msg, "23505")
}
