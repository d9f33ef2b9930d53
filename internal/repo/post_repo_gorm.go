package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"gin-gorm-forum/internal/domain"
)

type PostRepo struct{ db *gorm.DB }

func NewPostRepo(db *gorm.DB) *PostRepo { return &PostRepo{db: db} }

func (r *PostRepo) Create(ctx context.Context, authorID uint, content string) (*domain.Post, error) {
	if err := domain.ValidatePostContent(content); err != nil {
		return nil, err
	}
	p := &domain.Post{Content: content, AuthorID: authorID}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.User{}).Where("id = ?", authorID).Count(&n).Error; err != nil {
			return domain.Storage(err)
		}
		if n == 0 {
			return domain.NotFound("user", authorID)
		}
		if err := tx.Create(p).Error; err != nil {
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return domain.NotFound("user", authorID)
			}
			return domain.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostRepo) ListAll(ctx context.Context) ([]domain.Post, error) {
	posts := []domain.Post{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&posts).Error; err != nil {
		return nil, domain.Storage(err)
	}
	return posts, nil
}

func (r *PostRepo) List(ctx context.Context, offset, limit int) ([]domain.Post, error) {
	posts := []domain.Post{}
	err := r.db.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&posts).Error
	if err != nil {
		return nil, domain.Storage(err)
	}
	return posts, nil
}

// IncrementLikes 同一事务内 UPDATE 自增再读回（行锁保证读到的是自己的结果）
func (r *PostRepo) IncrementLikes(ctx context.Context, postID uint) (*domain.Post, error) {
	var p domain.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Post{}).Where("id = ?", postID).
			UpdateColumn("likes", gorm.Expr("likes + ?", 1))
		if res.Error != nil {
			return domain.Storage(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.NotFound("post", postID)
		}
		if err := tx.First(&p, "id = ?", postID).Error; err != nil {
			return domain.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
