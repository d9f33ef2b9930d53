package domain

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxPostContentLen = 1000

type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"size:1000;not null" json:"content"`
	Likes     int64     `gorm:"not null;default:0" json:"likes"`
	AuthorID  uint      `gorm:"index;not null" json:"authorId"`
	Author    *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidatePostContent 按字符数（码点）校验；纯空白视为空
func ValidatePostContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return NewValidationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxPostContentLen {
		return NewValidationError("content", "must be at most 1000 characters")
	}
	return nil
}

type PostRepository interface {
	Create(ctx context.Context, authorID uint, content string) (*Post, error)
	// 每次都重新读表，按创建顺序
	ListAll(ctx context.Context) ([]Post, error)
	List(ctx context.Context, offset, limit int) ([]Post, error)
	IncrementLikes(ctx context.Context, postID uint) (*Post, error)
}
