package domain

import (
	"context"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	MaxNameLen     = 100
	MaxEmailLen    = 100
	MaxBioLen      = 200
	MaxPasswordLen = 256
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;size:100;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Bio          string    `gorm:"size:200" json:"bio"`
	Role         string    `gorm:"size:16;not null;default:user" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// ProfilePatch nil 表示不修改
type ProfilePatch struct {
	Name *string
	Bio  *string
}

func (p ProfilePatch) Empty() bool { return p.Name == nil && p.Bio == nil }

// UserRepository 查不到时返回 (nil, nil)
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uint) (*User, error)
	Create(ctx context.Context, name, email, passwordHash string) (*User, error)
	Update(ctx context.Context, id uint, patch ProfilePatch) (*User, error)
	SetPasswordHash(ctx context.Context, id uint, passwordHash string) error
	SetRole(ctx context.Context, id uint, role string) error
	List(ctx context.Context, offset, limit int) ([]User, int64, error)
	Delete(ctx context.Context, id uint) error
}

// NormalizeEmail 邮箱不区分大小写
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
