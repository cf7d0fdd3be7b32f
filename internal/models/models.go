package models

import (
	"time"

	"github.com/Skotchmaster/user_service/internal/acl"
)

type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"        json:"id"`
	Email        string     `gorm:"size:60;uniqueIndex;not null"    json:"email"`
	PasswordHash string     `gorm:"size:128;not null"               json:"-"`
	Role         acl.Role   `gorm:"size:16;not null;default:user"   json:"role"`
	RegisterDate time.Time  `gorm:"autoCreateTime"                  json:"register_date"`
	FirstName    string     `gorm:"size:30;not null"                json:"first_name"`
	LastName     string     `gorm:"size:30;not null"                json:"last_name"`
	Patronymic   string     `gorm:"size:30;not null"                json:"patronymic"`
	About        *string    `gorm:"size:256"                        json:"about"`
	Birthday     *time.Time `                                       json:"birthday"`
	IsBanned     bool       `gorm:"not null;default:false"          json:"is_banned"`

	Tokens *UserTokens `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// UserTokens is the per-user revision record. Every refresh token embeds the
// revision that was current when it was minted.
type UserTokens struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"  json:"id"`
	UserID        int64 `gorm:"uniqueIndex;not null"      json:"user_id"`
	TokenRevision int64 `gorm:"not null;default:0"        json:"token_revision"`
}

func (UserTokens) TableName() string { return "usertokens" }

func All() []any {
	return []any{&User{}, &UserTokens{}}
}
