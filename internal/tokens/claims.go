package tokens

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/user_service/internal/acl"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type AccessClaims struct {
	UserID int64    `json:"user_id"`
	Role   acl.Role `json:"role"`
	Kind   Kind     `json:"typ"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID        int64    `json:"user_id"`
	Role          acl.Role `json:"role"`
	TokenRevision int64    `json:"token_revision"`
	Kind          Kind     `json:"typ"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) check() error {
	return checkCommon(c.Kind, KindAccess, c.UserID, c.Role)
}

func (c *RefreshClaims) check() error {
	if err := checkCommon(c.Kind, KindRefresh, c.UserID, c.Role); err != nil {
		return err
	}
	if c.TokenRevision < 0 {
		return errNegativeRevision
	}
	return nil
}
